package scansource

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Browser relays tag reads that a Web NFC capable browser posts to the API.
// It is available only when the deployment enables the relay.
type Browser struct {
	enabled bool
	now     func() time.Time

	mu    sync.RWMutex
	onTag func(Read)
}

// NewBrowser creates a relay. A disabled relay reports itself unavailable.
func NewBrowser(enabled bool) *Browser {
	return &Browser{enabled: enabled, now: time.Now}
}

func (b *Browser) Name() string { return "browser" }

func (b *Browser) Available(ctx context.Context) bool { return b.enabled }

func (b *Browser) Start(ctx context.Context, onTag func(Read)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.onTag != nil {
		return ErrRunning
	}
	b.onTag = onTag
	return nil
}

// Stop detaches the callback. It waits for relayed reads still in onTag.
func (b *Browser) Stop() {
	b.mu.Lock()
	b.onTag = nil
	b.mu.Unlock()
}

// Submit hands one browser read to the running source. A zero At is stamped
// with the current time.
func (b *Browser) Submit(r Read) error {
	r.TagUID = strings.TrimSpace(r.TagUID)
	if r.At.IsZero() {
		r.At = b.now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.onTag == nil {
		return ErrStopped
	}
	b.onTag(r)
	return nil
}
