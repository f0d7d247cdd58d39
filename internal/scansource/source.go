// Package scansource produces tag reads from hardware gateways, browser relays
// or a synthetic generator, and feeds them to the presence ledger.
package scansource

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRunning is returned when Start is called twice.
	ErrRunning = errors.New("scan source already running")
	// ErrStopped is returned for reads offered to a stopped source.
	ErrStopped = errors.New("scan source stopped")
)

// Read is one tag read.
type Read struct {
	TagUID string
	At     time.Time
}

// Source is a pluggable producer of tag reads.
//
// Start returns once the source is running; onTag is then called from the
// source's own goroutine. Stop may be called at any time and returns after
// any onTag call in progress has returned. onTag must not call Stop.
type Source interface {
	Name() string
	Available(ctx context.Context) bool
	Start(ctx context.Context, onTag func(Read)) error
	Stop()
}

// Select returns the first available source. The last candidate is used when
// none reports itself available, so callers pass Synthetic last.
func Select(ctx context.Context, candidates ...Source) Source {
	for _, s := range candidates {
		if s.Available(ctx) {
			return s
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[len(candidates)-1]
}

// loop is the stop/wait plumbing shared by the polling sources.
type loop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (l *loop) running() bool {
	return l.cancel != nil
}

func (l *loop) start(ctx context.Context, run func(ctx context.Context)) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		run(ctx)
	}()
}

func (l *loop) stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel = nil
}
