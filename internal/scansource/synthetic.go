package scansource

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"
)

// DefaultSampleTags are emitted by the synthetic source when none are configured.
var DefaultSampleTags = []string{
	"NFC001ABC123",
	"NFC002DEF456",
	"NFC003GHI789",
	"NFC004JKL012",
	"NFC005MNO345",
}

// Synthetic emits a random sample tag after a random delay between min and
// max. It is always available and stands in for missing reader hardware.
type Synthetic struct {
	tags     []string
	min, max time.Duration
	now      func() time.Time

	mu   sync.Mutex // guards loop
	loop loop

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewSynthetic creates a generator. Empty tags fall back to DefaultSampleTags.
func NewSynthetic(tags []string, min, max time.Duration) *Synthetic {
	if len(tags) == 0 {
		tags = DefaultSampleTags
	}
	if max < min {
		max = min
	}
	return &Synthetic{
		tags: tags,
		min:  min,
		max:  max,
		now:  time.Now,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Synthetic) Name() string { return "synthetic" }

func (s *Synthetic) Available(ctx context.Context) bool { return true }

func (s *Synthetic) Start(ctx context.Context, onTag func(Read)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop.running() {
		return ErrRunning
	}
	log.Printf("Synthetic scan source started with %d sample tags", len(s.tags))
	s.loop.start(ctx, func(ctx context.Context) {
		timer := time.NewTimer(s.next())
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				onTag(Read{TagUID: s.pick(), At: s.now()})
				timer.Reset(s.next())
			}
		}
	})
	return nil
}

func (s *Synthetic) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop.stop()
}

func (s *Synthetic) next() time.Duration {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	if s.max == s.min {
		return s.min
	}
	return s.min + time.Duration(s.rng.Int63n(int64(s.max-s.min)))
}

func (s *Synthetic) pick() string {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.tags[s.rng.Intn(len(s.tags))]
}
