package scansource

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"campus-access-backend/config"
	"campus-access-backend/internal/model"
	"campus-access-backend/internal/presence"
)

// Recorder is the part of the presence ledger a runner drives.
type Recorder interface {
	RecordScan(ctx context.Context, scan presence.Scan) (presence.Result, error)
}

// Runner binds one source to one location and records every read it emits
// as an auto-toggle scan.
type Runner struct {
	location model.Location
	readerID string
	source   Source
	recorder Recorder

	mu       sync.Mutex
	ctx      context.Context
	started  bool
	stopped  bool
	inflight sync.WaitGroup
}

// NewRunner creates a runner; readerID is stamped on every scan it records.
func NewRunner(location model.Location, readerID string, source Source, recorder Recorder) *Runner {
	return &Runner{location: location, readerID: readerID, source: source, recorder: recorder}
}

func (r *Runner) Location() model.Location { return r.location }

func (r *Runner) Source() Source { return r.source }

// Start begins consuming reads. Scans already handed to the ledger finish
// even if ctx is cancelled afterwards.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrRunning
	}
	r.started = true
	r.ctx = context.WithoutCancel(ctx)
	r.mu.Unlock()

	if err := r.source.Start(ctx, r.handle); err != nil {
		return fmt.Errorf("start %s source for %s: %w", r.source.Name(), r.location, err)
	}
	log.Printf("Scan source %q running for %s", r.source.Name(), r.location)
	return nil
}

// Stop halts the source. Reads arriving after Stop are dropped; scans
// already in progress are allowed to complete. Stop is idempotent.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	if started {
		r.source.Stop()
	}
	r.inflight.Wait()
}

func (r *Runner) handle(read Read) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.inflight.Add(1)
	ctx := r.ctx
	r.mu.Unlock()
	defer r.inflight.Done()

	res, err := r.recorder.RecordScan(ctx, presence.Scan{
		TagUID:   read.TagUID,
		Location: r.location,
		At:       read.At,
		Intent:   presence.IntentAuto,
		ReaderID: r.readerID,
	})
	if err != nil {
		log.Printf("Scan of %s from %s source at %s failed: %v", read.TagUID, r.source.Name(), r.location, err)
		return
	}
	if res.Outcome == presence.Denied {
		log.Printf("Scan of %s at %s denied: %s", read.TagUID, r.location, res.Reason)
	}
}

// Manager owns the runners configured for the deployment.
type Manager struct {
	runners  []*Runner
	browsers map[model.Location]*Browser
}

// NewManager builds one runner per configured reader. Sources are chosen by
// capability probing when a reader's source is "auto".
func NewManager(ctx context.Context, readers []config.ReaderConfig, tz *time.Location, recorder Recorder) (*Manager, error) {
	m := &Manager{browsers: make(map[model.Location]*Browser)}
	for _, rc := range readers {
		location := model.Location(rc.Location)
		if !location.Valid() {
			return nil, fmt.Errorf("reader %q: unknown location %q", rc.ReaderID, rc.Location)
		}
		source, err := sourceFor(ctx, rc, tz)
		if err != nil {
			return nil, fmt.Errorf("reader %q: %w", rc.ReaderID, err)
		}
		if b, ok := source.(*Browser); ok {
			m.browsers[location] = b
		}
		readerID := rc.ReaderID
		if readerID == "" {
			readerID = fmt.Sprintf("%s-%s", location, source.Name())
		}
		m.runners = append(m.runners, NewRunner(location, readerID, source, recorder))
	}
	return m, nil
}

func sourceFor(ctx context.Context, rc config.ReaderConfig, tz *time.Location) (Source, error) {
	synthetic := func() Source {
		return NewSynthetic(rc.SampleTags,
			time.Duration(rc.MinIntervalSeconds)*time.Second,
			time.Duration(rc.MaxIntervalSeconds)*time.Second)
	}
	switch rc.Source {
	case "hardware":
		return NewHardware(rc, tz), nil
	case "browser":
		return NewBrowser(true), nil
	case "synthetic":
		return synthetic(), nil
	case "auto", "":
		return Select(ctx, NewHardware(rc, tz), synthetic()), nil
	default:
		return nil, fmt.Errorf("unknown scan source %q", rc.Source)
	}
}

// Start starts every runner, stopping those already started on failure.
func (m *Manager) Start(ctx context.Context) error {
	for i, r := range m.runners {
		if err := r.Start(ctx); err != nil {
			for _, started := range m.runners[:i] {
				started.Stop()
			}
			return err
		}
	}
	return nil
}

// Stop stops every runner and waits for in-flight scans.
func (m *Manager) Stop() {
	var wg sync.WaitGroup
	for _, r := range m.runners {
		wg.Add(1)
		go func(r *Runner) {
			defer wg.Done()
			r.Stop()
		}(r)
	}
	wg.Wait()
	log.Println("All scan sources stopped.")
}

// Relay returns the browser relay bound to a location, if any.
func (m *Manager) Relay(location model.Location) (*Browser, bool) {
	b, ok := m.browsers[location]
	return b, ok
}

func (m *Manager) Runners() []*Runner { return m.runners }
