// Package presence records entry and exit scans per location and derives
// occupancy counters from them.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"campus-access-backend/internal/model"
	"campus-access-backend/internal/registry"
	"campus-access-backend/internal/store"
)

// Resolver maps a tag to its student.
type Resolver interface {
	Resolve(ctx context.Context, uid string) (model.Student, error)
}

// Publisher is told about every admitted scan once it is committed.
type Publisher interface {
	PresenceChanged(ctx context.Context, change Change) error
}

// Observer receives per-scan measurements.
type Observer interface {
	ObserveScan(location model.Location, outcome Outcome, reason Reason, took time.Duration)
}

// Store is the persistence the ledger needs.
type Store interface {
	Transaction(ctx context.Context, fn func(tx store.Store) error) error
	ListRecent(ctx context.Context, location model.Location, limit int) ([]model.PresenceRecord, error)
	ListSince(ctx context.Context, location model.Location, since time.Time) ([]model.PresenceRecord, error)
	ListEnteredBetween(ctx context.Context, location model.Location, from, to time.Time) ([]model.PresenceRecord, error)
}

// Options configures a Ledger.
type Options struct {
	DuplicateEntry DuplicateEntryPolicy
	OrphanExit     OrphanExitPolicy
	Timezone       *time.Location
	// CurfewHour is the local hour from which entries are late; nil means
	// DefaultCurfewHour.
	CurfewHour *int
	Publisher      Publisher
	Observer       Observer
	Now            func() time.Time
}

// Ledger is the single presence service shared by every location.
type Ledger struct {
	store    Store
	resolver Resolver
	opts     Options
	curfew   int
	locks    *keyedMutex
}

// NewLedger creates a ledger, filling unset options with defaults.
func NewLedger(s Store, resolver Resolver, opts Options) *Ledger {
	if opts.DuplicateEntry == "" {
		opts.DuplicateEntry = RejectDuplicate
	}
	if opts.OrphanExit == "" {
		opts.OrphanExit = RejectOrphan
	}
	if opts.Timezone == nil {
		opts.Timezone = time.Local
	}
	curfew := DefaultCurfewHour
	if opts.CurfewHour != nil {
		curfew = *opts.CurfewHour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{store: s, resolver: resolver, opts: opts, curfew: curfew, locks: newKeyedMutex()}
}

// Timezone returns the zone used for calendar days and curfew checks.
func (l *Ledger) Timezone() *time.Location {
	return l.opts.Timezone
}

// RecordScan applies one scan to the ledger. Denials are reported in the
// Result; only malformed input and storage faults are returned as errors.
func (l *Ledger) RecordScan(ctx context.Context, scan Scan) (Result, error) {
	if err := scan.validate(); err != nil {
		return Result{}, err
	}

	started := l.opts.Now()
	res, err := l.recordScan(ctx, scan)
	if l.opts.Observer != nil && err == nil {
		l.opts.Observer.ObserveScan(scan.Location, res.Outcome, res.Reason, l.opts.Now().Sub(started))
	}
	if err != nil {
		log.Printf("Scan of %s at %s failed: %v", scan.TagUID, scan.Location, err)
		return Result{}, err
	}
	return res, nil
}

func (l *Ledger) recordScan(ctx context.Context, scan Scan) (Result, error) {
	at := scan.At.UTC()

	student, err := l.resolver.Resolve(ctx, scan.TagUID)
	if errors.Is(err, registry.ErrNotFound) {
		return denied(ReasonTagNotFound, nil), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if !student.ValidAt(at) {
		return denied(ReasonIdentityExpired, &student), nil
	}

	unlock := l.locks.Lock(scan.key())
	defer unlock()

	// The keyed lock only covers this process. Another instance may commit the
	// same key between our read and write; the transition then runs once more
	// against the committed state.
	var res Result
	for attempt := 0; ; attempt++ {
		err = l.store.Transaction(ctx, func(tx store.Store) error {
			open, err := tx.FindOpenRecord(ctx, scan.Location, scan.TagUID)
			if err != nil {
				return err
			}
			res, err = l.apply(ctx, tx, scan, at, student, open)
			return err
		})
		if !errors.Is(err, store.ErrConflict) || attempt > 0 {
			break
		}
		log.Printf("Scan of %s at %s raced another writer, retrying: %v", scan.TagUID, scan.Location, err)
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	if res.Outcome == Admitted {
		l.publish(ctx, res)
	}
	return res, nil
}

// apply runs the state transition for one key inside a transaction.
func (l *Ledger) apply(ctx context.Context, tx store.Store, scan Scan, at time.Time, student model.Student, open *model.PresenceRecord) (Result, error) {
	switch {
	case scan.Intent == IntentEntry && open != nil:
		if l.opts.DuplicateEntry == RejectDuplicate {
			return denied(ReasonAlreadyOpen, &student), nil
		}
		if at.Before(*open.EntryTime) {
			return denied(ReasonEntryBeforeOpen, &student), nil
		}
		if err := tx.CloseRecord(ctx, open, at); err != nil {
			return Result{}, err
		}
		return l.openRecord(ctx, tx, scan, at, student)

	case scan.Intent == IntentEntry || (scan.Intent == IntentAuto && open == nil):
		return l.openRecord(ctx, tx, scan, at, student)

	case open == nil:
		if l.opts.OrphanExit == RejectOrphan {
			return denied(ReasonNoOpenRecord, &student), nil
		}
		rec := &model.PresenceRecord{
			Location:   scan.Location,
			TagUID:     scan.TagUID,
			StudentUSN: student.USN,
			ExitTime:   &at,
			ReaderID:   scan.ReaderID,
			CreatedAt:  l.opts.Now().UTC(),
		}
		if err := tx.CreateRecord(ctx, rec); err != nil {
			return Result{}, err
		}
		return admitted(ActionExit, student, rec), nil

	default:
		if at.Before(*open.EntryTime) {
			return denied(ReasonExitBeforeEntry, &student), nil
		}
		if err := tx.CloseRecord(ctx, open, at); err != nil {
			return Result{}, err
		}
		return admitted(ActionExit, student, open), nil
	}
}

func (l *Ledger) openRecord(ctx context.Context, tx store.Store, scan Scan, at time.Time, student model.Student) (Result, error) {
	rec := &model.PresenceRecord{
		Location:   scan.Location,
		TagUID:     scan.TagUID,
		StudentUSN: student.USN,
		EntryTime:  &at,
		ReaderID:   scan.ReaderID,
		CreatedAt:  l.opts.Now().UTC(),
	}
	if err := tx.CreateRecord(ctx, rec); err != nil {
		return Result{}, err
	}
	return admitted(ActionEntry, student, rec), nil
}

func admitted(action Action, student model.Student, rec *model.PresenceRecord) Result {
	rec.Student = student
	return Result{Outcome: Admitted, Action: action, Student: &student, Record: rec}
}

func (l *Ledger) publish(ctx context.Context, res Result) {
	if l.opts.Publisher == nil {
		return
	}
	change := Change{
		Location: res.Record.Location,
		Action:   res.Action,
		Student:  *res.Student,
		Record:   *res.Record,
	}
	if err := l.opts.Publisher.PresenceChanged(ctx, change); err != nil {
		log.Printf("Failed to publish presence change for %s at %s: %v", change.Record.TagUID, change.Location, err)
	}
}

const (
	// DefaultRecentLimit is the page size used when none is given.
	DefaultRecentLimit = 50
	// MaxRecentLimit caps a single listing.
	MaxRecentLimit = 500
)

// ListRecent returns the newest records of a location, most recent first.
func (l *Ledger) ListRecent(ctx context.Context, location model.Location, limit int) ([]model.PresenceRecord, error) {
	if !location.Valid() {
		return nil, fmt.Errorf("%w: unknown location %q", ErrInvalidScan, location)
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	records, err := l.store.ListRecent(ctx, location, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return records, nil
}

// Stats aggregates a location's counters as of now.
func (l *Ledger) Stats(ctx context.Context, location model.Location, now time.Time) (Stats, error) {
	if !location.Valid() {
		return Stats{}, fmt.Errorf("%w: unknown location %q", ErrInvalidScan, location)
	}
	records, err := l.store.ListSince(ctx, location, StartOfDay(now, l.opts.Timezone))
	if err != nil {
		return Stats{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return Aggregate(records, now, l.opts.Timezone, l.curfew), nil
}

// RecordsForDays returns the records entered on the calendar days from start
// to end inclusive, oldest first.
func (l *Ledger) RecordsForDays(ctx context.Context, location model.Location, start, end time.Time) ([]model.PresenceRecord, error) {
	if !location.Valid() {
		return nil, fmt.Errorf("%w: unknown location %q", ErrInvalidScan, location)
	}
	from := StartOfDay(start, l.opts.Timezone)
	to := StartOfDay(end, l.opts.Timezone).AddDate(0, 0, 1)
	records, err := l.store.ListEnteredBetween(ctx, location, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return records, nil
}
