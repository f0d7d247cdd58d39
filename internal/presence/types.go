package presence

import (
	"errors"
	"fmt"
	"time"

	"campus-access-backend/internal/model"
)

var (
	// ErrInvalidScan marks a malformed scan request.
	ErrInvalidScan = errors.New("invalid scan")
	// ErrStorage marks a transient storage failure; the scan may be retried.
	ErrStorage = errors.New("presence storage unavailable")
)

// Intent is what the reader asked for. Auto toggles based on the open record.
type Intent string

const (
	IntentEntry Intent = "entry"
	IntentExit  Intent = "exit"
	IntentAuto  Intent = "auto"
)

// Action is the transition a scan caused.
type Action string

const (
	ActionEntry Action = "entry"
	ActionExit  Action = "exit"
)

// Outcome is the top-level result of a scan.
type Outcome string

const (
	Admitted Outcome = "admitted"
	Denied   Outcome = "denied"
)

// Reason explains a denial.
type Reason string

const (
	ReasonTagNotFound     Reason = "tag_not_found"
	ReasonIdentityExpired Reason = "identity_expired"
	ReasonAlreadyOpen     Reason = "already_open"
	ReasonNoOpenRecord    Reason = "no_open_record"
	ReasonExitBeforeEntry Reason = "exit_before_entry"
	// ReasonEntryBeforeOpen is a reopening entry timestamped before the open one.
	ReasonEntryBeforeOpen Reason = "entry_before_open"
)

// DuplicateEntryPolicy decides what an Entry scan does while a record is open.
type DuplicateEntryPolicy string

const (
	// RejectDuplicate denies the scan and leaves the open record alone.
	RejectDuplicate DuplicateEntryPolicy = "reject"
	// Reopen closes the open record at the scan time and opens a new one.
	Reopen DuplicateEntryPolicy = "reopen"
)

// OrphanExitPolicy decides what an Exit scan does when nothing is open.
type OrphanExitPolicy string

const (
	// RejectOrphan denies the scan.
	RejectOrphan OrphanExitPolicy = "reject"
	// RecordOrphan stores an exit-only record.
	RecordOrphan OrphanExitPolicy = "record"
)

// Scan is one tag read at a location.
type Scan struct {
	TagUID   string         `json:"tag_uid"`
	Location model.Location `json:"location"`
	At       time.Time      `json:"scanned_at"`
	Intent   Intent         `json:"intent"`
	ReaderID string         `json:"reader_id,omitempty"`
}

func (s Scan) validate() error {
	if s.TagUID == "" {
		return fmt.Errorf("%w: empty tag id", ErrInvalidScan)
	}
	if !s.Location.Valid() {
		return fmt.Errorf("%w: unknown location %q", ErrInvalidScan, s.Location)
	}
	if s.At.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidScan)
	}
	switch s.Intent {
	case IntentEntry, IntentExit, IntentAuto:
	default:
		return fmt.Errorf("%w: unknown intent %q", ErrInvalidScan, s.Intent)
	}
	return nil
}

func (s Scan) key() string {
	return string(s.Location) + "\x00" + s.TagUID
}

// Result is the reported outcome of RecordScan.
type Result struct {
	Outcome Outcome               `json:"outcome"`
	Reason  Reason                `json:"reason,omitempty"`
	Action  Action                `json:"action,omitempty"`
	Student *model.Student        `json:"student,omitempty"`
	Record  *model.PresenceRecord `json:"record,omitempty"`
}

// Change is published after every admitted scan.
type Change struct {
	Location model.Location       `json:"location"`
	Action   Action               `json:"action"`
	Student  model.Student        `json:"student"`
	Record   model.PresenceRecord `json:"record"`
}

func denied(reason Reason, student *model.Student) Result {
	return Result{Outcome: Denied, Reason: reason, Student: student}
}
