package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"campus-access-backend/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a write lost a race with another writer,
// possibly on another instance. Re-reading and retrying is safe.
var ErrConflict = errors.New("conflicting concurrent change")

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB
	Ping(ctx context.Context) error
	// Transaction runs fn against a Store bound to a single transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	FindActiveTag(ctx context.Context, uid string) (*model.Tag, error)
	IssueTag(ctx context.Context, uid, usn string, at time.Time) (*model.Tag, error)
	RevokeTag(ctx context.Context, uid string, at time.Time) error
	ActiveTagUIDs(ctx context.Context, usn string) ([]string, error)
	UpsertStudent(ctx context.Context, student *model.Student) error
	GetStudent(ctx context.Context, usn string) (*model.Student, error)
	SearchStudents(ctx context.Context, query string, limit int) ([]model.Student, error)
	SetStudentImage(ctx context.Context, usn, key string) error

	FindOpenRecord(ctx context.Context, location model.Location, tagUID string) (*model.PresenceRecord, error)
	CreateRecord(ctx context.Context, rec *model.PresenceRecord) error
	CloseRecord(ctx context.Context, rec *model.PresenceRecord, exit time.Time) error
	ListRecent(ctx context.Context, location model.Location, limit int) ([]model.PresenceRecord, error)
	ListSince(ctx context.Context, location model.Location, since time.Time) ([]model.PresenceRecord, error)
	ListEnteredBetween(ctx context.Context, location model.Location, from, to time.Time) ([]model.PresenceRecord, error)

	CreateAlert(ctx context.Context, alert *model.Alert) error
	ListAlerts(ctx context.Context, limit int) ([]model.Alert, error)

	FindOperator(ctx context.Context, username string) (*model.Operator, error)
	UpsertOperator(ctx context.Context, op *model.Operator) error

	CreateLoan(ctx context.Context, loan *model.BookTransaction) error
	FindOpenLoan(ctx context.Context, id int64) (*model.BookTransaction, error)
	FindOpenLoanForBook(ctx context.Context, bookID string) (*model.BookTransaction, error)
	ReturnLoan(ctx context.Context, loan *model.BookTransaction, at time.Time) error
	ListLoans(ctx context.Context, usn string, openOnly bool, limit int) ([]model.BookTransaction, error)

	SaveSubscription(ctx context.Context, sub *model.PushSubscription, locations []model.Location) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsFor(ctx context.Context, location string) ([]model.PushSubscription, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Ping checks that the database answers.
func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
