// Package library issues and returns books against student tags.
package library

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campus-access-backend/internal/model"
	"campus-access-backend/internal/registry"
	"campus-access-backend/internal/store"
)

// LoanPeriod is how long a book may be kept.
const LoanPeriod = 14 * 24 * time.Hour

var (
	ErrInvalid         = errors.New("invalid loan request")
	ErrTagNotFound     = errors.New("tag not found")
	ErrIdentityExpired = errors.New("student card has expired")
	ErrAlreadyIssued   = errors.New("book is already issued")
	ErrLoanNotFound    = errors.New("no open loan with that id")
)

// Resolver maps a tag to its student.
type Resolver interface {
	Resolve(ctx context.Context, uid string) (model.Student, error)
}

// Store is the loan persistence.
type Store interface {
	Transaction(ctx context.Context, fn func(tx store.Store) error) error
	FindOpenLoan(ctx context.Context, id int64) (*model.BookTransaction, error)
	ReturnLoan(ctx context.Context, loan *model.BookTransaction, at time.Time) error
	ListLoans(ctx context.Context, usn string, openOnly bool, limit int) ([]model.BookTransaction, error)
}

// Service issues and returns library books against student tags.
type Service struct {
	store    Store
	resolver Resolver
	now      func() time.Time
}

// NewService creates the library service.
func NewService(s Store, resolver Resolver) *Service {
	return &Service{store: s, resolver: resolver, now: time.Now}
}

// Issue lends bookID to the student holding tagUID.
func (s *Service) Issue(ctx context.Context, tagUID, bookID string) (model.BookTransaction, error) {
	tagUID = strings.TrimSpace(tagUID)
	bookID = strings.TrimSpace(bookID)
	if tagUID == "" || bookID == "" {
		return model.BookTransaction{}, fmt.Errorf("%w: tag_uid and book_id are required", ErrInvalid)
	}

	now := s.now().UTC()
	student, err := s.resolver.Resolve(ctx, tagUID)
	if errors.Is(err, registry.ErrNotFound) {
		return model.BookTransaction{}, ErrTagNotFound
	}
	if err != nil {
		return model.BookTransaction{}, err
	}
	if !student.ValidAt(now) {
		return model.BookTransaction{}, ErrIdentityExpired
	}

	loan := model.BookTransaction{
		TagUID:     tagUID,
		StudentUSN: student.USN,
		BookID:     bookID,
		IssueDate:  now,
		DueDate:    now.Add(LoanPeriod),
		Status:     model.BookIssued,
		CreatedAt:  now,
	}
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		_, err := tx.FindOpenLoanForBook(ctx, bookID)
		if err == nil {
			return ErrAlreadyIssued
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return tx.CreateLoan(ctx, &loan)
	})
	if err != nil {
		return model.BookTransaction{}, err
	}
	return loan, nil
}

// Return closes an open loan.
func (s *Service) Return(ctx context.Context, id int64) (model.BookTransaction, error) {
	loan, err := s.store.FindOpenLoan(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.BookTransaction{}, ErrLoanNotFound
	}
	if err != nil {
		return model.BookTransaction{}, err
	}
	err = s.store.ReturnLoan(ctx, loan, s.now())
	if errors.Is(err, store.ErrNotFound) {
		return model.BookTransaction{}, ErrLoanNotFound
	}
	if err != nil {
		return model.BookTransaction{}, err
	}
	return *loan, nil
}

// List returns loans newest first with overdue status derived at call time.
func (s *Service) List(ctx context.Context, usn string, openOnly bool, limit int) ([]model.BookTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	loans, err := s.store.ListLoans(ctx, usn, openOnly, limit)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range loans {
		loans[i].Status = loans[i].StatusAt(now)
	}
	return loans, nil
}
