package store

import (
	"context"
	"fmt"
	"time"

	"campus-access-backend/internal/model"
)

func (s *gormStore) CreateLoan(ctx context.Context, loan *model.BookTransaction) error {
	if err := s.db.WithContext(ctx).Create(loan).Error; err != nil {
		return fmt.Errorf("failed to issue book %s: %w", loan.BookID, err)
	}
	return nil
}

// FindOpenLoan returns an unreturned loan by id, or ErrNotFound.
func (s *gormStore) FindOpenLoan(ctx context.Context, id int64) (*model.BookTransaction, error) {
	var loan model.BookTransaction
	if err := s.db.WithContext(ctx).Where("id = ? AND return_date IS NULL", id).First(&loan).Error; err != nil {
		return nil, notFound(err)
	}
	return &loan, nil
}

// FindOpenLoanForBook returns the unreturned loan of a book, or ErrNotFound.
func (s *gormStore) FindOpenLoanForBook(ctx context.Context, bookID string) (*model.BookTransaction, error) {
	var loan model.BookTransaction
	if err := s.db.WithContext(ctx).Where("book_id = ? AND return_date IS NULL", bookID).First(&loan).Error; err != nil {
		return nil, notFound(err)
	}
	return &loan, nil
}

func (s *gormStore) ReturnLoan(ctx context.Context, loan *model.BookTransaction, at time.Time) error {
	at = at.UTC()
	res := s.db.WithContext(ctx).Model(&model.BookTransaction{}).
		Where("id = ? AND return_date IS NULL", loan.ID).
		Updates(map[string]any{"return_date": at, "status": model.BookReturned})
	if res.Error != nil {
		return fmt.Errorf("failed to return loan %d: %w", loan.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	loan.ReturnDate = &at
	loan.Status = model.BookReturned
	return nil
}

// ListLoans lists loans newest first, optionally for one student or only unreturned ones.
func (s *gormStore) ListLoans(ctx context.Context, usn string, openOnly bool, limit int) ([]model.BookTransaction, error) {
	q := s.db.WithContext(ctx).Model(&model.BookTransaction{})
	if usn != "" {
		q = q.Where("student_usn = ?", usn)
	}
	if openOnly {
		q = q.Where("return_date IS NULL")
	}
	var loans []model.BookTransaction
	if err := q.Order("issue_date DESC").Limit(limit).Find(&loans).Error; err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	return loans, nil
}
