package model

import "time"

// BookStatus is the state of a library loan.
type BookStatus string

const (
	BookIssued   BookStatus = "issued"
	BookReturned BookStatus = "returned"
	BookOverdue  BookStatus = "overdue"
)

// BookTransaction is a library loan made against a student's tag.
type BookTransaction struct {
	ID         int64      `gorm:"primaryKey" json:"id"`
	TagUID     string     `gorm:"size:64;not null" json:"tag_uid"`
	StudentUSN string     `gorm:"size:32;not null;index" json:"student_usn"`
	BookID     string     `gorm:"size:64;not null;index" json:"book_id"`
	IssueDate  time.Time  `gorm:"not null" json:"issue_date"`
	DueDate    time.Time  `gorm:"not null" json:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
	Status     BookStatus `gorm:"size:16;not null" json:"status"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
}

// StatusAt derives the loan status at now; stored status only tracks returns.
func (b BookTransaction) StatusAt(now time.Time) BookStatus {
	if b.ReturnDate != nil {
		return BookReturned
	}
	if now.After(b.DueDate) {
		return BookOverdue
	}
	return BookIssued
}
