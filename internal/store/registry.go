package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"campus-access-backend/internal/model"
)

// FindActiveTag returns the active tag with its student, or ErrNotFound.
func (s *gormStore) FindActiveTag(ctx context.Context, uid string) (*model.Tag, error) {
	var tag model.Tag
	err := s.db.WithContext(ctx).
		Preload("Student").
		Where("uid = ? AND status = ?", uid, model.TagActive).
		First(&tag).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &tag, nil
}

// IssueTag binds uid to the student and deactivates the student's previous tag.
func (s *gormStore) IssueTag(ctx context.Context, uid, usn string, at time.Time) (*model.Tag, error) {
	tag := model.Tag{
		UID:        uid,
		StudentUSN: usn,
		Status:     model.TagActive,
		AssignedAt: at.UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Student{}).Where("usn = ?", usn).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to look up student %s: %w", usn, err)
		}
		if count == 0 {
			return ErrNotFound
		}

		if err := tx.Model(&model.Tag{}).
			Where("student_usn = ? AND status = ? AND uid <> ?", usn, model.TagActive, uid).
			Updates(map[string]any{"status": model.TagInactive, "revoked_at": at.UTC()}).Error; err != nil {
			return fmt.Errorf("failed to deactivate previous tags of %s: %w", usn, err)
		}

		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "uid"}},
			DoUpdates: clause.AssignmentColumns([]string{"student_usn", "status", "assigned_at", "revoked_at"}),
		}).Create(&tag).Error; err != nil {
			return fmt.Errorf("failed to issue tag %s: %w", uid, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// RevokeTag deactivates a tag. Revoking an inactive or unknown tag is ErrNotFound.
func (s *gormStore) RevokeTag(ctx context.Context, uid string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Tag{}).
		Where("uid = ? AND status = ?", uid, model.TagActive).
		Updates(map[string]any{"status": model.TagInactive, "revoked_at": at.UTC()})
	if res.Error != nil {
		return fmt.Errorf("failed to revoke tag %s: %w", uid, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveTagUIDs lists the active tags of a student (at most one in practice).
func (s *gormStore) ActiveTagUIDs(ctx context.Context, usn string) ([]string, error) {
	var uids []string
	err := s.db.WithContext(ctx).Model(&model.Tag{}).
		Where("student_usn = ? AND status = ?", usn, model.TagActive).
		Pluck("uid", &uids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tags of %s: %w", usn, err)
	}
	return uids, nil
}

// UpsertStudent creates or replaces a student's profile. The photo key is kept.
func (s *gormStore) UpsertStudent(ctx context.Context, student *model.Student) error {
	student.ValidFrom = student.ValidFrom.UTC()
	student.ValidUpto = student.ValidUpto.UTC()
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "usn"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "contact_no", "blood_group", "address", "staying_at_hostel", "valid_from", "valid_upto", "updated_at",
		}),
	}).Create(student).Error
	if err != nil {
		return fmt.Errorf("failed to upsert student %s: %w", student.USN, err)
	}
	return nil
}

func (s *gormStore) GetStudent(ctx context.Context, usn string) (*model.Student, error) {
	var student model.Student
	if err := s.db.WithContext(ctx).First(&student, "usn = ?", usn).Error; err != nil {
		return nil, notFound(err)
	}
	return &student, nil
}

// SearchStudents matches name, USN or contact number, case-insensitively.
func (s *gormStore) SearchStudents(ctx context.Context, query string, limit int) ([]model.Student, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	var students []model.Student
	err := s.db.WithContext(ctx).
		Where("LOWER(name) LIKE ? OR LOWER(usn) LIKE ? OR contact_no LIKE ?", pattern, pattern, pattern).
		Order("name").
		Limit(limit).
		Find(&students).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search students: %w", err)
	}
	return students, nil
}

func (s *gormStore) SetStudentImage(ctx context.Context, usn, key string) error {
	res := s.db.WithContext(ctx).Model(&model.Student{}).Where("usn = ?", usn).Update("image_key", key)
	if res.Error != nil {
		return fmt.Errorf("failed to update photo of %s: %w", usn, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
