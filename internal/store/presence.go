package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"campus-access-backend/internal/model"
)

// FindOpenRecord returns the open record for the key, or nil when there is none.
func (s *gormStore) FindOpenRecord(ctx context.Context, location model.Location, tagUID string) (*model.PresenceRecord, error) {
	var records []model.PresenceRecord
	err := s.db.WithContext(ctx).
		Where("location = ? AND tag_uid = ? AND entry_time IS NOT NULL AND exit_time IS NULL", location, tagUID).
		Order("entry_time DESC").
		Limit(1).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch open record for %s at %s: %w", tagUID, location, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

// CreateRecord inserts a record. Opening a second record for a key that is
// already open is ErrConflict.
func (s *gormStore) CreateRecord(ctx context.Context, rec *model.PresenceRecord) error {
	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s is already open at %s", ErrConflict, rec.TagUID, rec.Location)
	}
	if err != nil {
		return fmt.Errorf("failed to create presence record for %s at %s: %w", rec.TagUID, rec.Location, err)
	}
	return nil
}

// CloseRecord sets the exit time, guarding against a concurrent close.
func (s *gormStore) CloseRecord(ctx context.Context, rec *model.PresenceRecord, exit time.Time) error {
	exit = exit.UTC()
	res := s.db.WithContext(ctx).Model(&model.PresenceRecord{}).
		Where("id = ? AND exit_time IS NULL", rec.ID).
		Update("exit_time", exit)
	if res.Error != nil {
		return fmt.Errorf("failed to close presence record %d: %w", rec.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: presence record %d is no longer open", ErrConflict, rec.ID)
	}
	rec.ExitTime = &exit
	return nil
}

// ListRecent returns the newest records of a location with their students.
func (s *gormStore) ListRecent(ctx context.Context, location model.Location, limit int) ([]model.PresenceRecord, error) {
	var records []model.PresenceRecord
	err := s.db.WithContext(ctx).
		Preload("Student").
		Where("location = ?", location).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list presence records at %s: %w", location, err)
	}
	return records, nil
}

// ListSince returns, in one statement, every record entered since the given
// instant plus every record still open.
func (s *gormStore) ListSince(ctx context.Context, location model.Location, since time.Time) ([]model.PresenceRecord, error) {
	var records []model.PresenceRecord
	err := s.db.WithContext(ctx).
		Where("location = ? AND (entry_time >= ? OR (entry_time IS NOT NULL AND exit_time IS NULL))", location, since.UTC()).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load presence snapshot at %s: %w", location, err)
	}
	return records, nil
}

// ListEnteredBetween returns records whose entry falls in [from, to), oldest first.
func (s *gormStore) ListEnteredBetween(ctx context.Context, location model.Location, from, to time.Time) ([]model.PresenceRecord, error) {
	var records []model.PresenceRecord
	err := s.db.WithContext(ctx).
		Preload("Student").
		Where("location = ? AND entry_time >= ? AND entry_time < ?", location, from.UTC(), to.UTC()).
		Order("entry_time").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list presence records at %s: %w", location, err)
	}
	return records, nil
}
