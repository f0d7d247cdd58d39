package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"campus-access-backend/internal/model"
)

func (s *gormStore) FindOperator(ctx context.Context, username string) (*model.Operator, error) {
	var op model.Operator
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&op).Error; err != nil {
		return nil, notFound(err)
	}
	return &op, nil
}

// UpsertOperator seeds or updates an account keyed by username.
func (s *gormStore) UpsertOperator(ctx context.Context, op *model.Operator) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"password_hash", "role", "active", "updated_at"}),
	}).Create(op).Error
	if err != nil {
		return fmt.Errorf("failed to upsert operator %s: %w", op.Username, err)
	}
	return nil
}
