package store

import (
	"context"
	"fmt"

	"campus-access-backend/internal/model"
)

func (s *gormStore) CreateAlert(ctx context.Context, alert *model.Alert) error {
	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (s *gormStore) ListAlerts(ctx context.Context, limit int) ([]model.Alert, error) {
	var alerts []model.Alert
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}
