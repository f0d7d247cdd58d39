package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"campus-access-backend/internal/model"
)

// SaveSubscription creates or replaces a subscription and its location scope.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription, locations []model.Location) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(sub).Error; err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		if err := tx.Where("endpoint = ?", sub.Endpoint).Delete(&model.SubscriptionLocation{}).Error; err != nil {
			return fmt.Errorf("failed to reset subscription locations: %w", err)
		}

		sub.Locations = sub.Locations[:0]
		for _, loc := range locations {
			sub.Locations = append(sub.Locations, model.SubscriptionLocation{Endpoint: sub.Endpoint, Location: loc})
		}
		if len(sub.Locations) == 0 {
			return nil
		}
		if err := tx.Create(&sub.Locations).Error; err != nil {
			return fmt.Errorf("failed to save subscription locations: %w", err)
		}
		return nil
	})
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Preload("Locations").First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, notFound(err)
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("endpoint = ?", endpoint).Delete(&model.SubscriptionLocation{}).Error; err != nil {
			return fmt.Errorf("failed to delete subscription locations: %w", err)
		}
		if err := tx.Where("endpoint = ?", endpoint).Delete(&model.PushSubscription{}).Error; err != nil {
			return fmt.Errorf("failed to delete subscription: %w", err)
		}
		return nil
	})
}

// SubscriptionsFor returns the subscriptions that should hear about an alert
// at location. Subscriptions without a location scope hear everything; an
// empty location reaches every subscription.
func (s *gormStore) SubscriptionsFor(ctx context.Context, location string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	q := s.db.WithContext(ctx).Model(&model.PushSubscription{})
	if location != "" {
		q = q.Where(
			"NOT EXISTS (SELECT 1 FROM subscription_locations sl WHERE sl.endpoint = push_subscriptions.endpoint) "+
				"OR EXISTS (SELECT 1 FROM subscription_locations sl WHERE sl.endpoint = push_subscriptions.endpoint AND sl.location = ?)",
			location)
	}
	if err := q.Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions for %q: %w", location, err)
	}
	return subs, nil
}
