package model

import "time"

// PushSubscription holds the information for a browser push subscription.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Locations []SubscriptionLocation `gorm:"foreignKey:Endpoint;references:Endpoint;constraint:OnDelete:CASCADE"`
}

// SubscriptionLocation scopes a push subscription to the alerts of one location.
type SubscriptionLocation struct {
	Endpoint string   `gorm:"primaryKey"`
	Location Location `gorm:"primaryKey;size:16"`
}
