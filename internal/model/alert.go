package model

import "time"

// AlertType classifies an emergency alert.
type AlertType string

const (
	AlertSecurity   AlertType = "security"
	AlertMedical    AlertType = "medical"
	AlertFire       AlertType = "fire"
	AlertEvacuation AlertType = "evacuation"
	AlertSuspicious AlertType = "suspicious"
	AlertOther      AlertType = "other"
)

// Severity ranks an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert is an operator-submitted broadcast. Rows are never updated.
type Alert struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Type        AlertType `gorm:"size:16;not null" json:"alert_type"`
	Severity    Severity  `gorm:"size:16;not null" json:"severity"`
	Description string    `gorm:"not null" json:"description"`
	Location    *string   `gorm:"size:128" json:"location,omitempty"`
	CreatedBy   string    `gorm:"size:64;not null" json:"created_by"`
	CreatedAt   time.Time `gorm:"not null;index" json:"created_at"`
}
