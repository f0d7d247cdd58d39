package model

import "time"

// TagStatus is the lifecycle state of an issued tag.
type TagStatus string

const (
	TagActive   TagStatus = "active"
	TagInactive TagStatus = "inactive"
)

// Tag is a physical NFC credential.
type Tag struct {
	UID        string     `gorm:"primaryKey;size:64" json:"uid"`
	StudentUSN string     `gorm:"size:32;not null;index" json:"student_usn"`
	Status     TagStatus  `gorm:"size:16;not null;index" json:"status"`
	AssignedAt time.Time  `gorm:"not null" json:"assigned_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`

	// Associations
	Student Student `gorm:"foreignKey:StudentUSN;references:USN;constraint:OnDelete:CASCADE" json:"-"`
}
