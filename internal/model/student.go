package model

import "time"

// Student is the identity an NFC tag is bound to.
type Student struct {
	USN             string    `gorm:"primaryKey;size:32" json:"usn"`
	Name            string    `gorm:"size:256;not null" json:"name"`
	ContactNo       string    `gorm:"size:32" json:"contact_no"`
	BloodGroup      string    `gorm:"size:8" json:"blood_group"`
	Address         string    `json:"address"`
	ImageKey        string    `gorm:"size:512" json:"image_key"`
	StayingAtHostel bool      `gorm:"not null;default:false" json:"staying_at_hostel"`
	ValidFrom       time.Time `json:"valid_from"`
	ValidUpto       time.Time `gorm:"not null" json:"valid_upto"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ValidAt reports whether t falls within the inclusive validity window.
func (s Student) ValidAt(t time.Time) bool {
	return !t.Before(s.ValidFrom) && !t.After(s.ValidUpto)
}
