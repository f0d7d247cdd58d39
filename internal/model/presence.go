package model

import "time"

// PresenceRecord is one entry/exit session of a tag at a location.
// A record is open while EntryTime is set and ExitTime is not.
type PresenceRecord struct {
	ID         int64      `gorm:"primaryKey" json:"id"`
	Location   Location   `gorm:"size:16;not null;index:idx_presence_key,priority:1" json:"location"`
	TagUID     string     `gorm:"size:64;not null;index:idx_presence_key,priority:2" json:"tag_uid"`
	StudentUSN string     `gorm:"size:32;not null;index" json:"student_usn"`
	EntryTime  *time.Time `gorm:"index" json:"entry_time"`
	ExitTime   *time.Time `json:"exit_time"`
	ReaderID   string     `gorm:"size:64" json:"reader_id,omitempty"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`

	// Associations
	Student Student `gorm:"foreignKey:StudentUSN;references:USN" json:"student"`
}

// Open reports whether the record still awaits its exit scan.
func (r PresenceRecord) Open() bool {
	return r.EntryTime != nil && r.ExitTime == nil
}
