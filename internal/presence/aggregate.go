package presence

import (
	"math"
	"time"

	"campus-access-backend/internal/model"
)

// DefaultCurfewHour is the local hour from which an entry counts as late.
const DefaultCurfewHour = 22

// Stats are the point-in-time counters of one location.
type Stats struct {
	DailyEntries  int     `json:"daily_entries"`
	Active        int     `json:"active"`
	Late          int     `json:"late"`
	Completed     int     `json:"completed"`
	OnTimePercent float64 `json:"on_time_percent"`
}

// Aggregate derives counters from a snapshot of records.
//
// DailyEntries counts entries on now's calendar day in tz. Active counts
// records with an entry and no exit, whatever their day. Late counts today's
// entries whose local hour is at or past curfewHour.
func Aggregate(records []model.PresenceRecord, now time.Time, tz *time.Location, curfewHour int) Stats {
	var s Stats
	today := StartOfDay(now, tz)

	for _, r := range records {
		if r.Open() {
			s.Active++
		}
		if r.EntryTime == nil || !StartOfDay(*r.EntryTime, tz).Equal(today) {
			continue
		}
		s.DailyEntries++
		if IsLate(*r.EntryTime, tz, curfewHour) {
			s.Late++
		}
		if r.ExitTime != nil {
			s.Completed++
		}
	}

	if s.DailyEntries > 0 {
		onTime := float64(s.DailyEntries-s.Late) * 100 / float64(s.DailyEntries)
		s.OnTimePercent = math.Round(onTime*10) / 10
	}
	return s
}

// IsLate reports whether an entry at t falls at or after the curfew hour.
func IsLate(t time.Time, tz *time.Location, curfewHour int) bool {
	return t.In(tz).Hour() >= curfewHour
}

// StartOfDay returns midnight of t's calendar day in tz.
func StartOfDay(t time.Time, tz *time.Location) time.Time {
	y, m, d := t.In(tz).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, tz)
}
