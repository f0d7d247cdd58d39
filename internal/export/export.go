// Package export renders presence records as CSV tables and PDF reports.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"campus-access-backend/internal/model"
)

// ErrNoData is returned when there is nothing to export. No output is written.
var ErrNoData = errors.New("no records to export")

const (
	StatusCompleted = "Completed"
	StatusActive    = "Active"

	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// Header names the exported columns in order.
var Header = []string{"Name", "USN", "Entry Time", "Exit Time", "Date", "Status"}

// Range bounds an export by calendar day of entry, inclusive at both ends.
// A zero bound is open.
type Range struct {
	Start time.Time
	End   time.Time
}

func (r Range) bounded() bool {
	return !r.Start.IsZero() || !r.End.IsZero()
}

// Row is one exported record.
type Row struct {
	Name      string
	USN       string
	EntryTime string
	ExitTime  string
	Date      string
	Status    string
}

func (r Row) fields() []string {
	return []string{r.Name, r.USN, r.EntryTime, r.ExitTime, r.Date, r.Status}
}

// Filter keeps the records whose entry falls on a day within r, evaluated in
// tz. Records without an entry are dropped when r has any bound.
func Filter(records []model.PresenceRecord, r Range, tz *time.Location) []model.PresenceRecord {
	if !r.bounded() {
		return records
	}
	var startDay, endDay string
	if !r.Start.IsZero() {
		startDay = r.Start.In(tz).Format(dateLayout)
	}
	if !r.End.IsZero() {
		endDay = r.End.In(tz).Format(dateLayout)
	}

	out := make([]model.PresenceRecord, 0, len(records))
	for _, rec := range records {
		if rec.EntryTime == nil {
			continue
		}
		day := rec.EntryTime.In(tz).Format(dateLayout)
		if startDay != "" && day < startDay {
			continue
		}
		if endDay != "" && day > endDay {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Rows formats records in tz. Exit-only records take their date from the exit.
func Rows(records []model.PresenceRecord, tz *time.Location) []Row {
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		row := Row{
			Name:   rec.Student.Name,
			USN:    rec.StudentUSN,
			Status: StatusActive,
		}
		if rec.EntryTime != nil {
			entry := rec.EntryTime.In(tz)
			row.EntryTime = entry.Format(timeLayout)
			row.Date = entry.Format(dateLayout)
		}
		if rec.ExitTime != nil {
			exit := rec.ExitTime.In(tz)
			row.ExitTime = exit.Format(timeLayout)
			row.Status = StatusCompleted
			if row.Date == "" {
				row.Date = exit.Format(dateLayout)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// WriteCSV writes a header line and one line per row.
func WriteCSV(w io.Writer, rows []Row) error {
	if len(rows) == 0 {
		return ErrNoData
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row.fields()); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Filename builds the download name for a location export.
func Filename(location model.Location, ext string, at time.Time) string {
	return fmt.Sprintf("%s_records_%s.%s", location, at.Format("20060102_150405"), ext)
}
