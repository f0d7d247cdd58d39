package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"campus-access-backend/internal/export"
	"campus-access-backend/internal/model"
)

// exportWindow caps an unbounded export.
const exportWindow = 500

// GetExport downloads a location's records as CSV or PDF. start and end are
// calendar days (YYYY-MM-DD) in the ledger's zone; either may be omitted.
func (h *Handler) GetExport(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", "csv"))
	if format != "csv" && format != "pdf" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv or pdf"})
		return
	}

	tz := h.Ledger.Timezone()
	rng, err := parseRange(c.Query("start"), c.Query("end"), tz)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	loc := location(c)
	now := h.now()
	var records []model.PresenceRecord
	if !rng.Start.IsZero() {
		end := rng.End
		if end.IsZero() {
			end = now
		}
		records, err = h.Ledger.RecordsForDays(c.Request.Context(), loc, rng.Start, end)
	} else {
		records, err = h.Ledger.ListRecent(c.Request.Context(), loc, exportWindow)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	rows := export.Rows(export.Filter(records, rng, tz), tz)

	var buf bytes.Buffer
	contentType := "text/csv; charset=utf-8"
	if format == "pdf" {
		contentType = "application/pdf"
		err = export.WritePDF(&buf, export.Report{
			Title:       fmt.Sprintf("%s records", strings.ToUpper(string(loc[:1]))+string(loc[1:])),
			GeneratedAt: now.In(tz),
			Rows:        rows,
		})
	} else {
		err = export.WriteCSV(&buf, rows)
	}
	if errors.Is(err, export.ErrNoData) {
		c.JSON(http.StatusOK, gin.H{"message": err.Error()})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	filename := export.Filename(loc, format, now.In(tz))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func parseRange(start, end string, tz *time.Location) (export.Range, error) {
	var r export.Range
	var err error
	if start != "" {
		if r.Start, err = time.ParseInLocation(time.DateOnly, start, tz); err != nil {
			return export.Range{}, fmt.Errorf("invalid start date %q", start)
		}
	}
	if end != "" {
		if r.End, err = time.ParseInLocation(time.DateOnly, end, tz); err != nil {
			return export.Range{}, fmt.Errorf("invalid end date %q", end)
		}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return export.Range{}, errors.New("end date precedes start date")
	}
	return r, nil
}
