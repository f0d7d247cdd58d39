package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campus-access-backend/internal/presence"
	"campus-access-backend/internal/scansource"
)

type scanRequest struct {
	TagUID    string     `json:"tag_uid" binding:"required"`
	Intent    string     `json:"intent"`
	ScannedAt *time.Time `json:"scanned_at"`
	ReaderID  string     `json:"reader_id"`
}

// PostScan records a scan taken by a dashboard reader.
func (h *Handler) PostScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tag_uid is required"})
		return
	}

	scan := presence.Scan{
		TagUID:   req.TagUID,
		Location: location(c),
		At:       h.now(),
		Intent:   presence.Intent(req.Intent),
		ReaderID: req.ReaderID,
	}
	if scan.Intent == "" {
		scan.Intent = presence.IntentAuto
	}
	if req.ScannedAt != nil {
		scan.At = *req.ScannedAt
	}

	res, err := h.Ledger.RecordScan(c.Request.Context(), scan)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type browserScanRequest struct {
	TagUID    string     `json:"tag_uid" binding:"required"`
	ScannedAt *time.Time `json:"scanned_at"`
}

// PostBrowserScan feeds a Web-NFC read into the location's browser source.
// The outcome reaches the dashboard over the event stream.
func (h *Handler) PostBrowserScan(c *gin.Context) {
	var req browserScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tag_uid is required"})
		return
	}

	var relay *scansource.Browser
	ok := false
	if h.Relays != nil {
		relay, ok = h.Relays.Relay(location(c))
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no browser reader is configured for this location"})
		return
	}

	read := scansource.Read{TagUID: req.TagUID}
	if req.ScannedAt != nil {
		read.At = *req.ScannedAt
	}
	if err := relay.Submit(read); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// GetRecords lists the newest records of a location.
func (h *Handler) GetRecords(c *gin.Context) {
	limit := queryLimit(c)
	if limit == 0 {
		limit = h.RecentLimit
	}
	records, err := h.Ledger.ListRecent(c.Request.Context(), location(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// GetStats returns the live counters of a location.
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.Ledger.Stats(c.Request.Context(), location(c), h.now())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
