package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campus-access-backend/internal/alert"
	"campus-access-backend/internal/auth"
)

// PostAlert raises an alert on behalf of the signed-in operator.
func (h *Handler) PostAlert(c *gin.Context) {
	var in alert.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if claims, ok := auth.ClaimsFrom(c); ok {
		in.CreatedBy = claims.Subject
	}

	a, err := h.Alerts.Submit(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// GetAlerts lists the newest alerts.
func (h *Handler) GetAlerts(c *gin.Context) {
	alerts, err := h.Alerts.List(c.Request.Context(), queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}
