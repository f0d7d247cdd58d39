package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campus-access-backend/internal/broker"
	"campus-access-backend/internal/notification"
)

// StreamEvents pushes a location's presence changes and every alert to a
// dashboard as server-sent events. Alerts scoped to the location arrive on
// both topics and are sent once.
func (h *Handler) StreamEvents(c *gin.Context) {
	loc := string(location(c))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	msgs, err := h.Broker.Subscribe(ctx)
	if err != nil {
		log.Printf("Failed to subscribe to events for %s: %v", loc, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream unavailable"})
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"location": loc})
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.Heartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-h.Done:
			return false
		case <-heartbeat.C:
			c.SSEvent("ping", h.now().UTC().Format(time.RFC3339))
			return true
		case msg, ok := <-msgs:
			if !ok {
				return false
			}
			if name, forward := route(loc, msg); forward {
				c.SSEvent(name, json.RawMessage(msg.Body))
			}
			return true
		}
	})
}

// route decides whether msg belongs on the stream of loc and names the event.
func route(loc string, msg broker.Message) (string, bool) {
	if msg.Topic != loc && msg.Topic != notification.AlertsTopic {
		return "", false
	}
	var head struct {
		Type     notification.EventType `json:"type"`
		Location string                 `json:"location"`
	}
	if err := json.Unmarshal(msg.Body, &head); err != nil {
		log.Printf("Dropping malformed event on %q: %v", msg.Topic, err)
		return "", false
	}
	if msg.Topic == notification.AlertsTopic {
		return string(head.Type), head.Location != loc
	}
	return string(head.Type), true
}
