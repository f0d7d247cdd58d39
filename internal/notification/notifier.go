// Package notification tells dashboards about presence changes and alerts,
// over the event broker and over web push.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"campus-access-backend/internal/broker"
	"campus-access-backend/internal/model"
	"campus-access-backend/internal/presence"
)

// AlertsTopic carries every alert regardless of location.
const AlertsTopic = "alerts"

// EventType distinguishes broker events.
type EventType string

const (
	EventPresence EventType = "presence"
	EventAlert    EventType = "alert"
)

// Event is the JSON body published on the broker and streamed to dashboards.
type Event struct {
	ID       string                `json:"id"`
	Type     EventType             `json:"type"`
	Location string                `json:"location,omitempty"`
	Action   presence.Action       `json:"action,omitempty"`
	Student  *model.Student        `json:"student,omitempty"`
	Record   *model.PresenceRecord `json:"record,omitempty"`
	Alert    *model.Alert          `json:"alert,omitempty"`
	At       time.Time             `json:"at"`
}

// pushPayload is what the service worker receives.
type pushPayload struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Location string `json:"location,omitempty"`
	AlertID  string `json:"alert_id"`
}

// Notifier publishes presence changes and alerts.
type Notifier struct {
	broker broker.Broker
	pool   *WorkerPool
	now    func() time.Time
}

// NewNotifier creates a notifier. A nil pool disables web push.
func NewNotifier(b broker.Broker, pool *WorkerPool) *Notifier {
	return &Notifier{broker: b, pool: pool, now: time.Now}
}

// PresenceChanged publishes an admitted scan on its location's topic.
func (n *Notifier) PresenceChanged(ctx context.Context, change presence.Change) error {
	student := change.Student
	record := change.Record
	record.Student = model.Student{}
	return n.publish(ctx, string(change.Location), Event{
		ID:       uuid.NewString(),
		Type:     EventPresence,
		Location: string(change.Location),
		Action:   change.Action,
		Student:  &student,
		Record:   &record,
		At:       n.now().UTC(),
	})
}

// AlertRaised publishes an alert on the alerts topic, on its location's topic
// when the location names a tracked site, and queues web push to the
// subscriptions scoped to it.
func (n *Notifier) AlertRaised(ctx context.Context, alert model.Alert) error {
	event := Event{
		ID:    uuid.NewString(),
		Type:  EventAlert,
		Alert: &alert,
		At:    n.now().UTC(),
	}
	scope := alertScope(alert)
	if scope != "" {
		event.Location = scope
	}

	if err := n.publish(ctx, AlertsTopic, event); err != nil {
		return err
	}
	if scope != "" {
		if err := n.publish(ctx, scope, event); err != nil {
			return err
		}
	}

	if n.pool == nil {
		return nil
	}
	payload, err := json.Marshal(pushPayload{
		Title:    fmt.Sprintf("%s alert (%s)", strings.ToUpper(string(alert.Type)), alert.Severity),
		Body:     alert.Description,
		Location: derefString(alert.Location),
		AlertID:  alert.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}
	return n.pool.Dispatch(ctx, Job{Scope: scope, Payload: payload})
}

func (n *Notifier) publish(ctx context.Context, topic string, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := n.broker.Publish(ctx, broker.Message{Topic: topic, Body: body}); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

// alertScope returns the tracked location an alert belongs to, or "" when
// it concerns everyone.
func alertScope(alert model.Alert) string {
	if alert.Location == nil {
		return ""
	}
	loc := model.Location(strings.ToLower(strings.TrimSpace(*alert.Location)))
	if !loc.Valid() {
		return ""
	}
	return string(loc)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
