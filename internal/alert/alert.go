// Package alert accepts operator emergency alerts, stores them and hands
// them to the notifier.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"campus-access-backend/internal/model"
)

// ErrInvalid marks a rejected submission.
var ErrInvalid = errors.New("invalid alert")

// Store persists alerts.
type Store interface {
	CreateAlert(ctx context.Context, alert *model.Alert) error
	ListAlerts(ctx context.Context, limit int) ([]model.Alert, error)
}

// Publisher broadcasts stored alerts.
type Publisher interface {
	AlertRaised(ctx context.Context, alert model.Alert) error
}

// Observer counts submitted alerts.
type Observer interface {
	ObserveAlert(alert model.Alert)
}

// Input is an operator's submission.
type Input struct {
	Type        string `json:"alert_type"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Location    string `json:"location"`
	CreatedBy   string `json:"-"`
}

// Service stores alerts and broadcasts them to dashboards and push subscribers.
type Service struct {
	store     Store
	publisher Publisher
	observer  Observer
	now       func() time.Time
}

// NewService creates the alert service. publisher and observer may be nil.
func NewService(s Store, publisher Publisher, observer Observer) *Service {
	return &Service{store: s, publisher: publisher, observer: observer, now: time.Now}
}

// Submit validates and stores an alert, then broadcasts it. Nothing is
// broadcast when the write fails. A failed broadcast is logged; the alert
// stays stored and listed.
func (s *Service) Submit(ctx context.Context, in Input) (model.Alert, error) {
	alert, err := s.build(in)
	if err != nil {
		return model.Alert{}, err
	}

	if err := s.store.CreateAlert(ctx, &alert); err != nil {
		return model.Alert{}, err
	}
	if s.observer != nil {
		s.observer.ObserveAlert(alert)
	}

	if s.publisher != nil {
		if err := s.publisher.AlertRaised(ctx, alert); err != nil {
			log.Printf("Failed to broadcast alert %s: %v", alert.ID, err)
		}
	}
	return alert, nil
}

func (s *Service) build(in Input) (model.Alert, error) {
	alertType := model.AlertType(strings.ToLower(strings.TrimSpace(in.Type)))
	if !validType(alertType) {
		return model.Alert{}, fmt.Errorf("%w: unknown alert type %q", ErrInvalid, in.Type)
	}

	severity := model.Severity(strings.ToLower(strings.TrimSpace(in.Severity)))
	if severity == "" {
		severity = model.SeverityMedium
	}
	if !validSeverity(severity) {
		return model.Alert{}, fmt.Errorf("%w: unknown severity %q", ErrInvalid, in.Severity)
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		return model.Alert{}, fmt.Errorf("%w: description is required", ErrInvalid)
	}

	alert := model.Alert{
		ID:          uuid.NewString(),
		Type:        alertType,
		Severity:    severity,
		Description: description,
		CreatedBy:   in.CreatedBy,
		CreatedAt:   s.now().UTC(),
	}
	if loc := strings.TrimSpace(in.Location); loc != "" {
		alert.Location = &loc
	}
	return alert, nil
}

// List returns the newest alerts first.
func (s *Service) List(ctx context.Context, limit int) ([]model.Alert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListAlerts(ctx, limit)
}

func validType(t model.AlertType) bool {
	switch t {
	case model.AlertSecurity, model.AlertMedical, model.AlertFire,
		model.AlertEvacuation, model.AlertSuspicious, model.AlertOther:
		return true
	}
	return false
}

func validSeverity(s model.Severity) bool {
	switch s {
	case model.SeverityLow, model.SeverityMedium, model.SeverityHigh, model.SeverityCritical:
		return true
	}
	return false
}
