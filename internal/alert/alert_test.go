package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-access-backend/config"
	"campus-access-backend/internal/db"
	"campus-access-backend/internal/model"
	"campus-access-backend/internal/store"
)

// mockStore is a mock implementation of the Store interface.
type mockStore struct {
	CreateAlertFunc func(ctx context.Context, alert *model.Alert) error
	created         []model.Alert
}

func (m *mockStore) CreateAlert(ctx context.Context, alert *model.Alert) error {
	if m.CreateAlertFunc != nil {
		if err := m.CreateAlertFunc(ctx, alert); err != nil {
			return err
		}
	}
	m.created = append(m.created, *alert)
	return nil
}

func (m *mockStore) ListAlerts(ctx context.Context, limit int) ([]model.Alert, error) {
	return m.created, nil
}

// mockPublisher records broadcasts.
type mockPublisher struct {
	err    error
	raised []model.Alert
}

func (m *mockPublisher) AlertRaised(ctx context.Context, alert model.Alert) error {
	m.raised = append(m.raised, alert)
	return m.err
}

func TestService_SubmitValidation(t *testing.T) {
	testCases := []struct {
		name         string
		in           Input
		wantErr      bool
		wantSeverity model.Severity
	}{
		{name: "defaults severity to medium", in: Input{Type: "fire", Description: "Smoke in lab 3"}, wantSeverity: model.SeverityMedium},
		{name: "keeps explicit severity", in: Input{Type: "Medical", Severity: "CRITICAL", Description: "Student fainted"}, wantSeverity: model.SeverityCritical},
		{name: "unknown type", in: Input{Type: "flood", Description: "water"}, wantErr: true},
		{name: "missing type", in: Input{Description: "water"}, wantErr: true},
		{name: "unknown severity", in: Input{Type: "fire", Severity: "extreme", Description: "x"}, wantErr: true},
		{name: "blank description", in: Input{Type: "security", Description: "   "}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ms := &mockStore{}
			pub := &mockPublisher{}
			alert, err := NewService(ms, pub, nil).Submit(context.Background(), tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
				assert.Empty(t, ms.created)
				assert.Empty(t, pub.raised)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantSeverity, alert.Severity)
			assert.NotEmpty(t, alert.ID)
			assert.Len(t, pub.raised, 1)
		})
	}
}

func TestService_FailedWriteIsNotBroadcast(t *testing.T) {
	boom := errors.New("disk full")
	ms := &mockStore{CreateAlertFunc: func(ctx context.Context, alert *model.Alert) error { return boom }}
	pub := &mockPublisher{}

	_, err := NewService(ms, pub, nil).Submit(context.Background(), Input{Type: "fire", Description: "Smoke"})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, pub.raised)
}

func TestService_BroadcastFailureKeepsAlert(t *testing.T) {
	ms := &mockStore{}
	pub := &mockPublisher{err: errors.New("redis down")}

	alert, err := NewService(ms, pub, nil).Submit(context.Background(), Input{Type: "suspicious", Description: "Unattended bag", Location: " Gate 2 "})
	require.NoError(t, err)
	require.Len(t, ms.created, 1)
	require.NotNil(t, alert.Location)
	assert.Equal(t, "Gate 2", *alert.Location)
}

func TestService_ListNewestFirst(t *testing.T) {
	gormDB, err := db.Init(context.Background(), &config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)

	svc := NewService(store.NewGormStore(gormDB), nil, nil)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, desc := range []string{"first", "second", "third"} {
		svc.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		_, err := svc.Submit(context.Background(), Input{Type: "other", Description: desc, CreatedBy: "gate"})
		require.NoError(t, err)
	}

	alerts, err := svc.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, alerts, 3)
	assert.Equal(t, "third", alerts[0].Description)
	assert.Equal(t, "first", alerts[2].Description)
	assert.Equal(t, "gate", alerts[0].CreatedBy)
}
