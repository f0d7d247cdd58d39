package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-access-backend/internal/broker"
	"campus-access-backend/internal/model"
	"campus-access-backend/internal/notification"
	"campus-access-backend/internal/registry"
)

func eventMessage(t *testing.T, topic string, event notification.Event) broker.Message {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return broker.Message{Topic: topic, Body: body}
}

func TestRoute(t *testing.T) {
	gateAlert := notification.Event{Type: notification.EventAlert, Location: "gate"}
	globalAlert := notification.Event{Type: notification.EventAlert}
	presence := notification.Event{Type: notification.EventPresence, Location: "gate"}

	testCases := []struct {
		name        string
		msg         broker.Message
		wantName    string
		wantForward bool
	}{
		{name: "own presence", msg: eventMessage(t, "gate", presence), wantName: "presence", wantForward: true},
		{name: "other location", msg: eventMessage(t, "hostel", presence)},
		{name: "global alert", msg: eventMessage(t, notification.AlertsTopic, globalAlert), wantName: "alert", wantForward: true},
		{name: "own alert on the alerts topic", msg: eventMessage(t, notification.AlertsTopic, gateAlert)},
		{name: "own alert on the location topic", msg: eventMessage(t, "gate", gateAlert), wantName: "alert", wantForward: true},
		{name: "malformed body", msg: broker.Message{Topic: "gate", Body: []byte("{")}},
		{name: "registry invalidation", msg: broker.Message{Topic: registry.InvalidationTopic, Body: []byte("instance-a")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			name, forward := route("gate", tc.msg)
			assert.Equal(t, tc.wantForward, forward)
			if tc.wantForward {
				assert.Equal(t, tc.wantName, name)
			}
		})
	}
}

type sseEvent struct {
	name string
	data string
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if ev.name != "" {
				return ev
			}
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			ev.data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func TestStreamEvents(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/locations/gate/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+env.token(t, "gate"))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	reader := bufio.NewReader(resp.Body)
	require.Equal(t, "ready", readEvent(t, reader).name)

	libraryLoc := "library"
	gateLoc := "gate"
	publish := func(topic string, event notification.Event) {
		require.NoError(t, env.broker.Publish(ctx, eventMessage(t, topic, event)))
	}
	publish("hostel", notification.Event{ID: "p-hostel", Type: notification.EventPresence, Location: "hostel"})
	publish("gate", notification.Event{ID: "p-gate", Type: notification.EventPresence, Location: "gate"})
	publish(notification.AlertsTopic, notification.Event{ID: "a-library", Type: notification.EventAlert, Location: libraryLoc, Alert: &model.Alert{Location: &libraryLoc}})
	publish(notification.AlertsTopic, notification.Event{ID: "a-gate", Type: notification.EventAlert, Location: gateLoc, Alert: &model.Alert{Location: &gateLoc}})
	publish("gate", notification.Event{ID: "a-gate", Type: notification.EventAlert, Location: gateLoc, Alert: &model.Alert{Location: &gateLoc}})

	want := []struct{ name, id string }{
		{"presence", "p-gate"},
		{"alert", "a-library"},
		{"alert", "a-gate"},
	}
	for _, w := range want {
		ev := readEvent(t, reader)
		assert.Equal(t, w.name, ev.name)
		var body notification.Event
		require.NoError(t, json.Unmarshal([]byte(ev.data), &body))
		assert.Equal(t, w.id, body.ID)
	}
}
