package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"campus-access-backend/config"
	"campus-access-backend/internal/alert"
	"campus-access-backend/internal/auth"
	"campus-access-backend/internal/broker"
	"campus-access-backend/internal/db"
	"campus-access-backend/internal/library"
	"campus-access-backend/internal/metrics"
	"campus-access-backend/internal/model"
	"campus-access-backend/internal/notification"
	"campus-access-backend/internal/photos"
	"campus-access-backend/internal/presence"
	"campus-access-backend/internal/registry"
	"campus-access-backend/internal/scansource"
	"campus-access-backend/internal/store"
)

const testSigningKey = "test-signing-key"

// relayMap is a fixed set of browser relays.
type relayMap map[model.Location]*scansource.Browser

func (m relayMap) Relay(location model.Location) (*scansource.Browser, bool) {
	b, ok := m[location]
	return b, ok
}

// fakeObjects presigns fake URLs.
type fakeObjects struct{}

func (fakeObjects) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	return "https://photos.test/" + key + "?put", nil
}

func (fakeObjects) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://photos.test/" + key, nil
}

func (fakeObjects) Delete(ctx context.Context, key string) error { return nil }

type testEnv struct {
	router *gin.Engine
	store  store.Store
	broker *broker.InMemory
	reads  chan scansource.Read
	relay  *scansource.Browser
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	gormDB, err := db.Init(ctx, &config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	s := store.NewGormStore(gormDB)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, auth.SeedOperators(ctx, s, []config.SeedUserConf{
		{Username: "gate-desk", PasswordHash: string(hash), Role: "gate"},
	}))

	events := broker.NewInMemory()
	notifier := notification.NewNotifier(events, nil)
	meters := metrics.New()
	tags := registry.New(s, 0)
	ledger := presence.NewLedger(s, tags, presence.Options{
		Timezone:  time.UTC,
		Publisher: notifier,
		Observer:  meters,
	})

	env := &testEnv{store: s, broker: events, reads: make(chan scansource.Read, 8)}
	env.relay = scansource.NewBrowser(true)
	require.NoError(t, env.relay.Start(ctx, func(r scansource.Read) { env.reads <- r }))
	t.Cleanup(env.relay.Stop)

	env.router = NewRouter(Deps{
		Store:    s,
		Ledger:   ledger,
		Registry: tags,
		Alerts:   alert.NewService(s, notifier, meters),
		Library:  library.NewService(s, tags),
		Photos:   photos.NewService(fakeObjects{}, tags, time.Minute),
		Broker:   events,
		Verifier: auth.NewStoreVerifier(s),
		Relays:   relayMap{model.LocationGate: env.relay},
		Metrics:  meters.Handler(),
		Auth: config.AuthConfig{
			SigningKey: testSigningKey,
			Issuer:     "campus-access",
			SessionTTL: time.Hour,
		},
		Server: config.ServerConfig{
			RateLimitPerSec: 1000,
			RateLimitBurst:  1000,
			CacheTTLSeconds: 30,
		},
		Heartbeat: time.Hour,
	})
	return env
}

func (e *testEnv) token(t *testing.T, role string) string {
	t.Helper()
	token, _, err := auth.Issue(auth.Principal{Username: role + "-op", Role: role}, "campus-access", testSigningKey, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// enroll registers a student and issues a tag through the API.
func (e *testEnv) enroll(t *testing.T, usn, uid string) {
	t.Helper()
	admin := e.token(t, auth.RoleAdmin)
	w := e.do(http.MethodPut, "/api/students/"+usn, admin, gin.H{
		"name":       "Asha Rao",
		"contact_no": "9845000001",
		"valid_upto": "2099-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(http.MethodPost, "/api/tags", admin, gin.H{"uid": uid, "usn": usn})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	testCases := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{name: "valid credentials", body: gin.H{"username": "gate-desk", "password": "s3cret-pass"}, wantStatus: http.StatusOK},
		{name: "wrong password", body: gin.H{"username": "gate-desk", "password": "nope-nope"}, wantStatus: http.StatusUnauthorized},
		{name: "unknown user", body: gin.H{"username": "ghost", "password": "s3cret-pass"}, wantStatus: http.StatusUnauthorized},
		{name: "missing fields", body: gin.H{"username": "gate-desk"}, wantStatus: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/login", "", tc.body)
			assert.Equal(t, tc.wantStatus, w.Code)
			if tc.wantStatus != http.StatusOK {
				return
			}

			var resp struct {
				Token string `json:"token"`
				Role  string `json:"role"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "gate", resp.Role)
			claims, err := auth.Parse(resp.Token, testSigningKey, "campus-access")
			require.NoError(t, err)
			assert.Equal(t, "gate-desk", claims.Subject)
		})
	}
}

func TestRouter_AccessControl(t *testing.T) {
	env := newTestEnv(t)

	testCases := []struct {
		name       string
		method     string
		path       string
		role       string
		wantStatus int
	}{
		{name: "no session", method: http.MethodGet, path: "/api/locations/gate/stats", wantStatus: http.StatusUnauthorized},
		{name: "own location", method: http.MethodGet, path: "/api/locations/gate/stats", role: "gate", wantStatus: http.StatusOK},
		{name: "other location", method: http.MethodGet, path: "/api/locations/hostel/stats", role: "gate", wantStatus: http.StatusForbidden},
		{name: "unknown location", method: http.MethodGet, path: "/api/locations/canteen/stats", role: auth.RoleAdmin, wantStatus: http.StatusNotFound},
		{name: "admin anywhere", method: http.MethodGet, path: "/api/locations/hostel/stats", role: auth.RoleAdmin, wantStatus: http.StatusOK},
		{name: "library desk only", method: http.MethodGet, path: "/api/library/books", role: "gate", wantStatus: http.StatusForbidden},
		{name: "library role", method: http.MethodGet, path: "/api/library/books", role: "library", wantStatus: http.StatusOK},
		{name: "health is public", method: http.MethodGet, path: "/healthz", wantStatus: http.StatusOK},
		{name: "metrics are public", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			token := ""
			if tc.role != "" {
				token = env.token(t, tc.role)
			}
			w := env.do(tc.method, tc.path, token, nil)
			assert.Equal(t, tc.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestScans_EntryExitAndStats(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, "CS21001", "NFC001ABC123")
	token := env.token(t, "gate")

	scan := func(intent string) presence.Result {
		t.Helper()
		w := env.do(http.MethodPost, "/api/locations/gate/scans", token, gin.H{"tag_uid": "NFC001ABC123", "intent": intent})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var res presence.Result
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		return res
	}

	res := scan("entry")
	assert.Equal(t, presence.Admitted, res.Outcome)
	assert.Equal(t, presence.ActionEntry, res.Action)
	require.NotNil(t, res.Student)
	assert.Equal(t, "Asha Rao", res.Student.Name)

	res = scan("entry")
	assert.Equal(t, presence.Denied, res.Outcome)
	assert.Equal(t, presence.ReasonAlreadyOpen, res.Reason)

	res = scan("exit")
	assert.Equal(t, presence.Admitted, res.Outcome)
	assert.Equal(t, presence.ActionExit, res.Action)

	w := env.do(http.MethodGet, "/api/locations/gate/records?limit=10", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Records []model.PresenceRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Records, 1)
	assert.NotNil(t, list.Records[0].ExitTime)

	w = env.do(http.MethodGet, "/api/locations/gate/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats presence.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.DailyEntries)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 0, stats.Active)

	// An unknown tag is a denial, not an error.
	w = env.do(http.MethodPost, "/api/locations/gate/scans", token, gin.H{"tag_uid": "NFC999"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(presence.ReasonTagNotFound))
}

func TestScans_BadRequests(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "gate")

	testCases := []struct {
		name string
		body any
	}{
		{name: "missing tag", body: gin.H{"intent": "entry"}},
		{name: "unknown intent", body: gin.H{"tag_uid": "NFC001", "intent": "teleport"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/locations/gate/scans", token, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestBrowserScans(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/locations/gate/browser-scans", env.token(t, "gate"), gin.H{"tag_uid": " NFC002DEF456 "})
	require.Equal(t, http.StatusAccepted, w.Code)
	select {
	case read := <-env.reads:
		assert.Equal(t, "NFC002DEF456", read.TagUID)
		assert.False(t, read.At.IsZero())
	case <-time.After(time.Second):
		t.Fatal("relay did not receive the read")
	}

	w = env.do(http.MethodPost, "/api/locations/library/browser-scans", env.token(t, "library"), gin.H{"tag_uid": "NFC002DEF456"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.relay.Stop()
	w = env.do(http.MethodPost, "/api/locations/gate/browser-scans", env.token(t, "gate"), gin.H{"tag_uid": "NFC002DEF456"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, "CS21001", "NFC001ABC123")
	token := env.token(t, auth.RoleAdmin)

	w := env.do(http.MethodPost, "/api/locations/gate/scans", token, gin.H{"tag_uid": "NFC001ABC123", "intent": "entry"})
	require.Equal(t, http.StatusOK, w.Code)
	today := time.Now().UTC().Format(time.DateOnly)

	t.Run("csv", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/locations/gate/export?format=csv&start="+today+"&end="+today, token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Disposition"), "gate_records_")
		lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, "Name,USN,Entry Time,Exit Time,Date,Status", strings.TrimSpace(lines[0]))
		assert.Contains(t, lines[1], "Asha Rao,CS21001,")
		assert.Contains(t, lines[1], "Active")
	})

	t.Run("pdf", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/locations/gate/export?format=pdf", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
	})

	t.Run("nothing to export", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/locations/hostel/export", token, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"message":"no records to export"}`, w.Body.String())
		assert.Empty(t, w.Header().Get("Content-Disposition"))
	})

	t.Run("bad input", func(t *testing.T) {
		for _, q := range []string{"format=xlsx", "start=yesterday", "start=2024-03-02&end=2024-03-01"} {
			w := env.do(http.MethodGet, "/api/locations/gate/export?"+q, token, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, q)
		}
	})
}

func TestAlerts(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "hostel")

	w := env.do(http.MethodPost, "/api/alerts", token, gin.H{
		"alert_type":  "medical",
		"severity":    "high",
		"description": "Student fainted near block B",
		"location":    "hostel",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created model.Alert
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "hostel-op", created.CreatedBy)

	w = env.do(http.MethodPost, "/api/alerts", token, gin.H{"alert_type": "ufo", "description": "lights"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/alerts", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Alerts []model.Alert `json:"alerts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Alerts, 1)
	assert.Equal(t, created.ID, list.Alerts[0].ID)
}

func TestLibraryBooks(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, "CS21001", "NFC001ABC123")
	token := env.token(t, "library")

	w := env.do(http.MethodPost, "/api/library/books", token, gin.H{"tag_uid": "NFC001ABC123", "book_id": "ISBN-978-0134190440"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var loan model.BookTransaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loan))

	testCases := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
	}{
		{name: "book already out", method: http.MethodPost, path: "/api/library/books", body: gin.H{"tag_uid": "NFC001ABC123", "book_id": "ISBN-978-0134190440"}, wantStatus: http.StatusConflict},
		{name: "unknown tag", method: http.MethodPost, path: "/api/library/books", body: gin.H{"tag_uid": "NFC999", "book_id": "ISBN-1"}, wantStatus: http.StatusNotFound},
		{name: "bad loan id", method: http.MethodPost, path: "/api/library/books/abc/return", wantStatus: http.StatusBadRequest},
		{name: "return", method: http.MethodPost, path: fmt.Sprintf("/api/library/books/%d/return", loan.ID), wantStatus: http.StatusOK},
		{name: "return twice", method: http.MethodPost, path: fmt.Sprintf("/api/library/books/%d/return", loan.ID), wantStatus: http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(tc.method, tc.path, token, tc.body)
			assert.Equal(t, tc.wantStatus, w.Code, w.Body.String())
		})
	}

	w = env.do(http.MethodGet, "/api/library/books?usn=CS21001", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"returned"`)
}

func TestStudents(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, "CS21001", "NFC001ABC123")
	token := env.token(t, "gate")
	admin := env.token(t, auth.RoleAdmin)

	w := env.do(http.MethodGet, "/api/students/CS21001", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tags":["NFC001ABC123"]`)

	w = env.do(http.MethodGet, "/api/students?q=asha", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "CS21001")

	// Updates are visible straight away despite the response cache.
	w = env.do(http.MethodPut, "/api/students/CS21001", admin, gin.H{"name": "Asha R. Rao", "valid_upto": "2099-01-01T00:00:00Z"})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodGet, "/api/students/CS21001", token, nil)
	assert.Contains(t, w.Body.String(), "Asha R. Rao")

	w = env.do(http.MethodPut, "/api/students/CS21002", admin, gin.H{"name": "Ravi", "valid_upto": "2099-01-01T00:00:00Z", "valid_from": "2100-01-01T00:00:00Z"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/students/NOPE", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, "/api/tags/NFC001ABC123", admin, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(http.MethodDelete, "/api/tags/NFC001ABC123", admin, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStudentPhotos(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, "CS21001", "NFC001ABC123")
	token := env.token(t, auth.RoleAdmin)

	w := env.do(http.MethodGet, "/api/students/CS21001/photo", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/students/CS21001/photo", token, gin.H{"content_type": "image/gif"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/api/students/CS21001/photo", token, gin.H{"content_type": "image/png"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var upload photos.Upload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &upload))
	assert.True(t, strings.HasPrefix(upload.Key, "students/CS21001-"))
	assert.True(t, strings.HasSuffix(upload.Key, ".png"))

	w = env.do(http.MethodGet, "/api/students/CS21001/photo", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), upload.Key)

	w = env.do(http.MethodDelete, "/api/students/CS21001/photo", token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok"}`, w.Body.String())
}
