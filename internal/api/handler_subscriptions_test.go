package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSubscriptionRouter() *gin.Engine {
	r := gin.Default()
	handler := NewHandler(Deps{})
	r.PUT("/api/subscriptions", handler.PutSubscription)
	r.GET("/api/vapid_public_key", handler.GetVAPIDPublicKey)
	return r
}

func TestPutSubscription(t *testing.T) {
	router := setupSubscriptionRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/subscriptions", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())
}

func TestGetVAPIDPublicKey_NotConfigured(t *testing.T) {
	router := setupSubscriptionRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/vapid_public_key", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSubscriptionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	endpoint := "https://fcm.googleapis.com/fcm/send/abc%3D123"

	w := env.do(http.MethodPut, "/api/subscriptions", "", gin.H{
		"endpoint":  endpoint,
		"p256dh":    "BNcRdreALRFXTkOOUHK1EtK2wtaz5Ry4YfYCA_0QTpQtUbVlUls0VJXg7A8u-Ts1XbjhazAkj7I99e8QcYP7DkM",
		"auth":      "tBHItJI5svbpez7KI4CCXg",
		"locations": []string{"Gate", "hostel"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	get := func() *httptest.ResponseRecorder {
		// The endpoint is matched verbatim, so it is sent without decoding.
		return env.do(http.MethodGet, "/api/subscriptions?endpoint="+endpoint, "", nil)
	}
	w = get()
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"locations":["gate","hostel"]}`, w.Body.String())

	w = env.do(http.MethodPut, "/api/subscriptions", "", gin.H{
		"endpoint": endpoint, "p256dh": "k", "auth": "a", "locations": []string{"canteen"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodDelete, "/api/subscriptions", "", gin.H{"endpoint": endpoint})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = get()
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/subscriptions?other="+url.QueryEscape(endpoint), "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
