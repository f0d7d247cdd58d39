package mw

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCache(t *testing.T) {
	store := cache.New(time.Minute, time.Minute)
	calls := 0
	status := http.StatusOK

	r := gin.New()
	r.Use(Cache(store, time.Minute))
	handler := func(c *gin.Context) {
		calls++
		c.JSON(status, gin.H{"calls": calls})
	}
	r.GET("/api/students", handler)
	r.PUT("/api/students", handler)

	get := func(target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		return w
	}

	w := get("/api/students?q=asha&access_token=one")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"calls":1}`, w.Body.String())

	w = get("/api/students?access_token=two&q=asha")
	assert.JSONEq(t, `{"calls":1}`, w.Body.String(), "token must not split the cache")
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	w = get("/api/students?q=ravi")
	assert.JSONEq(t, `{"calls":2}`, w.Body.String())

	// Writes pass through uncached.
	pw := httptest.NewRecorder()
	r.ServeHTTP(pw, httptest.NewRequest(http.MethodPut, "/api/students?q=asha", nil))
	assert.JSONEq(t, `{"calls":3}`, pw.Body.String())

	store.Flush()
	status = http.StatusNotFound
	w = get("/api/students?q=asha")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = get("/api/students?q=asha")
	assert.JSONEq(t, `{"calls":5}`, w.Body.String(), "errors are not cached")
}

func TestCacheKey(t *testing.T) {
	testCases := []struct {
		raw  string
		want string
	}{
		{raw: "/api/students", want: "/api/students"},
		{raw: "/api/students?access_token=x", want: "/api/students"},
		{raw: "/api/students?q=a&limit=5", want: "/api/students?limit=5&q=a"},
	}
	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			u, err := url.Parse(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, cacheKey(u))
		})
	}
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(1), 2))
	r.GET("/api/alerts", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
		req.RemoteAddr = "10.0.0.7:5000"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	// Another client has its own bucket.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/alerts", nil)
	req.RemoteAddr = "10.0.0.8:5000"
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIPRateLimiter_SweepsIdleClients(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(rate.Limit(1), 1)
	l.now = func() time.Time { return now }

	l.GetLimiter("10.0.0.1")
	now = now.Add(5 * time.Minute)
	l.GetLimiter("10.0.0.2")
	assert.Equal(t, 2, l.Len())

	now = now.Add(idleAfter + time.Second)
	l.GetLimiter("10.0.0.3")
	assert.Equal(t, 1, l.Len(), "idle clients should have been dropped")
}
