package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"campus-access-backend/config"
	"campus-access-backend/internal/alert"
	"campus-access-backend/internal/auth"
	"campus-access-backend/internal/broker"
	"campus-access-backend/internal/library"
	"campus-access-backend/internal/model"
	"campus-access-backend/internal/photos"
	"campus-access-backend/internal/presence"
	"campus-access-backend/internal/registry"
	"campus-access-backend/internal/scansource"
	"campus-access-backend/internal/store"
)

// Relays finds the browser relay source of a location.
type Relays interface {
	Relay(location model.Location) (*scansource.Browser, bool)
}

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Store    store.Store
	Ledger   *presence.Ledger
	Registry *registry.Registry
	Alerts   *alert.Service
	Library  *library.Service
	Photos   *photos.Service
	Broker   broker.Broker
	Verifier auth.CredentialVerifier
	Relays   Relays
	Metrics  http.Handler
	WebPush  *webpush.Options
	Auth     config.AuthConfig
	Server   config.ServerConfig
	// RecentLimit is the default page size of the records listing.
	RecentLimit int
	// Heartbeat is the interval of SSE keep-alive pings.
	Heartbeat time.Duration
	// Done ends open event streams when closed.
	Done <-chan struct{}
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	Deps
	directory *cache.Cache
	now       func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	if deps.RecentLimit <= 0 {
		deps.RecentLimit = 50
	}
	if deps.Heartbeat <= 0 {
		deps.Heartbeat = 15 * time.Second
	}
	ttl := time.Duration(deps.Server.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Handler{
		Deps:      deps,
		directory: cache.New(ttl, 2*ttl),
		now:       time.Now,
	}
}

// flushDirectory drops cached student lookups after a registry mutation.
func (h *Handler) flushDirectory() {
	h.directory.Flush()
}

type healthChecker interface {
	Healthy(ctx context.Context) bool
}

// Healthz reports whether the database and the event broker answer.
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	body := gin.H{"status": "ok", "database": "ok"}
	if err := h.Store.Ping(ctx); err != nil {
		log.Printf("Health check: database ping failed: %v", err)
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["database"] = "unavailable"
	}
	if hc, ok := h.Broker.(healthChecker); ok {
		body["broker"] = "ok"
		if !hc.Healthy(ctx) {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["broker"] = "unavailable"
		}
	}
	c.JSON(status, body)
}

// respondError maps service errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, presence.ErrInvalidScan),
		errors.Is(err, alert.ErrInvalid),
		errors.Is(err, library.ErrInvalid),
		errors.Is(err, registry.ErrInvalidStudent),
		errors.Is(err, photos.ErrUnsupportedType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, registry.ErrStudentNotFound),
		errors.Is(err, library.ErrTagNotFound),
		errors.Is(err, library.ErrLoanNotFound),
		errors.Is(err, photos.ErrNoPhoto),
		errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, library.ErrAlreadyIssued),
		errors.Is(err, library.ErrIdentityExpired):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, presence.ErrStorage):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "retryable": true})
	case errors.Is(err, photos.ErrDisabled),
		errors.Is(err, scansource.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		log.Printf("Request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func location(c *gin.Context) model.Location {
	return model.Location(c.Param("location"))
}

// queryLimit parses the limit query parameter; zero lets the service pick.
func queryLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
