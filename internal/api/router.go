package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"campus-access-backend/internal/auth"
	"campus-access-backend/internal/model"
	"campus-access-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{SkipPaths: []string{"/healthz", "/metrics"}}))

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(deps.Server.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = deps.Server.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	r.Use(cors.New(corsConfig))

	handler := NewHandler(deps)

	r.GET("/healthz", handler.Healthz)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	rateLimiter := mw.RateLimiter(rate.Limit(deps.Server.RateLimitPerSec), deps.Server.RateLimitBurst)
	caching := mw.Cache(handler.directory, time.Duration(deps.Server.CacheTTLSeconds)*time.Second)

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/login", handler.Login)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	session := api.Group("")
	session.Use(auth.RequireSession(deps.Auth.SigningKey, deps.Auth.Issuer))
	{
		session.GET("/students", caching, handler.SearchStudents)
		session.GET("/students/:usn", caching, handler.GetStudent)
		session.PUT("/students/:usn", handler.PutStudent)
		session.POST("/students/:usn/photo", handler.PostPhoto)
		session.GET("/students/:usn/photo", handler.GetPhoto)
		session.DELETE("/students/:usn/photo", handler.DeletePhoto)

		session.POST("/tags", handler.PostTag)
		session.DELETE("/tags/:uid", handler.DeleteTag)

		session.POST("/alerts", handler.PostAlert)
		session.GET("/alerts", handler.GetAlerts)
	}

	locations := session.Group("/locations/:location")
	locations.Use(auth.RequireLocation())
	{
		locations.POST("/scans", handler.PostScan)
		locations.POST("/browser-scans", handler.PostBrowserScan)
		locations.GET("/records", handler.GetRecords)
		locations.GET("/stats", handler.GetStats)
		locations.GET("/export", handler.GetExport)
		locations.GET("/events", handler.StreamEvents)
	}

	library := session.Group("/library")
	library.Use(auth.RequireRole(string(model.LocationLibrary)))
	{
		library.POST("/books", handler.PostBook)
		library.POST("/books/:id/return", handler.ReturnBook)
		library.GET("/books", handler.GetBooks)
	}

	return r
}
