package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campus-access-backend/config"
	"campus-access-backend/internal/alert"
	"campus-access-backend/internal/api"
	"campus-access-backend/internal/auth"
	"campus-access-backend/internal/broker"
	"campus-access-backend/internal/db"
	"campus-access-backend/internal/library"
	"campus-access-backend/internal/metrics"
	"campus-access-backend/internal/notification"
	"campus-access-backend/internal/photos"
	"campus-access-backend/internal/presence"
	"campus-access-backend/internal/registry"
	"campus-access-backend/internal/scansource"
	"campus-access-backend/internal/store"

	"github.com/SherClockHolmes/webpush-go"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "campus-access ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Auth.SigningKey == "" {
		logger.Fatalf("auth.signing_key (or JWT_SIGNING_KEY) must be set")
	}
	tz, err := time.LoadLocation(cfg.Presence.Timezone)
	if err != nil {
		logger.Fatalf("failed to load timezone %s: %v", cfg.Presence.Timezone, err)
	}

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	gormDB, err := db.Init(ctx, &cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")
	appStore := store.NewGormStore(gormDB)

	if err := auth.SeedOperators(ctx, appStore, cfg.Auth.Users); err != nil {
		logger.Fatalf("failed to seed operator accounts: %v", err)
	}

	// Event fan-out
	var events broker.Broker
	switch cfg.Broker.Backend {
	case "redis":
		client := broker.NewRedisClient(cfg.Broker.RedisAddr)
		defer client.Close()
		redisBroker := broker.NewRedis(client, cfg.Broker.Channel)
		if !redisBroker.Healthy(ctx) {
			logger.Printf("WARNING: redis at %s is not answering yet", cfg.Broker.RedisAddr)
		}
		events = redisBroker
	default:
		events = broker.NewInMemory()
	}
	logger.Printf("event broker: %s", cfg.Broker.Backend)

	// Web push is optional; alerts still reach dashboards over the broker.
	var webpushOptions *webpush.Options
	var pool *notification.WorkerPool
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool = notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions)
		pool.Start(ctx)
	} else {
		logger.Println("WARNING: VAPID keys not set, web push disabled")
	}
	notifier := notification.NewNotifier(events, pool)
	meters := metrics.New()

	tags := registry.New(appStore, cfg.Registry.CacheTTL)
	if err := tags.Share(ctx, events); err != nil {
		logger.Fatalf("failed to share registry invalidations: %v", err)
	}
	ledger := presence.NewLedger(appStore, tags, presence.Options{
		DuplicateEntry: presence.DuplicateEntryPolicy(cfg.Presence.DuplicateEntryPolicy),
		OrphanExit:     presence.OrphanExitPolicy(cfg.Presence.OrphanExitPolicy),
		Timezone:       tz,
		CurfewHour:     cfg.Presence.CurfewHour,
		Publisher:      notifier,
		Observer:       meters,
	})
	alerts := alert.NewService(appStore, notifier, meters)
	loans := library.NewService(appStore, tags)

	var objects photos.ObjectStorage
	if cfg.Storage.Enabled {
		s3Storage, err := photos.NewS3Storage(ctx, cfg.Storage)
		if err != nil {
			logger.Fatalf("failed to configure photo storage: %v", err)
		}
		objects = s3Storage
		logger.Printf("photo storage: bucket %s", cfg.Storage.Bucket)
	} else {
		logger.Println("WARNING: photo storage disabled")
	}
	photoSvc := photos.NewService(objects, tags, time.Duration(cfg.Storage.PresignTTLMinute)*time.Minute)

	// Background scan sources
	readers, err := scansource.NewManager(ctx, cfg.Scanner.Readers, tz, ledger)
	if err != nil {
		logger.Fatalf("failed to configure scan sources: %v", err)
	}
	if err := readers.Start(ctx); err != nil {
		logger.Fatalf("failed to start scan sources: %v", err)
	}
	for _, r := range readers.Runners() {
		logger.Printf("reader for %s uses the %s source", r.Location(), r.Source().Name())
	}

	// Event streams never finish on their own; close them on shutdown.
	streamsDone := make(chan struct{})

	// Initialize router
	router := api.NewRouter(api.Deps{
		Store:       appStore,
		Ledger:      ledger,
		Registry:    tags,
		Alerts:      alerts,
		Library:     loans,
		Photos:      photoSvc,
		Broker:      events,
		Verifier:    auth.NewStoreVerifier(appStore),
		Relays:      readers,
		Metrics:     meters.Handler(),
		WebPush:     webpushOptions,
		Auth:        cfg.Auth,
		Server:      cfg.Server,
		RecentLimit: cfg.Presence.RecentLimit,
		Done:        streamsDone,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}
	server.RegisterOnShutdown(func() { close(streamsDone) })

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Readers first, so no scan is cut off mid-transaction.
	readers.Stop()

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}
	cancel()

	logger.Println("Server gracefully stopped")
}
