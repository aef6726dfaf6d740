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

	"rental-sync-backend/config"
	"rental-sync-backend/internal/api"
	"rental-sync-backend/internal/db"
	"rental-sync-backend/internal/ingest"
	"rental-sync-backend/internal/reconcile"
	"rental-sync-backend/internal/schedsync"
	"rental-sync-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "rental-sync ", log.LstdFlags)

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

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB, store.LogSink)
	logger.Println("data store initialized")

	// Schedule-sync worker pool. Without a platform base URL the pool still
	// drains triggers and commands, it just cannot look schedules up.
	var provider schedsync.ScheduleProvider
	if cfg.Scheduler.BaseURL != "" {
		provider = schedsync.NewHTTPClient(cfg)
	} else {
		logger.Println("no scheduling platform configured; sync checks run on webhook payloads only")
	}
	syncWorker := schedsync.NewWorker(cfg, appStore, provider, nil)
	syncWorker.Start(ctx)

	// Reconciliation feeds appointment commands into the sync worker.
	reconciler := reconcile.New(cfg, appStore, syncWorker)

	// Run the ingestion scheduler in the background.
	scheduler := ingest.NewScheduler(cfg, appStore, reconciler)
	go scheduler.Run(ctx)

	// Initialize router
	router := api.NewRouter(cfg, appStore, scheduler, syncWorker)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

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

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
