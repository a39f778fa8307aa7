package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/govlens/assessment-console/internal/api"
	"github.com/govlens/assessment-console/internal/audit"
	"github.com/govlens/assessment-console/internal/catalog"
	"github.com/govlens/assessment-console/internal/cleanup"
	"github.com/govlens/assessment-console/internal/config"
	"github.com/govlens/assessment-console/internal/models"
	"github.com/govlens/assessment-console/internal/platform"
	"github.com/govlens/assessment-console/internal/tracker"
	"github.com/govlens/assessment-console/internal/wizard"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting assessment-console",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"platform", cfg.Platform.BaseURL,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Submission audit trail is optional: no DSN, no database
	var auditRepo audit.Repository
	if cfg.AuditEnabled() {
		repo, err := audit.NewPostgresRepository(initCtx, cfg.Database.DSN)
		if err != nil {
			slog.Error("failed to connect to audit database", "error", err)
			os.Exit(1)
		}
		defer repo.Close()

		slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
		if err := audit.RunMigrations(initCtx, repo.Pool(), cfg.Database.MigrationsDir); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		auditRepo = repo
	} else {
		slog.Info("submission audit trail disabled: no database DSN configured")
	}

	// Load the assessment catalog
	catalogLoader := catalog.NewLoader()
	if err := catalogLoader.LoadFromDir(cfg.Catalog.Dir); err != nil {
		slog.Warn("failed to load catalog from dir", "dir", cfg.Catalog.Dir, "error", err)
	}

	// Upstream platform client
	platformClient := platform.NewClient(cfg.Platform.BaseURL, cfg.Platform.APIKey,
		platform.WithTimeout(cfg.Platform.Timeout))

	// Trackers poll every in-flight assessment; created assessments are
	// handed to the tracker manager straight from the wizard's hook.
	trackers := tracker.NewManager(platformClient,
		tracker.WithInterval(cfg.Tracker.Interval),
		tracker.WithGraceDelay(cfg.Tracker.GraceDelay),
	)

	wizardOpts := []wizard.ManagerOption{
		wizard.WithIdleTTL(cfg.Janitor.IdleTTL),
		wizard.WithOnCreated(func(a *models.Assessment) {
			trackers.Track(a.ID)
		}),
	}
	if auditRepo != nil {
		wizardOpts = append(wizardOpts, wizard.WithRecorder(auditRepo))
	}
	wizards := wizard.NewManager(platformClient, catalogLoader, wizardOpts...)

	// Initialize cleanup worker
	cleaner := cleanup.NewCleaner(wizards, cfg.Janitor.Interval)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start cleanup worker
	cleaner.Start(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, wizards, trackers, platformClient, catalogLoader, auditRepo)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Stop every active tracker before exit
	trackers.StopAll()

	slog.Info("assessment-console stopped")
}
