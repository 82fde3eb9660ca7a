// Package main is the entry point for the auth service API binary.
// It dispatches three subcommands (serve, migrate and version) via a switch
// on os.Args. serve runs migrations on startup so a fresh container needs no
// separate migration step.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MURUGANQA/auth-service/internal/api"
	"github.com/MURUGANQA/auth-service/internal/audit"
	"github.com/MURUGANQA/auth-service/internal/config"
	"github.com/MURUGANQA/auth-service/internal/db"
	"github.com/MURUGANQA/auth-service/internal/notify"
	"github.com/MURUGANQA/auth-service/internal/queue"
	"github.com/MURUGANQA/auth-service/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "version":
		fmt.Printf("auth-service v%s\n", api.Version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level, cfg.Telemetry.ServiceName)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("connecting to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port,
		"name", cfg.Database.Name, "ssl_mode", cfg.Database.SSLMode)

	database, err := db.Connect(ctx, cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	telemetry.StartDBStatsCollector(ctx, database.DB)

	slog.Info("running database migrations")
	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if version, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", version, "dirty", dirty)
	}

	// Redis backs the rate limiter only; the API still serves without it.
	rdb := queue.NewClient(cfg.Redis)
	defer rdb.Close()
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Warn("redis unreachable at startup, rate limiter will fail open", "addr", cfg.Redis.GetAddress(), "error", err)
	}
	cancel()

	sender, err := notify.NewSender(&cfg.Notifications)
	if err != nil {
		return fmt.Errorf("failed to configure notifications: %w", err)
	}
	notifier := notify.NewNotifier(sender, cfg.Notifications.InviteBaseURL, cfg.Notifications.SendTimeout)

	var auditSink audit.Shipper
	shipper, err := audit.NewShipper(cfg.Audit)
	if err != nil {
		return fmt.Errorf("failed to configure audit sinks: %w", err)
	}
	if shipper != nil {
		auditSink = shipper
		defer shipper.Close()
	}

	var metricsServer *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		metricsServer = telemetry.StartMetricsServer(cfg.Telemetry.Metrics.PrometheusPort)
	}

	router, err := api.NewRouter(cfg, database, rdb, notifier, auditSink)
	if err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", server.Addr, "notifications", cfg.Notifications.Provider)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	}

	slog.Info("shutting down server")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	notifier.Wait()

	slog.Info("server stopped gracefully")
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(context.Background(), cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction)

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", version, dirty)
	return nil
}
