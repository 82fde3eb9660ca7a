// Package main is the entry point for the task worker binary.
//
// Subcommands:
//
//	run                      consume the queue until SIGINT/SIGTERM (default)
//	enqueue <task> [task_id] push one task onto the queue
//	result <task_id>         print the stored result for a task
//	version
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/MURUGANQA/auth-service/internal/api"
	"github.com/MURUGANQA/auth-service/internal/config"
	"github.com/MURUGANQA/auth-service/internal/db"
	"github.com/MURUGANQA/auth-service/internal/db/repositories"
	"github.com/MURUGANQA/auth-service/internal/jobs"
	"github.com/MURUGANQA/auth-service/internal/queue"
	"github.com/MURUGANQA/auth-service/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "run"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level, cfg.Telemetry.ServiceName+"-worker")

	switch command {
	case "run":
		return work(cfg)
	case "enqueue":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s enqueue <task> [task_id]", os.Args[0])
		}
		t := queue.Task{Task: os.Args[2]}
		if len(os.Args) > 3 {
			t.TaskID = os.Args[3]
		}
		return enqueue(cfg, t)
	case "result":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s result <task_id>", os.Args[0])
		}
		return showResult(cfg, os.Args[2])
	case "version":
		fmt.Printf("auth-service worker v%s\n", api.Version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: run, enqueue, result, version", command)
	}
}

func work(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := queue.NewClient(cfg.Redis)
	defer rdb.Close()

	source := queue.New(rdb, cfg.Worker.QueueKey)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := source.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.GetAddress(), err)
	}

	// Only the queue is required at startup; the result store is retried.
	database, err := db.ConnectWithRetry(ctx, cfg.Database.GetDSN(),
		cfg.Database.MaxConnections, cfg.Database.MinIdleConnections,
		cfg.Worker.BackoffInterval,
		func(conn *sqlx.DB) error { return db.RunMigrations(conn, "up") })
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	telemetry.StartDBStatsCollector(ctx, database.DB)

	if cfg.Telemetry.Metrics.Enabled {
		metricsServer := telemetry.StartMetricsServer(cfg.Telemetry.Metrics.PrometheusPort)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	// A nil sink drops malformed payloads after logging them.
	var deadLetter jobs.TaskSink
	if cfg.Worker.DeadLetterKey != "" {
		deadLetter = queue.New(rdb, cfg.Worker.DeadLetterKey)
	}

	worker := jobs.NewTaskWorker(
		source,
		deadLetter,
		repositories.NewTaskResultRepository(database),
		jobs.DefaultProcessor,
		jobs.TaskWorkerConfig{
			PollInterval:    cfg.Worker.PollInterval,
			BackoffInterval: cfg.Worker.BackoffInterval,
			BlockingPop:     cfg.Worker.BlockingPop,
		},
	)

	worker.Start(ctx)
	return nil
}

func enqueue(cfg *config.Config, t queue.Task) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb := queue.NewClient(cfg.Redis)
	defer rdb.Close()

	q := queue.New(rdb, cfg.Worker.QueueKey)
	if err := q.PushTask(ctx, t); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	depth, err := q.Len(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue length: %w", err)
	}
	fmt.Printf("enqueued %q on %s (depth %d)\n", t.Identity(), q.Key(), depth)
	return nil
}

func showResult(cfg *config.Config, taskID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	database, err := db.Connect(ctx, cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	result, err := repositories.NewTaskResultRepository(database).GetByTaskID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load result: %w", err)
	}
	if result == nil {
		return fmt.Errorf("no result stored for task %q", taskID)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
