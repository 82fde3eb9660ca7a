// Package db manages PostgreSQL connections, schema migrations and scoped
// transactions for the identity store and the worker's result store.
// Migrations are embedded in the binary so both the server and the worker can
// bring the schema up to date on startup without external tooling.
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/MURUGANQA/auth-service/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connect opens a pooled connection to PostgreSQL and verifies it with a ping.
func Connect(ctx context.Context, dsn string, maxConnections, minIdleConnections int) (*sqlx.DB, error) {
	conn, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(maxConnections)
	conn.SetMaxIdleConns(minIdleConnections)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return conn, nil
}

// ConnectWithRetry calls Connect and then prepare (typically RunMigrations)
// until both succeed, waiting interval between attempts. It returns an error
// only once ctx is done.
func ConnectWithRetry(ctx context.Context, dsn string, maxConnections, minIdleConnections int, interval time.Duration, prepare func(*sqlx.DB) error) (*sqlx.DB, error) {
	var conn *sqlx.DB
	err := retry(ctx, interval, "connect database", func(ctx context.Context) error {
		c, err := Connect(ctx, dsn, maxConnections, minIdleConnections)
		if err != nil {
			return err
		}
		if prepare != nil {
			if err := prepare(c); err != nil {
				_ = c.Close()
				return err
			}
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func retry(ctx context.Context, interval time.Duration, op string, fn func(context.Context) error) error {
	if interval <= 0 {
		interval = time.Second
	}
	attempt := 0
	_, err := backoff.Retry(ctx,
		func() (struct{}, error) { return struct{}{}, fn(ctx) },
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			attempt++
			slog.Warn("database unavailable, backing off",
				"op", op, "attempt", attempt, "backoff", next, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func newMigrator(conn *sqlx.DB) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(conn.DB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return m, nil
}

// RunMigrations applies ("up") or rolls back ("down") the embedded migrations.
func RunMigrations(conn *sqlx.DB, direction string) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("invalid migration direction: %s (must be 'up' or 'down')", direction)
	}

	m, err := newMigrator(conn)
	if err != nil {
		return err
	}

	if direction == "up" {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations %s: %w", direction, err)
	}
	return nil
}

// GetMigrationVersion returns the current migration version.
func GetMigrationVersion(conn *sqlx.DB) (version uint, dirty bool, err error) {
	m, err := newMigrator(conn)
	if err != nil {
		return 0, false, err
	}

	version, dirty, err = m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// TxBeginner is satisfied by *sqlx.DB.
type TxBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// WithTx runs fn inside a transaction. The transaction commits only when fn
// returns nil; any error or panic rolls it back. Begin and commit failures
// are reported as InfrastructureError.
func WithTx(ctx context.Context, conn TxBeginner, fn func(tx *sqlx.Tx) error) error {
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return domain.ErrInfrastructure("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after Commit

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return domain.ErrInfrastructure("commit transaction", err)
	}
	return nil
}
