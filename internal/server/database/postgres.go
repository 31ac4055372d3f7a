package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrations contains all database migrations in order.
// Each migration has a version key and SQL to execute.
var migrations = []struct {
	Version string
	SQL     string
}{
	{
		Version: "000001_create_admin_users",
		SQL: `
			CREATE TABLE IF NOT EXISTS admin_users (
				id            VARCHAR(36)  PRIMARY KEY,
				username      VARCHAR(64)  NOT NULL UNIQUE,
				password_hash VARCHAR(255) NOT NULL,
				created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		Version: "000002_create_upload_links",
		SQL: `
			CREATE TABLE IF NOT EXISTS upload_links (
				id          VARCHAR(36)  PRIMARY KEY,
				token       VARCHAR(48)  NOT NULL UNIQUE,
				name        VARCHAR(255) NOT NULL,
				quota_total BIGINT       NOT NULL CHECK (quota_total >= 0),
				quota_used  BIGINT       NOT NULL DEFAULT 0
					CHECK (quota_used >= 0 AND quota_used <= quota_total),
				created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
				expires_at  TIMESTAMPTZ,
				deleted_at  TIMESTAMPTZ
			);
			CREATE INDEX IF NOT EXISTS idx_upload_links_token ON upload_links(token);
		`,
	},
	{
		Version: "000003_create_uploaded_files",
		SQL: `
			CREATE TABLE IF NOT EXISTS uploaded_files (
				id                VARCHAR(36)  PRIMARY KEY,
				link_id           VARCHAR(36)  NOT NULL REFERENCES upload_links(id),
				original_filename VARCHAR(255) NOT NULL,
				stored_filename   VARCHAR(64)  NOT NULL,
				size_bytes        BIGINT       NOT NULL CHECK (size_bytes >= 0),
				uploaded_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_uploaded_files_link_id ON uploaded_files(link_id);
		`,
	},
	{
		Version: "000004_create_sessions",
		SQL: `
			CREATE TABLE IF NOT EXISTS sessions (
				token      VARCHAR(64) PRIMARY KEY,
				admin_id   VARCHAR(36) NOT NULL REFERENCES admin_users(id),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				expires_at TIMESTAMPTZ NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
		`,
	},
}

// DB wraps a pgxpool connection pool and provides health checks and migrations.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("connected to database")
	return &DB{Pool: pool}, nil
}

// RunMigrations applies all pending database migrations in order.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			m.Version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration status for %s: %w", m.Version, err)
		}
		if exists {
			continue
		}

		tx, err := db.Pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}

		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}

		slog.Info("applied migration", "version", m.Version)
	}

	return nil
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

const (
	txRetryAttempts = 3
	txRetryBackoff  = 25 * time.Millisecond
)

// retryable reports whether err is a transient transaction failure
// (serialization conflict or deadlock) worth retrying.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// withTxRetry runs fn, retrying a bounded number of times with backoff
// when the store reports a transient transaction conflict.
func withTxRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < txRetryAttempts; attempt++ {
		if err = fn(); err == nil || !retryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(txRetryBackoff << attempt):
		}
	}
	return err
}
