// Package db provides SQLite database access for convo.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/tOgg1/convo/internal/logging"
)

// Config contains connection settings.
type Config struct {
	// Path is the database file. ":memory:" opens a private in-memory database.
	Path string

	// MaxConnections caps open connections.
	MaxConnections int

	// BusyTimeoutMs is how long SQLite waits on a locked database.
	BusyTimeoutMs int

	// Retry controls TransactionWithRetry. Zero fields take defaults.
	Retry RetryPolicy
}

// DB wraps a SQLite handle with convo's schema applied.
type DB struct {
	*sql.DB
	path   string
	retry  RetryPolicy
	logger zerolog.Logger
}

// Open opens (and migrates) the database described by cfg.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("database path required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	busyTimeout := cfg.BusyTimeoutMs
	if busyTimeout <= 0 {
		busyTimeout = 5000
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path, busyTimeout)

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 1
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		maxConns = 1
	}
	sqlDB.SetMaxOpenConns(maxConns)

	db := &DB{
		DB:     sqlDB,
		path:   path,
		retry:  cfg.Retry.normalized(),
		logger: logging.Component("db"),
	}
	if err := db.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Transaction runs fn inside a transaction, committing on success.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		instance TEXT NOT NULL,
		remote_id TEXT,
		handle TEXT NOT NULL UNIQUE,
		display_name TEXT,
		avatar_url TEXT,
		oauth_token TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accounts_instance ON accounts(instance)`,
}

func (db *DB) migrate(ctx context.Context) error {
	return db.Transaction(ctx, func(tx *sql.Tx) error {
		for i, stmt := range migrations {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %d failed: %w", i, err)
			}
		}
		return nil
	})
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
