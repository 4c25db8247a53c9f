package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

type Config struct {
	Path        string // file path or ":memory:"
	BusyTimeout time.Duration
}

// Open opens the SQLite archive with WAL journaling and applies the schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 10 * time.Second
	}
	dsn := cfg.Path
	if dsn != ":memory:" {
		dsn += fmt.Sprintf("?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)", cfg.BusyTimeout.Milliseconds())
	}
	logger.Info("opening result store", "path", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		logger.Error("failed to open result store", "error", err)
		return nil, err
	}
	// one writer; an in-memory database exists per connection
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		logger.Error("failed to migrate result store", "error", err)
		return nil, err
	}
	return db, nil
}

// Close closes the database gracefully
func Close(db *sql.DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.Close(); err != nil {
		logger.Error("failed to close result store", "error", err)
		return
	}
	logger.Debug("result store closed")
}

// HealthCheck pings the database.
func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS results (
	content_hash TEXT PRIMARY KEY,
	file_path    TEXT NOT NULL,
	strategy     TEXT NOT NULL DEFAULT '',
	payload      BLOB NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS results_file_path ON results(file_path);
`

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
