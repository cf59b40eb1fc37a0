// Package sqlite opens the camp document store on a local SQLite file using
// the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/example/camp-logistics/internal/persistence/sqldoc"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Open creates the database file if needed, applies migrations and returns
// the document store. Options are applied after the logger.
func Open(ctx context.Context, cfg Config, logger *slog.Logger, opts ...sqldoc.Option) (*sqldoc.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("sqlite: create dirs: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// SQLite allows a single writer; one connection keeps transactions from
	// contending with each other for the file lock.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	store := sqldoc.New(db, sqldoc.SQLite, append([]sqldoc.Option{sqldoc.WithLogger(logger)}, opts...)...)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
