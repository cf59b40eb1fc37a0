package sqldoc

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// migration is a versioned schema change. Statements are rendered per dialect.
type migration struct {
	Version     string
	Description string
	Statements  func(d Dialect) []string
}

// Collections lists the document tables managed by the store.
var Collections = []string{"attendees", "rooms", "groups"}

var migrations = []migration{
	{
		Version:     "001",
		Description: "create document collections",
		Statements: func(d Dialect) []string {
			stmts := make([]string, 0, len(Collections))
			for _, table := range Collections {
				stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	payload %s NOT NULL,
	updated_at %s NOT NULL
)`, table, d.PayloadType, d.TimeType))
			}
			return stmts
		},
	},
	{
		Version:     "002",
		Description: "record change log",
		Statements: func(d Dialect) []string {
			return []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS change_log (
	collection TEXT NOT NULL,
	doc_id TEXT NOT NULL,
	changed_at %s NOT NULL
)`, d.TimeType)}
		},
	},
}

// Migrate applies every pending migration in version order, each inside its
// own transaction, and records it in schema_migrations.
func (s *Store) Migrate(ctx context.Context) error {
	logger := s.logger.With("dialect", s.dialect.Name)

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS schema_migrations (
	version TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	applied_at %s NOT NULL
)`, s.dialect.TimeType)); err != nil {
		return fmt.Errorf("sqldoc: initialize schema_migrations: %w", err)
	}

	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return err
	}

	pending := 0
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		pending++
		started := time.Now()
		err := s.runTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.Statements(s.dialect) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, s.dialect.rebind(`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`),
				m.Version, m.Description, s.now().UTC())
			return err
		})
		if err != nil {
			logger.ErrorContext(ctx, "migration failed", "version", m.Version, "error", err)
			return fmt.Errorf("sqldoc: migration %s (%s): %w", m.Version, m.Description, err)
		}
		logger.InfoContext(ctx, "migration applied", "version", m.Version, "description", m.Description, "duration", time.Since(started))
	}

	if pending == 0 {
		logger.DebugContext(ctx, "schema up to date", "applied_count", len(applied))
	}
	return nil
}

func (s *Store) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("sqldoc: read schema_migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("sqldoc: scan schema_migrations: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldoc: iterate schema_migrations: %w", err)
	}
	return applied, nil
}
