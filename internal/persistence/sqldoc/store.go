// Package sqldoc stores camp documents as JSON payloads in SQL tables, one
// table per collection. The sqlite and postgres packages configure it with
// their driver and dialect.
package sqldoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/camp-logistics/internal/persistence"
)

var (
	_ persistence.Store      = (*Store)(nil)
	_ persistence.Transactor = (*Store)(nil)
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements persistence.Store on top of database/sql.
type Store struct {
	db      *sql.DB
	q       querier
	inTx    bool
	dialect Dialect
	logger  *slog.Logger
	now     func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the logger used for migrations and transaction failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for updated_at columns.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps an open database handle. Callers own the handle and must run
// Migrate before use.
func New(db *sql.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{
		db:      db,
		q:       db,
		dialect: dialect,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying handle for integration tests.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect reports the dialect the store was built with.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close closes the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil || s.inTx {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithinTransaction executes fn within a database transaction. If fn returns
// an error the transaction is rolled back, otherwise it is committed. Nested
// calls reuse the outer transaction.
func (s *Store) WithinTransaction(ctx context.Context, fn func(tx persistence.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.runTx(ctx, func(tx *sql.Tx) error {
		return fn(s.bound(tx))
	})
}

func (s *Store) bound(tx *sql.Tx) *Store {
	clone := *s
	clone.q = tx
	clone.inTx = true
	return &clone
}

func (s *Store) runTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqldoc: begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.ErrorContext(ctx, "rollback failed", "dialect", s.dialect.Name, "error", rbErr)
			return fmt.Errorf("sqldoc: transaction failed (rollback error: %v): %w", rbErr, err)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqldoc: commit transaction: %w", err)
	}
	return nil
}

// LastChange reports when any document was last written. The zero time is
// returned for an empty change log.
func (s *Store) LastChange(ctx context.Context) (time.Time, error) {
	var raw sql.NullString
	query := `SELECT MAX(changed_at) FROM change_log`
	if s.dialect.Numbered {
		query = `SELECT MAX(changed_at)::text FROM change_log`
	}
	if err := s.q.QueryRowContext(ctx, query).Scan(&raw); err != nil {
		return time.Time{}, fmt.Errorf("sqldoc: read change log: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, nil
	}
	return parseTimestamp(raw.String)
}

// --- AttendeeRepository implementation ---

// ListAttendees returns every attendee ordered by ID.
func (s *Store) ListAttendees(ctx context.Context) ([]persistence.Attendee, error) {
	return listDocs[persistence.Attendee](ctx, s, "attendees")
}

// GetAttendee retrieves an attendee by ID.
func (s *Store) GetAttendee(ctx context.Context, id string) (persistence.Attendee, error) {
	return getDoc[persistence.Attendee](ctx, s, "attendees", id)
}

// UpsertAttendee stores the attendee, replacing any previous version.
func (s *Store) UpsertAttendee(ctx context.Context, attendee persistence.Attendee) error {
	return s.writeDoc(ctx, "attendees", attendee.ID, attendee)
}

// UpdateAttendee applies a partial update to an existing attendee.
func (s *Store) UpdateAttendee(ctx context.Context, id string, patch persistence.AttendeePatch) (persistence.Attendee, error) {
	return patchDoc(ctx, s, "attendees", id, func(a *persistence.Attendee) { patch.Apply(a) })
}

// --- RoomRepository implementation ---

// ListRooms returns every room ordered by ID.
func (s *Store) ListRooms(ctx context.Context) ([]persistence.Room, error) {
	return listDocs[persistence.Room](ctx, s, "rooms")
}

// GetRoom retrieves a room by ID.
func (s *Store) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	return getDoc[persistence.Room](ctx, s, "rooms", id)
}

// UpsertRoom stores the room, replacing any previous version.
func (s *Store) UpsertRoom(ctx context.Context, room persistence.Room) error {
	if room.Occupants == nil {
		room.Occupants = []string{}
	}
	return s.writeDoc(ctx, "rooms", room.ID, room)
}

// UpdateRoom applies a partial update to an existing room.
func (s *Store) UpdateRoom(ctx context.Context, id string, patch persistence.RoomPatch) (persistence.Room, error) {
	return patchDoc(ctx, s, "rooms", id, func(r *persistence.Room) { patch.Apply(r) })
}

// --- GroupRepository implementation ---

// ListGroups returns every group ordered by ID.
func (s *Store) ListGroups(ctx context.Context) ([]persistence.Group, error) {
	return listDocs[persistence.Group](ctx, s, "groups")
}

// GetGroup retrieves a group by ID.
func (s *Store) GetGroup(ctx context.Context, id string) (persistence.Group, error) {
	return getDoc[persistence.Group](ctx, s, "groups", id)
}

// UpsertGroup stores the group, replacing any previous version.
func (s *Store) UpsertGroup(ctx context.Context, group persistence.Group) error {
	if group.Members == nil {
		group.Members = []string{}
	}
	if group.Tasks == nil {
		group.Tasks = []persistence.Task{}
	}
	return s.writeDoc(ctx, "groups", group.ID, group)
}

// UpdateGroup applies a partial update to an existing group.
func (s *Store) UpdateGroup(ctx context.Context, id string, patch persistence.GroupPatch) (persistence.Group, error) {
	return patchDoc(ctx, s, "groups", id, func(g *persistence.Group) { patch.Apply(g) })
}

func (s *Store) writeDoc(ctx context.Context, table, id string, doc any) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("sqldoc: %s id is required: %w", table, persistence.ErrInvalidDocument)
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("sqldoc: encode %s/%s: %w", table, id, err)
	}
	now := s.now().UTC()
	query := fmt.Sprintf(`INSERT INTO %s (id, payload, updated_at) VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`, table)
	if _, err := s.q.ExecContext(ctx, s.dialect.rebind(query), id, string(payload), timestampArg(s.dialect, now)); err != nil {
		return fmt.Errorf("sqldoc: write %s/%s: %w", table, id, err)
	}
	if _, err := s.q.ExecContext(ctx, s.dialect.rebind(`INSERT INTO change_log (collection, doc_id, changed_at) VALUES (?, ?, ?)`),
		table, id, timestampArg(s.dialect, now)); err != nil {
		return fmt.Errorf("sqldoc: record change %s/%s: %w", table, id, err)
	}
	return nil
}

// getDoc reads one document. Reads inside a transaction take a row lock where
// the dialect supports one.
func getDoc[T any](ctx context.Context, s *Store, table, id string) (T, error) {
	var zero T
	if id == "" {
		return zero, persistence.ErrNotFound
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, s.dialect.PayloadSelect, table)
	if s.inTx {
		query += s.dialect.LockSuffix
	}
	var payload string
	if err := s.q.QueryRowContext(ctx, s.dialect.rebind(query), id).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, persistence.ErrNotFound
		}
		return zero, fmt.Errorf("sqldoc: read %s/%s: %w", table, id, err)
	}
	var doc T
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return zero, fmt.Errorf("sqldoc: decode %s/%s: %w", table, id, err)
	}
	return doc, nil
}

func listDocs[T any](ctx context.Context, s *Store, table string) ([]T, error) {
	rows, err := s.q.QueryContext(ctx, fmt.Sprintf(`SELECT id, %s FROM %s ORDER BY id ASC`, s.dialect.PayloadSelect, table))
	if err != nil {
		return nil, fmt.Errorf("sqldoc: list %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	docs := make([]T, 0)
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("sqldoc: scan %s: %w", table, err)
		}
		var doc T
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			return nil, fmt.Errorf("sqldoc: decode %s/%s: %w", table, id, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldoc: iterate %s: %w", table, err)
	}
	return docs, nil
}

// patchDoc performs a read-modify-write of one document inside a transaction
// so concurrent writers to the same document are serialized by the database.
func patchDoc[T any](ctx context.Context, s *Store, table, id string, apply func(*T)) (T, error) {
	var updated T
	err := s.WithinTransaction(ctx, func(tx persistence.Store) error {
		bound := tx.(*Store)
		doc, err := getDoc[T](ctx, bound, table, id)
		if err != nil {
			return err
		}
		apply(&doc)
		if err := bound.writeDoc(ctx, table, id, doc); err != nil {
			return err
		}
		updated = doc
		return nil
	})
	return updated, err
}

// timestampLayout keeps every fractional digit so TEXT columns sort in time
// order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func timestampArg(d Dialect, t time.Time) any {
	if d.Numbered {
		return t
	}
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(raw string) (time.Time, error) {
	layouts := []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07", "2006-01-02 15:04:05.999999999-07:00"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("sqldoc: unrecognized timestamp %q", raw)
}
