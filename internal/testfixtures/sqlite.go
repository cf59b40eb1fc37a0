package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/camp-logistics/internal/persistence"
	"github.com/example/camp-logistics/internal/persistence/memory"
	"github.com/example/camp-logistics/internal/persistence/sqldoc"
	"github.com/example/camp-logistics/internal/persistence/sqlite"
)

// Docs bundles documents to seed into a store.
type Docs struct {
	Attendees []persistence.Attendee
	Rooms     []persistence.Room
	Groups    []persistence.Group
}

// Seed upserts every document, failing the test on the first error.
func Seed(tb testing.TB, store persistence.Store, docs Docs) {
	tb.Helper()
	ctx := context.Background()
	for _, doc := range docs.Attendees {
		if err := store.UpsertAttendee(ctx, doc); err != nil {
			tb.Fatalf("seed attendee %s: %v", doc.ID, err)
		}
	}
	for _, doc := range docs.Rooms {
		if err := store.UpsertRoom(ctx, doc); err != nil {
			tb.Fatalf("seed room %s: %v", doc.ID, err)
		}
	}
	for _, doc := range docs.Groups {
		if err := store.UpsertGroup(ctx, doc); err != nil {
			tb.Fatalf("seed group %s: %v", doc.ID, err)
		}
	}
}

// NewMemoryStore returns a seeded in-memory store.
func NewMemoryStore(tb testing.TB, docs Docs, opts ...memory.Option) *memory.Store {
	tb.Helper()
	store := memory.New(opts...)
	Seed(tb, store, docs)
	return store
}

// NewSQLiteStore opens a migrated SQLite store in a temporary directory and
// closes it when the test ends.
func NewSQLiteStore(tb testing.TB, opts ...sqldoc.Option) *sqldoc.Store {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "camp.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := sqlite.Open(context.Background(), sqlite.DefaultConfig(path), logger, opts...)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })
	return store
}
