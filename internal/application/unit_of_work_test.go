package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/camp-logistics/internal/persistence"
	"github.com/example/camp-logistics/internal/testfixtures"
)

// rollbackFailStore fails every room upsert so compensation cannot succeed.
type rollbackFailStore struct {
	persistence.Store
}

func (rollbackFailStore) UpsertRoom(ctx context.Context, doc persistence.Room) error {
	return errors.New("connection reset")
}

func uowDocs() testfixtures.Docs {
	return testfixtures.Docs{
		Attendees: []persistence.Attendee{testfixtures.NewAttendee(testfixtures.WithAttendeeID("A1"))},
		Rooms:     []persistence.Room{testfixtures.NewRoom(testfixtures.WithRoomID("r1"), testfixtures.WithNumber("1"))},
		Groups:    []persistence.Group{testfixtures.NewGroup(testfixtures.WithGroupID("g1"))},
	}
}

func TestUnitOfWork_Journal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	boom := errors.New("boom")

	t.Run("restores every touched document newest first", func(t *testing.T) {
		t.Parallel()
		store := testfixtures.NewMemoryStore(t, uowDocs())
		uow := unitOfWork{store: &flakyStore{Store: store}}

		err := uow.run(ctx, func(tx persistence.Store) error {
			occupants := []string{"A1"}
			if _, err := tx.UpdateRoom(ctx, "r1", persistence.RoomPatch{Occupants: occupants}); err != nil {
				return err
			}
			again := []string{"A1", "A2"}
			if _, err := tx.UpdateRoom(ctx, "r1", persistence.RoomPatch{Occupants: again}); err != nil {
				return err
			}
			room := "1"
			if _, err := tx.UpdateAttendee(ctx, "A1", persistence.AttendeePatch{Room: &room}); err != nil {
				return err
			}
			active := false
			if _, err := tx.UpdateGroup(ctx, "g1", persistence.GroupPatch{Active: &active}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected callback error, got %v", err)
		}
		if got := mustGetRoom(t, store, "r1").Occupants; len(got) != 0 {
			t.Fatalf("expected original occupants, got %v", got)
		}
		if got := mustGetAttendee(t, store, "A1").Room; got != "" {
			t.Fatalf("expected original room, got %q", got)
		}
		group, err := store.GetGroup(ctx, "g1")
		if err != nil || !group.Active {
			t.Fatalf("expected group restored to active, got %+v, %v", group, err)
		}
	})

	t.Run("successful callback keeps the writes", func(t *testing.T) {
		t.Parallel()
		store := testfixtures.NewMemoryStore(t, uowDocs())
		uow := unitOfWork{store: &flakyStore{Store: store}}

		err := uow.run(ctx, func(tx persistence.Store) error {
			occupants := []string{"A1"}
			_, err := tx.UpdateRoom(ctx, "r1", persistence.RoomPatch{Occupants: occupants})
			return err
		})
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
		if got := mustGetRoom(t, store, "r1").Occupants; !equalIDs(got, []string{"A1"}) {
			t.Fatalf("expected committed occupants, got %v", got)
		}
	})

	t.Run("failed compensation is reported alongside the cause", func(t *testing.T) {
		t.Parallel()
		store := testfixtures.NewMemoryStore(t, uowDocs())
		uow := unitOfWork{store: rollbackFailStore{Store: &flakyStore{Store: store}}}

		err := uow.run(ctx, func(tx persistence.Store) error {
			occupants := []string{"A1"}
			if _, err := tx.UpdateRoom(ctx, "r1", persistence.RoomPatch{Occupants: occupants}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected callback error to stay visible, got %v", err)
		}
		if got := err.Error(); got != "boom (compensation failed: connection reset)" {
			t.Fatalf("unexpected error text %q", got)
		}
	})

	t.Run("missing document is not journaled", func(t *testing.T) {
		t.Parallel()
		store := testfixtures.NewMemoryStore(t, uowDocs())
		uow := unitOfWork{store: &flakyStore{Store: store}}

		err := uow.run(ctx, func(tx persistence.Store) error {
			_, err := tx.UpdateRoom(ctx, "missing", persistence.RoomPatch{})
			return err
		})
		if !errors.Is(err, persistence.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestUnitOfWork_Transactor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := testfixtures.NewMemoryStore(t, uowDocs())
	uow := unitOfWork{store: store}

	err := uow.run(ctx, func(tx persistence.Store) error {
		if _, ok := tx.(*journal); ok {
			t.Fatalf("transactional store must not be journaled")
		}
		occupants := []string{"A1"}
		if _, err := tx.UpdateRoom(ctx, "r1", persistence.RoomPatch{Occupants: occupants}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	if err == nil {
		t.Fatalf("expected abort error")
	}
	if got := mustGetRoom(t, store, "r1").Occupants; len(got) != 0 {
		t.Fatalf("expected transaction rollback, got %v", got)
	}
}
