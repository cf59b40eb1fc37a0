package application

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/example/camp-logistics/internal/persistence"
	"github.com/example/camp-logistics/internal/testfixtures"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type notifierStub struct {
	mu      sync.Mutex
	changes []Change
	err     error
}

func (n *notifierStub) NotifyChange(ctx context.Context, change Change) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
	return n.err
}

func (n *notifierStub) collections() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.changes))
	for _, c := range n.changes {
		out = append(out, c.Collection+"/"+c.DocumentID)
	}
	return out
}

type metricsStub struct {
	mu       sync.Mutex
	outcomes map[string][]string
}

func (m *metricsStub) Observe(ctx context.Context, operation, outcome string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string][]string)
	}
	m.outcomes[operation] = append(m.outcomes[operation], outcome)
}

func (m *metricsStub) last(operation string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.outcomes[operation]
	if len(list) == 0 {
		return ""
	}
	return list[len(list)-1]
}

// flakyStore hides the Transactor of the wrapped store and injects failures.
type flakyStore struct {
	persistence.Store

	getRoomErr        error
	updateAttendeeErr error
	updateGroupErr    error
	listGroupsErr     error
	updateGroupCalls  int
}

func (f *flakyStore) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	if f.getRoomErr != nil {
		return persistence.Room{}, f.getRoomErr
	}
	return f.Store.GetRoom(ctx, id)
}

func (f *flakyStore) UpdateAttendee(ctx context.Context, id string, patch persistence.AttendeePatch) (persistence.Attendee, error) {
	if f.updateAttendeeErr != nil {
		return persistence.Attendee{}, f.updateAttendeeErr
	}
	return f.Store.UpdateAttendee(ctx, id, patch)
}

func (f *flakyStore) UpdateGroup(ctx context.Context, id string, patch persistence.GroupPatch) (persistence.Group, error) {
	f.updateGroupCalls++
	if f.updateGroupErr != nil {
		return persistence.Group{}, f.updateGroupErr
	}
	return f.Store.UpdateGroup(ctx, id, patch)
}

func (f *flakyStore) ListGroups(ctx context.Context) ([]persistence.Group, error) {
	if f.listGroupsErr != nil {
		return nil, f.listGroupsErr
	}
	return f.Store.ListGroups(ctx)
}

func newLoadedDirectory(t *testing.T, store persistence.AttendeeRepository, clock *testfixtures.Clock) *Directory {
	t.Helper()
	if clock == nil {
		clock = testfixtures.NewClock(time.Time{})
	}
	dir := NewDirectoryWithLogger(store, Hooks{}, clock.NowFunc(), discardLogger())
	if err := dir.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	return dir
}

func mustGetRoom(t *testing.T, store persistence.RoomRepository, id string) persistence.Room {
	t.Helper()
	room, err := store.GetRoom(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRoom(%s) returned error: %v", id, err)
	}
	return room
}

func mustGetAttendee(t *testing.T, store persistence.AttendeeRepository, id string) persistence.Attendee {
	t.Helper()
	attendee, err := store.GetAttendee(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAttendee(%s) returned error: %v", id, err)
	}
	return attendee
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
