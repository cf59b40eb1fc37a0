// Package memory provides a map backed implementation of the camp document
// store. It is used by the memory driver and by tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/camp-logistics/internal/persistence"
)

var (
	_ persistence.Store      = (*Store)(nil)
	_ persistence.Transactor = (*Store)(nil)
)

// Store keeps every collection in memory behind a single lock.
type Store struct {
	mu    sync.RWMutex
	state state
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp changes.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.state.now = now
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{state: newState()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases resources held by the store. No-op for the in-memory implementation.
func (s *Store) Close() error {
	return nil
}

// WithinTransaction runs fn against the store while holding the write lock.
// Every write made through tx is discarded when fn returns an error.
func (s *Store) WithinTransaction(ctx context.Context, fn func(tx persistence.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.state.clone()
	if err := fn(&txView{st: &s.state}); err != nil {
		s.state = backup
		return err
	}
	return nil
}

// LastChange reports when any document was last written.
func (s *Store) LastChange(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.changed, nil
}

// --- AttendeeRepository implementation ---

// ListAttendees returns every attendee ordered by ID.
func (s *Store) ListAttendees(ctx context.Context) ([]persistence.Attendee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listAttendees(), nil
}

// GetAttendee retrieves an attendee by ID.
func (s *Store) GetAttendee(ctx context.Context, id string) (persistence.Attendee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getAttendee(id)
}

// UpsertAttendee stores the attendee, replacing any previous version.
func (s *Store) UpsertAttendee(ctx context.Context, attendee persistence.Attendee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.upsertAttendee(attendee)
}

// UpdateAttendee applies a partial update to an existing attendee.
func (s *Store) UpdateAttendee(ctx context.Context, id string, patch persistence.AttendeePatch) (persistence.Attendee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.updateAttendee(id, patch)
}

// --- RoomRepository implementation ---

// ListRooms returns every room ordered by ID.
func (s *Store) ListRooms(ctx context.Context) ([]persistence.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listRooms(), nil
}

// GetRoom retrieves a room by ID.
func (s *Store) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getRoom(id)
}

// UpsertRoom stores the room, replacing any previous version.
func (s *Store) UpsertRoom(ctx context.Context, room persistence.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.upsertRoom(room)
}

// UpdateRoom applies a partial update to an existing room.
func (s *Store) UpdateRoom(ctx context.Context, id string, patch persistence.RoomPatch) (persistence.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.updateRoom(id, patch)
}

// --- GroupRepository implementation ---

// ListGroups returns every group ordered by ID.
func (s *Store) ListGroups(ctx context.Context) ([]persistence.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listGroups(), nil
}

// GetGroup retrieves a group by ID.
func (s *Store) GetGroup(ctx context.Context, id string) (persistence.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.getGroup(id)
}

// UpsertGroup stores the group, replacing any previous version.
func (s *Store) UpsertGroup(ctx context.Context, group persistence.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.upsertGroup(group)
}

// UpdateGroup applies a partial update to an existing group.
func (s *Store) UpdateGroup(ctx context.Context, id string, patch persistence.GroupPatch) (persistence.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.updateGroup(id, patch)
}

type state struct {
	attendees map[string]persistence.Attendee
	rooms     map[string]persistence.Room
	groups    map[string]persistence.Group
	changed   time.Time
	now       func() time.Time
}

func newState() state {
	return state{
		attendees: make(map[string]persistence.Attendee),
		rooms:     make(map[string]persistence.Room),
		groups:    make(map[string]persistence.Group),
		now:       time.Now,
	}
}

func (st *state) clone() state {
	out := newState()
	out.changed = st.changed
	out.now = st.now
	for id, attendee := range st.attendees {
		out.attendees[id] = persistence.CloneAttendee(attendee)
	}
	for id, room := range st.rooms {
		out.rooms[id] = persistence.CloneRoom(room)
	}
	for id, group := range st.groups {
		out.groups[id] = persistence.CloneGroup(group)
	}
	return out
}

func (st *state) listAttendees() []persistence.Attendee {
	out := make([]persistence.Attendee, 0, len(st.attendees))
	for _, attendee := range st.attendees {
		out = append(out, persistence.CloneAttendee(attendee))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (st *state) getAttendee(id string) (persistence.Attendee, error) {
	attendee, ok := st.attendees[id]
	if !ok {
		return persistence.Attendee{}, persistence.ErrNotFound
	}
	return persistence.CloneAttendee(attendee), nil
}

func (st *state) upsertAttendee(attendee persistence.Attendee) error {
	if err := requireID("attendee", attendee.ID); err != nil {
		return err
	}
	st.attendees[attendee.ID] = persistence.CloneAttendee(attendee)
	st.touch()
	return nil
}

func (st *state) updateAttendee(id string, patch persistence.AttendeePatch) (persistence.Attendee, error) {
	attendee, ok := st.attendees[id]
	if !ok {
		return persistence.Attendee{}, persistence.ErrNotFound
	}
	patch.Apply(&attendee)
	st.attendees[id] = attendee
	st.touch()
	return persistence.CloneAttendee(attendee), nil
}

func (st *state) listRooms() []persistence.Room {
	out := make([]persistence.Room, 0, len(st.rooms))
	for _, room := range st.rooms {
		out = append(out, persistence.CloneRoom(room))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (st *state) getRoom(id string) (persistence.Room, error) {
	room, ok := st.rooms[id]
	if !ok {
		return persistence.Room{}, persistence.ErrNotFound
	}
	return persistence.CloneRoom(room), nil
}

func (st *state) upsertRoom(room persistence.Room) error {
	if err := requireID("room", room.ID); err != nil {
		return err
	}
	st.rooms[room.ID] = persistence.CloneRoom(room)
	st.touch()
	return nil
}

func (st *state) updateRoom(id string, patch persistence.RoomPatch) (persistence.Room, error) {
	room, ok := st.rooms[id]
	if !ok {
		return persistence.Room{}, persistence.ErrNotFound
	}
	patch.Apply(&room)
	st.rooms[id] = room
	st.touch()
	return persistence.CloneRoom(room), nil
}

func (st *state) listGroups() []persistence.Group {
	out := make([]persistence.Group, 0, len(st.groups))
	for _, group := range st.groups {
		out = append(out, persistence.CloneGroup(group))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (st *state) getGroup(id string) (persistence.Group, error) {
	group, ok := st.groups[id]
	if !ok {
		return persistence.Group{}, persistence.ErrNotFound
	}
	return persistence.CloneGroup(group), nil
}

func (st *state) upsertGroup(group persistence.Group) error {
	if err := requireID("group", group.ID); err != nil {
		return err
	}
	st.groups[group.ID] = persistence.CloneGroup(group)
	st.touch()
	return nil
}

func (st *state) updateGroup(id string, patch persistence.GroupPatch) (persistence.Group, error) {
	group, ok := st.groups[id]
	if !ok {
		return persistence.Group{}, persistence.ErrNotFound
	}
	patch.Apply(&group)
	st.groups[id] = group
	st.touch()
	return persistence.CloneGroup(group), nil
}

func (st *state) touch() {
	st.changed = st.now().UTC()
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("memory: %s id is required: %w", kind, persistence.ErrInvalidDocument)
	}
	return nil
}

// txView exposes the locked state to a transaction callback.
type txView struct {
	st *state
}

func (t *txView) ListAttendees(context.Context) ([]persistence.Attendee, error) {
	return t.st.listAttendees(), nil
}

func (t *txView) GetAttendee(_ context.Context, id string) (persistence.Attendee, error) {
	return t.st.getAttendee(id)
}

func (t *txView) UpsertAttendee(_ context.Context, attendee persistence.Attendee) error {
	return t.st.upsertAttendee(attendee)
}

func (t *txView) UpdateAttendee(_ context.Context, id string, patch persistence.AttendeePatch) (persistence.Attendee, error) {
	return t.st.updateAttendee(id, patch)
}

func (t *txView) ListRooms(context.Context) ([]persistence.Room, error) {
	return t.st.listRooms(), nil
}

func (t *txView) GetRoom(_ context.Context, id string) (persistence.Room, error) {
	return t.st.getRoom(id)
}

func (t *txView) UpsertRoom(_ context.Context, room persistence.Room) error {
	return t.st.upsertRoom(room)
}

func (t *txView) UpdateRoom(_ context.Context, id string, patch persistence.RoomPatch) (persistence.Room, error) {
	return t.st.updateRoom(id, patch)
}

func (t *txView) ListGroups(context.Context) ([]persistence.Group, error) {
	return t.st.listGroups(), nil
}

func (t *txView) GetGroup(_ context.Context, id string) (persistence.Group, error) {
	return t.st.getGroup(id)
}

func (t *txView) UpsertGroup(_ context.Context, group persistence.Group) error {
	return t.st.upsertGroup(group)
}

func (t *txView) UpdateGroup(_ context.Context, id string, patch persistence.GroupPatch) (persistence.Group, error) {
	return t.st.updateGroup(id, patch)
}
