package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/example/camp-logistics/internal/persistence"
)

// RoomService enforces the capacity and gender rules of room allocation.
type RoomService struct {
	store     persistence.Store
	unit      unitOfWork
	directory *Directory
	hooks     Hooks
	logger    *slog.Logger
}

// NewRoomService constructs a room service with the provided dependencies.
func NewRoomService(store persistence.Store, directory *Directory) *RoomService {
	return NewRoomServiceWithLogger(store, directory, Hooks{}, nil)
}

// NewRoomServiceWithLogger constructs a room service with hooks and a specified logger.
func NewRoomServiceWithLogger(store persistence.Store, directory *Directory, hooks Hooks, logger *slog.Logger) *RoomService {
	return &RoomService{
		store:     store,
		unit:      unitOfWork{store: store},
		directory: directory,
		hooks:     hooks,
		logger:    defaultLogger(logger),
	}
}

func (s *RoomService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RoomService", operation, attrs...)
}

func (s *RoomService) ready() error {
	if s == nil {
		return fmt.Errorf("RoomService is nil")
	}
	if s.store == nil {
		return fmt.Errorf("room repository not configured")
	}
	if s.directory == nil {
		return fmt.Errorf("attendee directory not configured")
	}
	return nil
}

// Assign places the attendee in the room. Checks run in order and the first
// failure wins: room exists, attendee exists, free bed, gender policy.
// Assigning an attendee already in the room succeeds without changes. An
// attendee occupying another room is moved out of it in the same unit of
// work, so no id ever appears in two rooms.
func (s *RoomService) Assign(ctx context.Context, params AssignParams) (result AssignResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	started := time.Now()
	logger := s.loggerWith(ctx, "Assign",
		"attendee_id", params.AttendeeID,
		"room_id", params.RoomID,
	)
	defer func() {
		s.hooks.observe(ctx, "room.assign", started, err)
		logOutcome(ctx, logger.With("room_number", result.RoomNumber, "already_assigned", result.AlreadyAssigned),
			err, "assignment rejected", "attendee assigned")
	}()

	var updated persistence.Attendee
	var changes []Change
	err = s.unit.run(ctx, func(tx persistence.Store) error {
		roomDoc, err := tx.GetRoom(ctx, params.RoomID)
		if err != nil {
			return mapRepoError(EntityRoom, params.RoomID, "read room", err)
		}
		room, _ := toRoom(roomDoc)

		attendee, ok := s.directory.Get(params.AttendeeID)
		if !ok {
			return &NotFoundError{Entity: EntityAttendee, ID: params.AttendeeID}
		}

		result = AssignResult{
			RoomID:       room.ID,
			RoomNumber:   room.Number,
			AttendeeID:   attendee.ID,
			AttendeeName: attendee.Name,
		}

		if room.Has(attendee.ID) {
			result.AlreadyAssigned = true
			result.Occupants = slices.Clone(room.Occupants)
			if attendee.RoomNumber == room.Number {
				updated = persistence.Attendee{}
				return nil
			}
			// Heal a denormalized room number that drifted from the roster.
			updated, err = tx.UpdateAttendee(ctx, attendee.ID, persistence.AttendeePatch{Room: &room.Number})
			if err != nil {
				return mapRepoError(EntityAttendee, attendee.ID, "update attendee", err)
			}
			changes = append(changes, Change{Collection: "attendees", DocumentID: attendee.ID, Operation: "update"})
			return nil
		}

		if room.Full() {
			return &CapacityError{RoomNumber: room.Number, Current: len(room.Occupants), Capacity: room.Capacity}
		}
		if !room.Policy.Admits(attendee.Gender) {
			return &PolicyError{AttendeeName: attendee.Name, Gender: attendee.Gender, RoomNumber: room.Number, Policy: room.Policy}
		}

		others, err := tx.ListRooms(ctx)
		if err != nil {
			return mapRepoError(EntityRoom, "", "list rooms", err)
		}
		for _, other := range others {
			if other.ID == room.ID || !slices.Contains(other.Occupants, attendee.ID) {
				continue
			}
			if _, err := tx.UpdateRoom(ctx, other.ID, persistence.RoomPatch{Occupants: without(other.Occupants, attendee.ID)}); err != nil {
				return mapRepoError(EntityRoom, other.ID, "update room", err)
			}
			result.PreviousRoomNumber = other.Number
			changes = append(changes, Change{Collection: "rooms", DocumentID: other.ID, Operation: "update"})
		}

		occupants := append(slices.Clone(room.Occupants), attendee.ID)
		if _, err := tx.UpdateRoom(ctx, room.ID, persistence.RoomPatch{Occupants: occupants}); err != nil {
			return mapRepoError(EntityRoom, room.ID, "update room", err)
		}
		updated, err = tx.UpdateAttendee(ctx, attendee.ID, persistence.AttendeePatch{Room: &room.Number})
		if err != nil {
			return mapRepoError(EntityAttendee, attendee.ID, "update attendee", err)
		}
		result.Occupants = occupants
		changes = append(changes,
			Change{Collection: "rooms", DocumentID: room.ID, Operation: "update"},
			Change{Collection: "attendees", DocumentID: attendee.ID, Operation: "update"},
		)
		return nil
	})
	if err != nil {
		return
	}

	if updated.ID != "" {
		s.directory.apply(toAttendee(updated))
	}
	s.hooks.notify(ctx, logger, changes...)
	return
}

// Unassign removes the attendee from the room and clears the attendee's room
// number when it still points at this room. Removing an absent attendee is a
// successful no-op. Ids of attendees missing from the directory are still
// removed from the roster.
func (s *RoomService) Unassign(ctx context.Context, params UnassignParams) (result UnassignResult, err error) {
	if err = s.ready(); err != nil {
		return
	}

	started := time.Now()
	logger := s.loggerWith(ctx, "Unassign",
		"attendee_id", params.AttendeeID,
		"room_id", params.RoomID,
	)
	defer func() {
		s.hooks.observe(ctx, "room.unassign", started, err)
		logOutcome(ctx, logger.With("removed", result.Removed), err, "unassignment rejected", "attendee unassigned")
	}()

	var updated persistence.Attendee
	var changes []Change
	err = s.unit.run(ctx, func(tx persistence.Store) error {
		roomDoc, err := tx.GetRoom(ctx, params.RoomID)
		if err != nil {
			return mapRepoError(EntityRoom, params.RoomID, "read room", err)
		}
		room, _ := toRoom(roomDoc)
		result = UnassignResult{RoomNumber: room.Number, Occupants: slices.Clone(room.Occupants)}

		if room.Has(params.AttendeeID) {
			occupants := without(room.Occupants, params.AttendeeID)
			if _, err := tx.UpdateRoom(ctx, room.ID, persistence.RoomPatch{Occupants: occupants}); err != nil {
				return mapRepoError(EntityRoom, room.ID, "update room", err)
			}
			result.Occupants = occupants
			result.Removed = true
			changes = append(changes, Change{Collection: "rooms", DocumentID: room.ID, Operation: "update"})
		}

		attendee, ok := s.directory.Get(params.AttendeeID)
		if !ok || attendee.RoomNumber != room.Number {
			return nil
		}
		cleared := ""
		updated, err = tx.UpdateAttendee(ctx, attendee.ID, persistence.AttendeePatch{Room: &cleared})
		if err != nil {
			return mapRepoError(EntityAttendee, attendee.ID, "update attendee", err)
		}
		changes = append(changes, Change{Collection: "attendees", DocumentID: attendee.ID, Operation: "update"})
		return nil
	})
	if err != nil {
		return
	}

	if updated.ID != "" {
		s.directory.apply(toAttendee(updated))
	}
	s.hooks.notify(ctx, logger, changes...)
	return
}

// ListRooms returns every room ordered by room number, numbers compared
// naturally so "2" sorts before "10".
func (s *RoomService) ListRooms(ctx context.Context) (rooms []Room, err error) {
	if s == nil {
		err = fmt.Errorf("RoomService is nil")
		return
	}
	if s.store == nil {
		return nil, nil
	}

	logger := s.loggerWith(ctx, "ListRooms")
	docs, err := s.store.ListRooms(ctx)
	if err != nil {
		err = &PersistenceError{Op: "list rooms", Err: err}
		logger.ErrorContext(ctx, "failed to list rooms", "error", err, "error_kind", ErrorKind(err))
		return
	}

	rooms, vErr := toRooms(docs)
	if vErr.HasErrors() {
		logger.WarnContext(ctx, "rooms with invalid attributes", "fields", vErr.FieldErrors)
	}
	SortRooms(rooms)
	return
}

// UnassignedAttendeesNow returns the unassigned view over the current
// directory snapshot and stored rooms.
func (s *RoomService) UnassignedAttendeesNow(ctx context.Context) ([]Attendee, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rooms, err := s.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	return UnassignedAttendees(s.directory.List(), rooms), nil
}

// Roster returns the occupants of a room in assignment order. Ids missing
// from the directory are reported separately.
func (s *RoomService) Roster(ctx context.Context, roomID string) (room Room, occupants []Attendee, dangling []string, err error) {
	if err = s.ready(); err != nil {
		return
	}
	doc, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		err = mapRepoError(EntityRoom, roomID, "read room", err)
		return
	}
	room, _ = toRoom(doc)
	for _, id := range room.Occupants {
		attendee, ok := s.directory.Get(id)
		if !ok {
			dangling = append(dangling, id)
			continue
		}
		occupants = append(occupants, attendee)
	}
	return
}

// UnassignedAttendees returns the attendees whose id appears in no room's
// occupant list, preserving the input order. It is recomputed on every call.
func UnassignedAttendees(attendees []Attendee, rooms []Room) []Attendee {
	placed := make(map[string]struct{})
	for _, room := range rooms {
		for _, id := range room.Occupants {
			placed[id] = struct{}{}
		}
	}
	out := make([]Attendee, 0, len(attendees))
	for _, attendee := range attendees {
		if _, ok := placed[attendee.ID]; ok {
			continue
		}
		out = append(out, attendee)
	}
	return out
}

// SortRooms orders rooms by number using natural ordering, then by id.
func SortRooms(rooms []Room) {
	sort.SliceStable(rooms, func(i, j int) bool {
		if c := compareNatural(rooms[i].Number, rooms[j].Number); c != 0 {
			return c < 0
		}
		return rooms[i].ID < rooms[j].ID
	})
}

// compareNatural compares strings treating runs of digits as numbers.
func compareNatural(a, b string) int {
	for a != "" && b != "" {
		da, db := isDigit(a[0]), isDigit(b[0])
		switch {
		case da && db:
			na, ra := splitDigits(a)
			nb, rb := splitDigits(b)
			if c := compareDigitRuns(na, nb); c != 0 {
				return c
			}
			a, b = ra, rb
		case a[0] != b[0]:
			if a[0] < b[0] {
				return -1
			}
			return 1
		default:
			a, b = a[1:], b[1:]
		}
	}
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	}
	return 1
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func splitDigits(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func compareDigitRuns(a, b string) int {
	a = trimLeadingZeros(a)
	b = trimLeadingZeros(b)
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func trimLeadingZeros(s string) string {
	for len(s) > 1 && s[0] == '0' {
		s = s[1:]
	}
	return s
}

// mapRepoError converts a store error into the service taxonomy.
func mapRepoError(entity Entity, id, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
