package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/camp-logistics/internal/persistence"
)

// Dataset is a batch of documents to load into the store, as exported by
// the registration system.
type Dataset struct {
	Attendees []persistence.Attendee `json:"asistentes"`
	Rooms     []persistence.Room     `json:"habitaciones"`
	Groups    []persistence.Group    `json:"grupos"`
}

// IngestResult counts the documents written.
type IngestResult struct {
	Attendees int
	Rooms     int
	Groups    int
}

// IngestService validates a dataset once at the boundary and upserts it.
type IngestService struct {
	store  persistence.Store
	newID  func() string
	hooks  Hooks
	logger *slog.Logger
}

// NewIngestService constructs an ingest service with the provided dependencies.
func NewIngestService(store persistence.Store, newID func() string) *IngestService {
	return NewIngestServiceWithLogger(store, newID, Hooks{}, nil)
}

// NewIngestServiceWithLogger constructs an ingest service with hooks and a specified logger.
func NewIngestServiceWithLogger(store persistence.Store, newID func() string, hooks Hooks, logger *slog.Logger) *IngestService {
	if newID == nil {
		newID = func() string { return "" }
	}
	return &IngestService{store: store, newID: newID, hooks: hooks, logger: defaultLogger(logger)}
}

// Validate normalizes the dataset in place and reports every problem found.
// Attendees without an id receive a generated one. Rooms must carry a
// recognized gender policy and a positive capacity, and no attendee may sit
// in two rooms or in a room beyond its capacity.
func (s *IngestService) Validate(data *Dataset) *ValidationError {
	vErr := &ValidationError{}

	attendeeIDs := make(map[string]struct{}, len(data.Attendees))
	for i := range data.Attendees {
		doc := &data.Attendees[i]
		doc.ID = strings.TrimSpace(doc.ID)
		if doc.ID == "" {
			doc.ID = s.newID()
		}
		if doc.ID == "" {
			vErr.add(fmt.Sprintf("attendees[%d].id", i), "id is required")
			continue
		}
		if _, dup := attendeeIDs[doc.ID]; dup {
			vErr.add(fmt.Sprintf("attendees[%d].id", i), fmt.Sprintf("duplicate id %q", doc.ID))
			continue
		}
		attendeeIDs[doc.ID] = struct{}{}
		if strings.TrimSpace(doc.Name) == "" {
			vErr.add(fmt.Sprintf("attendees.%s.nombre", doc.ID), "name is required")
		}
	}

	roomIDs := make(map[string]struct{}, len(data.Rooms))
	placedIn := make(map[string]string)
	for i := range data.Rooms {
		doc := &data.Rooms[i]
		doc.ID = strings.TrimSpace(doc.ID)
		if doc.ID == "" {
			doc.ID = strings.TrimSpace(doc.Number)
		}
		if doc.ID == "" {
			vErr.add(fmt.Sprintf("rooms[%d].id", i), "id or number is required")
			continue
		}
		if _, dup := roomIDs[doc.ID]; dup {
			vErr.add(fmt.Sprintf("rooms[%d].id", i), fmt.Sprintf("duplicate id %q", doc.ID))
			continue
		}
		roomIDs[doc.ID] = struct{}{}

		room, roomErr := toRoom(*doc)
		vErr.merge(roomErr)
		doc.Occupants = room.Occupants
		if room.Capacity > 0 && len(room.Occupants) > room.Capacity {
			vErr.add(fmt.Sprintf("rooms.%s.ocupantes", doc.ID), fmt.Sprintf("%d occupants exceed capacity %d", len(room.Occupants), room.Capacity))
		}
		for _, id := range room.Occupants {
			if other, ok := placedIn[id]; ok {
				vErr.add(fmt.Sprintf("rooms.%s.ocupantes", doc.ID), fmt.Sprintf("attendee %q already placed in room %q", id, other))
				continue
			}
			placedIn[id] = doc.ID
		}
	}

	groupIDs := make(map[string]struct{}, len(data.Groups))
	for i := range data.Groups {
		doc := &data.Groups[i]
		doc.ID = strings.TrimSpace(doc.ID)
		if doc.ID == "" {
			vErr.add(fmt.Sprintf("groups[%d].id", i), "id is required")
			continue
		}
		if _, dup := groupIDs[doc.ID]; dup {
			vErr.add(fmt.Sprintf("groups[%d].id", i), fmt.Sprintf("duplicate id %q", doc.ID))
			continue
		}
		groupIDs[doc.ID] = struct{}{}
		doc.Members = dedupe(doc.Members)
		for j := range doc.Tasks {
			if strings.TrimSpace(doc.Tasks[j].Text) == "" {
				vErr.add(fmt.Sprintf("groups.%s.tareas[%d].texto", doc.ID, j), "task text must not be empty")
			}
		}
	}

	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

// Ingest validates and upserts the dataset. Nothing is written when
// validation fails.
func (s *IngestService) Ingest(ctx context.Context, data Dataset) (result IngestResult, err error) {
	if s == nil || s.store == nil {
		err = fmt.Errorf("ingest store not configured")
		return
	}

	started := time.Now()
	logger := serviceLogger(ctx, s.logger, "IngestService", "Ingest")
	defer func() {
		s.hooks.observe(ctx, "ingest", started, err)
		logOutcome(ctx, logger.With("attendees", result.Attendees, "rooms", result.Rooms, "groups", result.Groups),
			err, "ingest failed", "dataset ingested")
	}()

	if vErr := s.Validate(&data); vErr != nil {
		err = vErr
		return
	}

	write := func(tx persistence.Store) error {
		result = IngestResult{}
		for _, doc := range data.Attendees {
			if err := tx.UpsertAttendee(ctx, doc); err != nil {
				return &PersistenceError{Op: "upsert attendee", Err: err}
			}
			result.Attendees++
		}
		for _, doc := range data.Rooms {
			if err := tx.UpsertRoom(ctx, doc); err != nil {
				return &PersistenceError{Op: "upsert room", Err: err}
			}
			result.Rooms++
		}
		for _, doc := range data.Groups {
			if err := tx.UpsertGroup(ctx, doc); err != nil {
				return &PersistenceError{Op: "upsert group", Err: err}
			}
			result.Groups++
		}
		return nil
	}

	if t, ok := s.store.(persistence.Transactor); ok {
		err = t.WithinTransaction(ctx, write)
	} else {
		err = write(s.store)
	}
	if err != nil {
		return
	}
	s.hooks.notify(ctx, logger, Change{Collection: "*", Operation: "ingest"})
	return
}
