package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/camp-logistics/internal/persistence"
)

// Directory is the in-memory attendee snapshot. It is the identity source
// for the other services and is replaced wholesale on every refresh.
type Directory struct {
	mu        sync.RWMutex
	attendees map[string]Attendee
	loose     map[string]string
	loadedAt  time.Time

	repo   persistence.AttendeeRepository
	hooks  Hooks
	now    func() time.Time
	logger *slog.Logger
}

// NewDirectory constructs an empty directory backed by the repository.
func NewDirectory(repo persistence.AttendeeRepository, now func() time.Time) *Directory {
	return NewDirectoryWithLogger(repo, Hooks{}, now, nil)
}

// NewDirectoryWithLogger constructs a directory with hooks and a specified logger.
func NewDirectoryWithLogger(repo persistence.AttendeeRepository, hooks Hooks, now func() time.Time, logger *slog.Logger) *Directory {
	if now == nil {
		now = time.Now
	}
	return &Directory{
		attendees: make(map[string]Attendee),
		loose:     make(map[string]string),
		repo:      repo,
		hooks:     hooks,
		now:       now,
		logger:    defaultLogger(logger),
	}
}

func (d *Directory) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, d.logger, "Directory", operation, attrs...)
}

// Refresh reloads every attendee from the repository and replaces the snapshot.
func (d *Directory) Refresh(ctx context.Context) (err error) {
	if d == nil {
		return fmt.Errorf("Directory is nil")
	}
	if d.repo == nil {
		return fmt.Errorf("attendee repository not configured")
	}

	started := time.Now()
	logger := d.loggerWith(ctx, "Refresh")
	defer func() {
		d.hooks.observe(ctx, "directory.refresh", started, err)
		if err != nil {
			logger.ErrorContext(ctx, "failed to refresh directory", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	docs, err := d.repo.ListAttendees(ctx)
	if err != nil {
		return &PersistenceError{Op: "list attendees", Err: err}
	}

	attendees := make([]Attendee, 0, len(docs))
	unknownGender := 0
	for _, doc := range docs {
		attendee := toAttendee(doc)
		if attendee.ID == "" {
			logger.WarnContext(ctx, "skipping attendee without id", "name", attendee.Name)
			continue
		}
		if attendee.Gender == GenderUnknown {
			unknownGender++
		}
		attendees = append(attendees, attendee)
	}
	d.Replace(attendees)

	logger.InfoContext(ctx, "directory refreshed",
		"result_count", len(attendees),
		"unknown_gender_count", unknownGender,
	)
	return nil
}

// Replace swaps the whole snapshot. Later calls win regardless of the data
// they carry. Ids that only differ in case or separators stay reachable by
// exact id but not by their shared loose form.
func (d *Directory) Replace(attendees []Attendee) {
	byID := make(map[string]Attendee, len(attendees))
	loose := make(map[string]string, len(attendees))
	for _, attendee := range attendees {
		byID[attendee.ID] = cloneAttendee(attendee)
		if other, clash := addLoose(loose, attendee.ID); clash {
			d.logger.Warn("ambiguous attendee ids; loose lookup disabled",
				"attendee_id", attendee.ID,
				"other_attendee_id", other,
			)
		}
	}

	d.mu.Lock()
	d.attendees = byID
	d.loose = loose
	d.loadedAt = d.now()
	d.mu.Unlock()
}

// LoadedAt reports when the snapshot was last replaced.
func (d *Directory) LoadedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loadedAt
}

// Len returns the number of attendees in the snapshot.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.attendees)
}

// Get returns the attendee with the exact id.
func (d *Directory) Get(id string) (Attendee, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	attendee, ok := d.attendees[id]
	if !ok {
		return Attendee{}, false
	}
	return cloneAttendee(attendee), true
}

// Lookup resolves a raw identifier as typed by an operator or decoded from
// a QR code. Surrounding whitespace is ignored; when no exact match exists,
// separators (dots, dashes, spaces) and letter case are ignored as well.
func (d *Directory) Lookup(raw string) (Attendee, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return Attendee{}, &NotFoundError{Entity: EntityAttendee, ID: raw}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if attendee, ok := d.attendees[id]; ok {
		return cloneAttendee(attendee), nil
	}
	if canonical := d.loose[looseID(id)]; canonical != "" {
		return cloneAttendee(d.attendees[canonical]), nil
	}
	return Attendee{}, &NotFoundError{Entity: EntityAttendee, ID: id}
}

// List returns a copy of the snapshot ordered by name, then id.
func (d *Directory) List() []Attendee {
	d.mu.RLock()
	out := make([]Attendee, 0, len(d.attendees))
	for _, attendee := range d.attendees {
		out = append(out, cloneAttendee(attendee))
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		li, lj := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if li == lj {
			return out[i].ID < out[j].ID
		}
		return li < lj
	})
	return out
}

// CheckIn marks the attendee present and stamps the check-in time. Checking
// in twice keeps the first timestamp.
func (d *Directory) CheckIn(ctx context.Context, raw string) (result CheckInResult, err error) {
	if d == nil {
		err = fmt.Errorf("Directory is nil")
		return
	}

	started := time.Now()
	logger := d.loggerWith(ctx, "CheckIn", "raw_id", strings.TrimSpace(raw))
	defer func() {
		d.hooks.observe(ctx, "directory.checkin", started, err)
		logOutcome(ctx, logger.With("already_present", result.AlreadyPresent), err, "check-in rejected", "attendee checked in")
	}()

	attendee, err := d.Lookup(raw)
	if err != nil {
		return
	}
	if attendee.Present {
		result = CheckInResult{Attendee: attendee, AlreadyPresent: true}
		return
	}

	present := true
	at := d.now()
	patch := persistence.AttendeePatch{Present: &present}
	if attendee.CheckInTime == nil {
		patch.CheckInTime = &at
	}

	updated, err := d.write(ctx, attendee.ID, patch)
	if err != nil {
		return
	}
	result = CheckInResult{Attendee: updated}
	return
}

// DeliverKit records that the attendee received the welcome kit.
func (d *Directory) DeliverKit(ctx context.Context, raw string) (attendee Attendee, err error) {
	if d == nil {
		err = fmt.Errorf("Directory is nil")
		return
	}

	started := time.Now()
	logger := d.loggerWith(ctx, "DeliverKit", "raw_id", strings.TrimSpace(raw))
	defer func() {
		d.hooks.observe(ctx, "directory.kit", started, err)
		logOutcome(ctx, logger, err, "kit delivery rejected", "kit delivered")
	}()

	attendee, err = d.Lookup(raw)
	if err != nil {
		return
	}
	if attendee.KitDelivered {
		return
	}

	delivered := true
	attendee, err = d.write(ctx, attendee.ID, persistence.AttendeePatch{KitDelivered: &delivered})
	return
}

// write persists the patch and applies the stored result to the snapshot.
func (d *Directory) write(ctx context.Context, id string, patch persistence.AttendeePatch) (Attendee, error) {
	if d.repo == nil {
		return Attendee{}, fmt.Errorf("attendee repository not configured")
	}
	doc, err := d.repo.UpdateAttendee(ctx, id, patch)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return Attendee{}, &NotFoundError{Entity: EntityAttendee, ID: id}
		}
		return Attendee{}, &PersistenceError{Op: "update attendee", Err: err}
	}
	updated := toAttendee(doc)
	d.apply(updated)
	d.hooks.notify(ctx, d.logger, Change{Collection: "attendees", DocumentID: id, Operation: "update"})
	return updated, nil
}

// apply stores one attendee in the snapshot after a successful write.
func (d *Directory) apply(attendee Attendee) {
	d.mu.Lock()
	d.attendees[attendee.ID] = cloneAttendee(attendee)
	addLoose(d.loose, attendee.ID)
	d.mu.Unlock()
}

// addLoose indexes id by its loose form. A loose form shared by two ids maps
// to the empty string so it resolves to nobody; the first other id is
// returned for logging.
func addLoose(loose map[string]string, id string) (string, bool) {
	key := looseID(id)
	current, seen := loose[key]
	switch {
	case !seen:
		loose[key] = id
		return "", false
	case current == id:
		return "", false
	default:
		loose[key] = ""
		return current, true
	}
}

func looseID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range strings.ToUpper(id) {
		switch r {
		case '.', '-', ' ', '_', '/':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
