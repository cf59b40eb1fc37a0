package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/camp-logistics/internal/persistence"
)

var (
	attendeeCounter uint64
	roomCounter     uint64
	groupCounter    uint64
)

var referenceTime = time.Date(2026, time.January, 10, 8, 0, 0, 0, time.UTC)

// ReferenceTime returns the opening morning of the camp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Attendee fixtures -----------------------------

// AttendeeOption configures a generated attendee document.
type AttendeeOption func(*persistence.Attendee)

// NewAttendee returns an attendee document with a unique id and a female
// gender tag unless overridden.
func NewAttendee(opts ...AttendeeOption) persistence.Attendee {
	idx := atomic.AddUint64(&attendeeCounter, 1)
	doc := persistence.Attendee{
		ID:            fmt.Sprintf("att-%03d", idx),
		Name:          fmt.Sprintf("Asistente %03d", idx),
		Gender:        "Femenino",
		PaymentStatus: "pagado",
	}
	for _, opt := range opts {
		opt(&doc)
	}
	return doc
}

// WithAttendeeID overrides the id.
func WithAttendeeID(id string) AttendeeOption {
	return func(a *persistence.Attendee) { a.ID = id }
}

// WithName overrides the name.
func WithName(name string) AttendeeOption {
	return func(a *persistence.Attendee) { a.Name = name }
}

// WithGenderTag sets the raw gender tag.
func WithGenderTag(tag string) AttendeeOption {
	return func(a *persistence.Attendee) { a.Gender = tag }
}

// WithGroupTag sets the raw group tag.
func WithGroupTag(tag string) AttendeeOption {
	return func(a *persistence.Attendee) { a.Group = tag }
}

// WithRoomNumber sets the denormalized room number.
func WithRoomNumber(number string) AttendeeOption {
	return func(a *persistence.Attendee) { a.Room = number }
}

// WithWorkshop sets the workshop.
func WithWorkshop(workshop string) AttendeeOption {
	return func(a *persistence.Attendee) { a.Workshop = workshop }
}

// CheckedInAt marks the attendee present at t.
func CheckedInAt(t time.Time) AttendeeOption {
	return func(a *persistence.Attendee) {
		a.Present = true
		a.CheckInTime = &t
	}
}

// ----------------------------- Room fixtures -----------------------------

// RoomOption configures a generated room document.
type RoomOption func(*persistence.Room)

// NewRoom returns a mixed room for two with a unique number.
func NewRoom(opts ...RoomOption) persistence.Room {
	idx := atomic.AddUint64(&roomCounter, 1)
	number := fmt.Sprintf("%d", 100+idx)
	doc := persistence.Room{
		ID:        "room-" + number,
		Number:    number,
		Floor:     "1",
		Type:      "litera",
		Gender:    "Mixto",
		Capacity:  2,
		Occupants: []string{},
	}
	for _, opt := range opts {
		opt(&doc)
	}
	return doc
}

// WithRoomID overrides the id.
func WithRoomID(id string) RoomOption {
	return func(r *persistence.Room) { r.ID = id }
}

// WithNumber overrides the room number.
func WithNumber(number string) RoomOption {
	return func(r *persistence.Room) { r.Number = number }
}

// WithPolicyTag sets the raw gender policy tag.
func WithPolicyTag(tag string) RoomOption {
	return func(r *persistence.Room) { r.Gender = tag }
}

// WithCapacity sets the capacity.
func WithCapacity(capacity int) RoomOption {
	return func(r *persistence.Room) { r.Capacity = capacity }
}

// WithOccupants sets the occupant ids.
func WithOccupants(ids ...string) RoomOption {
	return func(r *persistence.Room) { r.Occupants = append([]string{}, ids...) }
}

// ----------------------------- Group fixtures -----------------------------

// GroupOption configures a generated group document.
type GroupOption func(*persistence.Group)

// NewGroup returns an active group with an access code derived from its id.
func NewGroup(opts ...GroupOption) persistence.Group {
	idx := atomic.AddUint64(&groupCounter, 1)
	id := fmt.Sprintf("g%d", idx)
	doc := persistence.Group{
		ID:         id,
		Name:       fmt.Sprintf("Grupo %d", idx),
		AccessCode: fmt.Sprintf("CODE%03d", idx),
		Color:      "#3b82f6",
		Members:    []string{},
		Tasks:      []persistence.Task{},
		Active:     true,
	}
	for _, opt := range opts {
		opt(&doc)
	}
	return doc
}

// WithGroupID overrides the id.
func WithGroupID(id string) GroupOption {
	return func(g *persistence.Group) { g.ID = id }
}

// WithLeader sets the leader id.
func WithLeader(id string) GroupOption {
	return func(g *persistence.Group) { g.LeaderID = id }
}

// WithAccessCode sets the access code.
func WithAccessCode(code string) GroupOption {
	return func(g *persistence.Group) { g.AccessCode = code }
}

// WithMembers sets the explicit roster.
func WithMembers(ids ...string) GroupOption {
	return func(g *persistence.Group) { g.Members = append([]string{}, ids...) }
}

// WithTasks appends open tasks created at ReferenceTime.
func WithTasks(texts ...string) GroupOption {
	return func(g *persistence.Group) {
		for _, text := range texts {
			g.Tasks = append(g.Tasks, persistence.Task{Text: text, CreatedAt: referenceTime, CreatedBy: g.LeaderID})
		}
	}
}
