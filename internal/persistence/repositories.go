package persistence

import (
	"context"
	"slices"
	"time"
)

// AttendeePatch lists the attendee fields a partial update may touch. Nil
// fields are left untouched; an empty Room clears the room assignment.
type AttendeePatch struct {
	Room         *string
	Present      *bool
	CheckInTime  *time.Time
	KitDelivered *bool
}

// Apply writes the populated patch fields onto the attendee.
func (p AttendeePatch) Apply(a *Attendee) {
	if p.Room != nil {
		a.Room = *p.Room
	}
	if p.Present != nil {
		a.Present = *p.Present
	}
	if p.CheckInTime != nil {
		a.CheckInTime = cloneTime(p.CheckInTime)
	}
	if p.KitDelivered != nil {
		a.KitDelivered = *p.KitDelivered
	}
}

// RoomPatch lists the room fields a partial update may touch. A nil
// Occupants slice is left untouched; an empty non-nil slice empties the room.
type RoomPatch struct {
	Occupants []string
}

// Apply writes the populated patch fields onto the room.
func (p RoomPatch) Apply(r *Room) {
	if p.Occupants != nil {
		r.Occupants = slices.Clone(p.Occupants)
	}
}

// GroupPatch lists the group fields a partial update may touch.
type GroupPatch struct {
	Members []string
	Tasks   []Task
	Active  *bool
}

// Apply writes the populated patch fields onto the group.
func (p GroupPatch) Apply(g *Group) {
	if p.Members != nil {
		g.Members = slices.Clone(p.Members)
	}
	if p.Tasks != nil {
		g.Tasks = CloneGroup(Group{Tasks: p.Tasks}).Tasks
	}
	if p.Active != nil {
		g.Active = *p.Active
	}
}

// AttendeeRepository exposes the attendee collection.
type AttendeeRepository interface {
	ListAttendees(ctx context.Context) ([]Attendee, error)
	GetAttendee(ctx context.Context, id string) (Attendee, error)
	UpsertAttendee(ctx context.Context, attendee Attendee) error
	UpdateAttendee(ctx context.Context, id string, patch AttendeePatch) (Attendee, error)
}

// RoomRepository exposes the room collection.
type RoomRepository interface {
	ListRooms(ctx context.Context) ([]Room, error)
	GetRoom(ctx context.Context, id string) (Room, error)
	UpsertRoom(ctx context.Context, room Room) error
	UpdateRoom(ctx context.Context, id string, patch RoomPatch) (Room, error)
}

// GroupRepository exposes the group collection.
type GroupRepository interface {
	ListGroups(ctx context.Context) ([]Group, error)
	GetGroup(ctx context.Context, id string) (Group, error)
	UpsertGroup(ctx context.Context, group Group) error
	UpdateGroup(ctx context.Context, id string, patch GroupPatch) (Group, error)
}

// Store groups every collection of the camp document store.
type Store interface {
	AttendeeRepository
	RoomRepository
	GroupRepository
}

// Transactor is implemented by stores able to apply several writes as a
// single unit. The callback receives a Store bound to the transaction; any
// error returned rolls every write back.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(tx Store) error) error
}
