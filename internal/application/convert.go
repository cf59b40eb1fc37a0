package application

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/example/camp-logistics/internal/persistence"
)

// toAttendee normalizes a stored attendee document. Gender tags are parsed
// once here so the services never look at the free text again.
func toAttendee(doc persistence.Attendee) Attendee {
	return Attendee{
		ID:                   strings.TrimSpace(doc.ID),
		Name:                 strings.TrimSpace(doc.Name),
		Gender:               ParseGender(doc.Gender),
		GroupTag:             strings.TrimSpace(doc.Group),
		RoomNumber:           strings.TrimSpace(doc.Room),
		Present:              doc.Present,
		CheckInTime:          cloneTime(doc.CheckInTime),
		KitDelivered:         doc.KitDelivered,
		PaymentStatus:        strings.TrimSpace(doc.PaymentStatus),
		PastoralLetterStatus: strings.TrimSpace(doc.PastoralLetterStatus),
		CommunityMember:      doc.CommunityMember,
		Workshop:             strings.TrimSpace(doc.Workshop),
	}
}

// toRoom normalizes a stored room document. Unrecognized policy tags are
// reported through the validation error while the room is still returned
// with PolicyUnrecognized.
func toRoom(doc persistence.Room) (Room, *ValidationError) {
	vErr := &ValidationError{}
	policy, ok := ParseGenderPolicy(doc.Gender)
	if !ok {
		vErr.add(fmt.Sprintf("rooms.%s.genero", doc.ID), fmt.Sprintf("unrecognized gender policy %q", doc.Gender))
	}
	if doc.Capacity <= 0 {
		vErr.add(fmt.Sprintf("rooms.%s.capacidad", doc.ID), "capacity must be positive")
	}
	room := Room{
		ID:        doc.ID,
		Number:    strings.TrimSpace(doc.Number),
		Floor:     strings.TrimSpace(doc.Floor),
		Type:      strings.TrimSpace(doc.Type),
		Policy:    policy,
		Capacity:  doc.Capacity,
		Occupants: dedupe(doc.Occupants),
	}
	if room.Number == "" {
		room.Number = room.ID
	}
	if !vErr.HasErrors() {
		return room, nil
	}
	return room, vErr
}

func toRooms(docs []persistence.Room) ([]Room, *ValidationError) {
	rooms := make([]Room, 0, len(docs))
	all := &ValidationError{}
	for _, doc := range docs {
		room, vErr := toRoom(doc)
		all.merge(vErr)
		rooms = append(rooms, room)
	}
	if all.HasErrors() {
		return rooms, all
	}
	return rooms, nil
}

func toGroup(doc persistence.Group) Group {
	tasks := make([]Task, 0, len(doc.Tasks))
	for _, task := range doc.Tasks {
		tasks = append(tasks, Task{
			Text:        task.Text,
			CreatedAt:   task.CreatedAt,
			Completed:   task.Completed,
			CompletedAt: cloneTime(task.CompletedAt),
			CreatedBy:   task.CreatedBy,
		})
	}
	return Group{
		ID:         strings.TrimSpace(doc.ID),
		Name:       strings.TrimSpace(doc.Name),
		LeaderID:   strings.TrimSpace(doc.LeaderID),
		AccessCode: strings.TrimSpace(doc.AccessCode),
		Color:      doc.Color,
		Members:    dedupe(doc.Members),
		Tasks:      tasks,
		Active:     doc.Active,
	}
}

func toPersistenceTasks(tasks []Task) []persistence.Task {
	out := make([]persistence.Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, persistence.Task{
			Text:        task.Text,
			CreatedAt:   task.CreatedAt,
			Completed:   task.Completed,
			CompletedAt: cloneTime(task.CompletedAt),
			CreatedBy:   task.CreatedBy,
		})
	}
	return out
}

// dedupe drops blank and repeated ids while keeping first-seen order.
func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func without(ids []string, id string) []string {
	return slices.DeleteFunc(slices.Clone(ids), func(v string) bool { return v == id })
}

func cloneAttendee(a Attendee) Attendee {
	a.CheckInTime = cloneTime(a.CheckInTime)
	return a
}

func cloneRoom(r Room) Room {
	r.Occupants = slices.Clone(r.Occupants)
	return r
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
