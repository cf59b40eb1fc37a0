package persistence

import (
	"slices"
	"time"
)

// Attendee is the stored camper document. Field names follow the remote
// document schema used by the console and must not change.
type Attendee struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"nombre"`
	Gender               string     `json:"genero,omitempty"`
	Group                string     `json:"grupo,omitempty"`
	Room                 string     `json:"habitacion,omitempty"`
	Present              bool       `json:"presente"`
	CheckInTime          *time.Time `json:"horaCheckIn,omitempty"`
	KitDelivered         bool       `json:"kitEntregado"`
	PaymentStatus        string     `json:"estadoPago,omitempty"`
	PastoralLetterStatus string     `json:"cartaPastoral,omitempty"`
	CommunityMember      bool       `json:"miembroComunidad"`
	Workshop             string     `json:"taller,omitempty"`
}

// Room is the stored dormitory document.
type Room struct {
	ID        string   `json:"id"`
	Number    string   `json:"numero"`
	Floor     string   `json:"piso,omitempty"`
	Type      string   `json:"tipo,omitempty"`
	Gender    string   `json:"genero,omitempty"`
	Capacity  int      `json:"capacidad"`
	Occupants []string `json:"ocupantes"`
}

// Group is the stored small-group document.
type Group struct {
	ID         string   `json:"id"`
	Name       string   `json:"nombre"`
	LeaderID   string   `json:"liderId,omitempty"`
	AccessCode string   `json:"codigoAcceso,omitempty"`
	Color      string   `json:"color,omitempty"`
	Members    []string `json:"miembros"`
	Tasks      []Task   `json:"tareas"`
	Active     bool     `json:"activo"`
}

// Task is an entry of a group's task ledger.
type Task struct {
	Text        string     `json:"texto"`
	CreatedAt   time.Time  `json:"fechaCreacion"`
	Completed   bool       `json:"completada"`
	CompletedAt *time.Time `json:"fechaCompletada,omitempty"`
	CreatedBy   string     `json:"creadoPor,omitempty"`
}

// CloneAttendee returns a deep copy of the attendee.
func CloneAttendee(a Attendee) Attendee {
	a.CheckInTime = cloneTime(a.CheckInTime)
	return a
}

// CloneRoom returns a deep copy of the room.
func CloneRoom(r Room) Room {
	r.Occupants = slices.Clone(r.Occupants)
	return r
}

// CloneGroup returns a deep copy of the group.
func CloneGroup(g Group) Group {
	g.Members = slices.Clone(g.Members)
	if g.Tasks != nil {
		tasks := make([]Task, len(g.Tasks))
		for i, task := range g.Tasks {
			task.CompletedAt = cloneTime(task.CompletedAt)
			tasks[i] = task
		}
		g.Tasks = tasks
	}
	return g
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
