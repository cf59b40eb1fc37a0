package application

import (
	"slices"
	"time"
)

// Gender is the normalized gender of an attendee.
type Gender string

const (
	// GenderUnknown marks a gender tag that did not match the normalization table.
	GenderUnknown Gender = ""
	// GenderMale is a male attendee.
	GenderMale Gender = "MALE"
	// GenderFemale is a female attendee.
	GenderFemale Gender = "FEMALE"
)

// GenderPolicy restricts who may occupy a room.
type GenderPolicy string

const (
	// PolicyMixed admits any attendee.
	PolicyMixed GenderPolicy = "MIXED"
	// PolicyMaleOnly admits male attendees only.
	PolicyMaleOnly GenderPolicy = "MALE_ONLY"
	// PolicyFemaleOnly admits female attendees only.
	PolicyFemaleOnly GenderPolicy = "FEMALE_ONLY"
	// PolicyUnrecognized is assigned to rooms whose stored tag could not be
	// normalized. Such rooms admit nobody until the tag is fixed.
	PolicyUnrecognized GenderPolicy = "UNRECOGNIZED"
)

// Admits reports whether an attendee of the given gender may occupy the room.
func (p GenderPolicy) Admits(g Gender) bool {
	switch p {
	case PolicyMixed:
		return true
	case PolicyMaleOnly:
		return g == GenderMale
	case PolicyFemaleOnly:
		return g == GenderFemale
	}
	return false
}

// Attendee is a camp participant as seen by the services.
type Attendee struct {
	ID                   string
	Name                 string
	Gender               Gender
	GroupTag             string
	RoomNumber           string
	Present              bool
	CheckInTime          *time.Time
	KitDelivered         bool
	PaymentStatus        string
	PastoralLetterStatus string
	CommunityMember      bool
	Workshop             string
}

// Room is a dormitory with a capacity and a gender policy.
type Room struct {
	ID        string
	Number    string
	Floor     string
	Type      string
	Policy    GenderPolicy
	Capacity  int
	Occupants []string
}

// Has reports whether the attendee is already an occupant.
func (r Room) Has(attendeeID string) bool {
	return slices.Contains(r.Occupants, attendeeID)
}

// Free returns the number of free beds.
func (r Room) Free() int {
	free := r.Capacity - len(r.Occupants)
	if free < 0 {
		return 0
	}
	return free
}

// Full reports whether the room has no free bed left.
func (r Room) Full() bool {
	return len(r.Occupants) >= r.Capacity
}

// Group is a small group with an explicit roster and a task ledger.
type Group struct {
	ID         string
	Name       string
	LeaderID   string
	AccessCode string
	Color      string
	Members    []string
	Tasks      []Task
	Active     bool
}

// Task is an entry of a group's task ledger.
type Task struct {
	Text        string
	CreatedAt   time.Time
	Completed   bool
	CompletedAt *time.Time
	CreatedBy   string
}

// Role identifies what the acting principal may do.
type Role string

const (
	// RoleOperator is a console operator (camp coordination staff).
	RoleOperator Role = "operator"
	// RoleLeader is a small-group leader authenticated with the group access code.
	RoleLeader Role = "leader"
)

// Principal represents the person invoking a service method.
type Principal struct {
	Label   string
	Role    Role
	GroupID string
}

// AssignParams wraps the data required to place an attendee in a room.
type AssignParams struct {
	AttendeeID string
	RoomID     string
}

// AssignResult is the success notification payload of an assignment.
type AssignResult struct {
	RoomID             string
	RoomNumber         string
	AttendeeID         string
	AttendeeName       string
	Occupants          []string
	AlreadyAssigned    bool
	PreviousRoomNumber string
}

// UnassignParams wraps the data required to remove an attendee from a room.
type UnassignParams struct {
	AttendeeID string
	RoomID     string
}

// UnassignResult reports the outcome of an unassignment.
type UnassignResult struct {
	RoomNumber string
	Occupants  []string
	Removed    bool
}

// ReconcileResult is the outcome of merging a group's roster with tagged attendees.
type ReconcileResult struct {
	GroupID        string
	UpdatedMembers []string
	AddedIDs       []string
}

// ReconcileAllResult aggregates a reconciliation pass over every group.
type ReconcileAllResult struct {
	Groups []ReconcileResult
	// OrphanTags maps group tags that reference no existing group to the
	// attendees carrying them.
	OrphanTags map[string][]string
}

// AddTaskParams wraps the data required to append a task.
type AddTaskParams struct {
	GroupID string
	Text    string
	Author  string
}

// ToggleTaskParams wraps the data required to flip a task's completion.
type ToggleTaskParams struct {
	Principal Principal
	GroupID   string
	Index     int
}

// CheckInResult reports the outcome of a check-in.
type CheckInResult struct {
	Attendee       Attendee
	AlreadyPresent bool
}
