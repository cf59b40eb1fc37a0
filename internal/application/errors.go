package application

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the acting principal lacks permission for an operation.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrRoomFull is returned when a room has no free bed.
	ErrRoomFull = errors.New("application: room full")
	// ErrGenderMismatch is returned when an attendee does not satisfy a room's gender policy.
	ErrGenderMismatch = errors.New("application: gender policy violation")
	// ErrIndexOutOfRange is returned when a task index is outside the ledger.
	ErrIndexOutOfRange = errors.New("application: index out of range")
	// ErrPersistence is returned when the document store rejected or failed a write.
	ErrPersistence = errors.New("application: persistence failure")
)

// Entity names the kind of record an error refers to.
type Entity string

const (
	EntityAttendee Entity = "attendee"
	EntityRoom     Entity = "room"
	EntityGroup    Entity = "group"
)

// NotFoundError reports a missing attendee, room or group.
type NotFoundError struct {
	Entity Entity
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// CapacityError reports an assignment into a room without free beds.
type CapacityError struct {
	RoomNumber string
	Current    int
	Capacity   int
}

// Error implements the error interface.
func (e *CapacityError) Error() string {
	return fmt.Sprintf("room %s is full (%d/%d)", e.RoomNumber, e.Current, e.Capacity)
}

// Is matches ErrRoomFull.
func (e *CapacityError) Is(target error) bool {
	return target == ErrRoomFull
}

// PolicyError reports an attendee whose gender does not match the room policy.
type PolicyError struct {
	AttendeeName string
	Gender       Gender
	RoomNumber   string
	Policy       GenderPolicy
}

// Error implements the error interface.
func (e *PolicyError) Error() string {
	gender := string(e.Gender)
	if e.Gender == GenderUnknown {
		gender = "unrecognized gender"
	}
	return fmt.Sprintf("%s (%s) cannot be placed in room %s (%s)", e.AttendeeName, gender, e.RoomNumber, e.Policy)
}

// Is matches ErrGenderMismatch.
func (e *PolicyError) Is(target error) bool {
	return target == ErrGenderMismatch
}

// IndexError reports a task index outside the ledger bounds.
type IndexError struct {
	Index  int
	Length int
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	return fmt.Sprintf("task index %d out of range [0,%d)", e.Index, e.Length)
}

// Is matches ErrIndexOutOfRange.
func (e *IndexError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}

// PersistenceError wraps a failed document store call. No local state was
// changed when it is returned, so callers may retry without re-validating.
type PersistenceError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying store error.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}
