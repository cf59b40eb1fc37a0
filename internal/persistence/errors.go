package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested document does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrInvalidDocument is returned when a document cannot be stored as given.
	ErrInvalidDocument = errors.New("persistence: invalid document")
)
