package storage

import "errors"

// Sentinel errors shared by all backends. Callers match these with
// errors.Is; backends wrap driver errors with %w and context.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the caller supplied data that fails
	// validation before it reaches the database.
	ErrInvalidInput = errors.New("invalid input")
)
