package domain

import "errors"

var (
	// ErrNotFound is returned when an entity ID is not in its library.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateName is returned when adding or renaming an entity to a name
	// another record already uses (case-insensitive).
	ErrDuplicateName = errors.New("duplicate name")

	// ErrInvalidEntity is returned when a record violates a library invariant.
	ErrInvalidEntity = errors.New("invalid entity")
)
