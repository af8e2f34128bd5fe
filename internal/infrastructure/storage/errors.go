package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a run with the same ID was already stored.
	ErrDuplicateKey = errors.New("duplicate key")
)
