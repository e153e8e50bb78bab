package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a run has no snapshot or stats row yet.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a batch repeats a key already written
	// to one of the append-only stores: closed positions or curve points.
	// Those outputs are never rewritten, so a retry of the same batch fails whole.
	ErrDuplicateKey = errors.New("duplicate key in append-only store")

	// ErrInvalidInput is returned for writes missing the ids a store keys on.
	ErrInvalidInput = errors.New("invalid input")
)

// Invalid wraps ErrInvalidInput with the missing or bad field.
func Invalid(what string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, what)
}
