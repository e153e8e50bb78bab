package domain

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	// ErrMalformedEvent is returned for events missing required fields.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrInvalidConfig is returned when a strategy configuration cannot be run.
	ErrInvalidConfig = errors.New("invalid strategy config")
)

func malformed(field string) error {
	return fmt.Errorf("%w: %s", ErrMalformedEvent, field)
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
