package replay

import "errors"

// Replay errors
var (
	// ErrCorruptStream is returned when an event id reappears with different content.
	ErrCorruptStream = errors.New("corrupt event stream")

	// ErrSnapshotMismatch is returned when restoring a snapshot into a different run.
	ErrSnapshotMismatch = errors.New("snapshot does not match run")

	// ErrInvalidCapital is returned when the starting capital is not positive.
	ErrInvalidCapital = errors.New("starting capital must be positive")
)
