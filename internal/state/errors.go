package state

import "errors"

// Sentinel errors for state operations.
var (
	// ErrUnknownSignal indicates a command referenced a signal id that
	// does not exist. No state change occurs.
	ErrUnknownSignal = errors.New("state: unknown signal")

	// ErrInvalidSignals indicates the store was constructed with a
	// signal set that is not exactly two distinct signals.
	ErrInvalidSignals = errors.New("state: invalid signal set")

	// ErrNoSnapshot indicates no persisted snapshot exists yet.
	ErrNoSnapshot = errors.New("state: no snapshot")
)
