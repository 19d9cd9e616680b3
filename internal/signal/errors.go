package signal

import "errors"

// Sentinel errors for signal commands.
var (
	// ErrInvalidFlow indicates a flow command with an unrecognised mode
	// or direction, or with neither present.
	ErrInvalidFlow = errors.New("signal: invalid flow command")

	// ErrInvalidPhase indicates a signal record holding a phase the
	// controller cannot dispatch on. Should not happen through this
	// package's mutation paths.
	ErrInvalidPhase = errors.New("signal: invalid phase")
)

// errSuperseded marks a delayed completion whose generation no longer
// matches. Internal; callers log it at debug and move on.
var errSuperseded = errors.New("signal: completion superseded")
