package gate

import "errors"

// Sentinel errors for gate operations.
var (
	// ErrInvalidConfig indicates a missing or unparsable document URL.
	ErrInvalidConfig = errors.New("gate: invalid configuration")

	// ErrRemoteUnavailable indicates the document store could not be
	// reached or refused the request. The cycle is skipped and retried
	// on the next tick.
	ErrRemoteUnavailable = errors.New("gate: remote unavailable")

	// ErrMalformedDocument indicates the remote returned a document
	// this client cannot parse.
	ErrMalformedDocument = errors.New("gate: malformed document")
)

// errUnchanged marks a poll that found no differing signals. Internal;
// it suppresses the persistence hook and broadcast for no-op cycles.
var errUnchanged = errors.New("gate: no change")
