package telemetry

import "errors"

// Sentinel errors for telemetry merging.
var (
	// ErrMalformedPayload indicates an unparsable message. It is logged
	// and dropped; the prior snapshot is retained.
	ErrMalformedPayload = errors.New("telemetry: malformed payload")

	// ErrUnknownTopic indicates a message on a sub-topic outside the
	// known hierarchy.
	ErrUnknownTopic = errors.New("telemetry: unknown topic")
)
