// Package signal encodes the legal phase transitions for the crossing's
// signal pair and schedules the amber-delay completions.
//
// Green and red requests announce yellow immediately, then complete to
// the terminal phase after the amber delay (default 1 s). Pairwise
// exclusivity is enforced only on green paths; the flow-direction
// command deliberately drives both signals green at once, reflecting
// lane-level clearance rather than single-lane exclusion.
//
// A second command issued inside the amber window supersedes the first:
// each signal carries a generation counter, and a delayed completion
// applies only if the generation captured at schedule time still
// matches. Confirmed terminal transitions are mirrored to the external
// gate authority through GatePusher, fire-and-forget.
package signal
