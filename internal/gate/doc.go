// Package gate synchronizes the crossing with the remote gate
// authority, a document store holding one boolean per signal that a
// separate physical controller also reads and writes.
//
// Two flows run against the document. The poll loop (default 5 s, plus
// once at startup) maps true to green and false to red and assigns
// differing signals directly, bypassing the amber machinery, since the
// remote change already completed its own transition elsewhere. The
// push path mirrors confirmed local transitions back with single-field
// PATCH requests, fire-and-forget, with a local mirror suppressing
// redundant writes.
//
// Remote failures are never fatal: a failed fetch skips the cycle, a
// failed push is logged and left for the next poll to reconcile.
package gate
