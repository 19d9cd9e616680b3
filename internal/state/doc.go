// Package state owns the live crossing state: both signal records, the
// flow directive, and the merged vehicle telemetry snapshot.
//
// One mutex is the single cooperative scheduling domain. Every mutation
// runs inside Store.Update; every read takes Store.Snapshot, a deep
// copy safe to serialize without further locking. Timer-driven work
// (amber completions, the gate poll, connection pings) takes the mutex
// only for the duration of its mutation, so no activity blocks another
// while waiting on I/O.
//
// Repository persists the current and most recent snapshot to SQLite
// and restores them at boot. Persistence is detached and best-effort;
// it never blocks or fails a command.
package state
