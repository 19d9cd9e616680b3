// Package api provides the HTTP control surface and the live state
// stream for Crossing Core.
//
// The REST routes under /api/v1 accept operator commands (per-signal
// red/yellow/green/toggle, flow changes, emergency stop), pushed
// telemetry, and state reads. The WebSocket endpoint streams one-way
// full-state events to observers: a tagged snapshot on every mutation,
// an initial snapshot on connect, and a periodic liveness ping.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
