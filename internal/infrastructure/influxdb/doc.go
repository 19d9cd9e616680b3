// Package influxdb exports crossing telemetry to InfluxDB 2.x.
//
// Vehicle counts, speed aggregates, flow rates, and signal phase changes
// are written as batched, non-blocking points after each telemetry merge.
// The batch flusher runs in the background; write errors are logged and
// never surface into the merge path.
//
// Export is optional. When disabled in configuration, New returns a
// client whose write methods are no-ops, so callers need no conditional
// wiring.
package influxdb
