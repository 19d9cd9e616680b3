package influxdb

import "errors"

// Sentinel errors for InfluxDB operations.
var (
	// ErrInvalidConfig indicates the client configuration is incomplete.
	ErrInvalidConfig = errors.New("influxdb: invalid configuration")

	// ErrConnectionFailed indicates the server readiness probe failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")
)
