package influxdb

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Client configuration constants.
const (
	// defaultBatchSize is the number of points batched before a write.
	defaultBatchSize = 100

	// defaultFlushInterval is how often batched points are flushed (ms).
	defaultFlushInterval = 1000

	// healthCheckTimeout bounds the readiness probe at connect time.
	healthCheckTimeout = 5 * time.Second
)

// Logger is the minimal logging interface this package needs.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Config contains InfluxDB connection settings.
// These map to the influxdb section of config.yaml.
type Config struct {
	// Enabled controls whether telemetry export is active.
	// When false, all write calls are silent no-ops.
	Enabled bool

	// URL is the InfluxDB server address (e.g. http://localhost:8086).
	URL string

	// Token is the API token with write access to the bucket.
	Token string

	// Org is the InfluxDB organisation name.
	Org string

	// Bucket is the destination bucket for crossing telemetry.
	Bucket string
}

// Client wraps the InfluxDB client with non-blocking batched writes.
// Points are buffered and flushed in the background so telemetry export
// never stalls the merge path.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	enabled  bool
	logger   Logger
}

// New creates an InfluxDB client from the given configuration.
//
// When cfg.Enabled is false a disabled client is returned; every write
// method on it is a no-op and Close is safe to call. This keeps the
// caller free of conditional wiring.
//
// Write errors from the background flusher are drained and logged, not
// returned, because the batched API is fire-and-forget.
func New(cfg Config, logger Logger) (*Client, error) {
	if !cfg.Enabled {
		return &Client{enabled: false, logger: logger}, nil
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrInvalidConfig)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", ErrInvalidConfig)
	}

	options := influxdb2.DefaultOptions().
		SetBatchSize(defaultBatchSize).
		SetFlushInterval(defaultFlushInterval)

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, options)

	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	ready, err := client.Ready(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if ready == nil || ready.Status == nil {
		client.Close()
		return nil, fmt.Errorf("%w: no readiness status", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	c := &Client{
		client:   client,
		writeAPI: writeAPI,
		enabled:  true,
		logger:   logger,
	}

	go c.drainErrors()

	return c, nil
}

// drainErrors logs asynchronous write failures from the batch flusher.
// The error channel must be consumed or the write API can block.
func (c *Client) drainErrors() {
	for err := range c.writeAPI.Errors() {
		if c.logger != nil {
			c.logger.Error("influxdb write failed", "error", err)
		}
	}
}

// Enabled reports whether telemetry export is active.
func (c *Client) Enabled() bool {
	return c.enabled
}

// Flush forces any buffered points to be written immediately.
// Useful before shutdown or in tests.
func (c *Client) Flush() {
	if !c.enabled {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes remaining points and releases client resources.
func (c *Client) Close() {
	if !c.enabled {
		return
	}
	c.writeAPI.Flush()
	c.client.Close()
}
