package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Crossing Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Crossing  CrossingConfig  `yaml:"crossing"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Gate      GateConfig      `yaml:"gate"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CrossingConfig describes the signal pair this instance controls.
type CrossingConfig struct {
	ID      string         `yaml:"id"`
	Name    string         `yaml:"name"`
	Signals []SignalConfig `yaml:"signals"`

	// AmberDelayMS is the mandatory wait between an announced transition
	// (yellow) and its terminal phase, in milliseconds.
	AmberDelayMS int `yaml:"amber_delay_ms"`
}

// SignalConfig describes one of the two paired traffic signals.
type SignalConfig struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	PairRole    string `yaml:"pair_role"` // "a" or "b"
}

// AmberDelay returns the amber delay as a Duration.
func (c CrossingConfig) AmberDelay() time.Duration {
	return time.Duration(c.AmberDelayMS) * time.Millisecond
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// TelemetryConfig contains vehicle telemetry ingestion settings.
type TelemetryConfig struct {
	// BaseTopic is the root topic of the vehicle-counting pipeline.
	// Sub-topics (car, truck, bus, motorcycle, emergency, traffic_light,
	// speeds) hang directly beneath it.
	BaseTopic string `yaml:"base_topic"`
}

// GateConfig contains remote gate document settings.
//
// The gate document is a remote document-store record with one boolean
// field per signal. A separate physical controller reads and writes the
// same document, which is why it is polled rather than assumed.
type GateConfig struct {
	Enabled bool `yaml:"enabled"`

	// DocumentURL is the full REST URL of the gate document.
	DocumentURL string `yaml:"document_url"`

	// APIKey is appended as the key query parameter when set.
	APIKey string `yaml:"api_key"`

	// BearerToken is sent as an Authorization header when set.
	BearerToken string `yaml:"bearer_token"`

	// Fields maps signal IDs to document field names.
	Fields map[string]string `yaml:"fields"`

	// PollIntervalMS is the gate poll interval in milliseconds.
	PollIntervalMS int `yaml:"poll_interval_ms"`
}

// PollInterval returns the gate poll interval as a Duration.
func (c GateConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains live state stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`

	// PingInterval is how often the liveness-ping event is sent, in seconds.
	PingInterval int `yaml:"ping_interval"`
	PongTimeout  int `yaml:"pong_timeout"`
	SendBuffer   int `yaml:"send_buffer"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CROSSING_SECTION_KEY
// For example: CROSSING_DATABASE_PATH, CROSSING_GATE_API_KEY
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Crossing: CrossingConfig{
			ID:   "crossing-001",
			Name: "Crossing Core",
			Signals: []SignalConfig{
				{ID: "light-a", DisplayName: "Signal A", PairRole: "a"},
				{ID: "light-b", DisplayName: "Signal B", PairRole: "b"},
			},
			AmberDelayMS: 1000,
		},
		Database: DatabaseConfig{
			Path:        "./data/crossing.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "crossing-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Telemetry: TelemetryConfig{
			BaseTopic: "crossing/vehicles",
		},
		Gate: GateConfig{
			Enabled:        false,
			PollIntervalMS: 5000,
			Fields: map[string]string{
				"light-a": "light1",
				"light-b": "light2",
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3001,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   25,
			PongTimeout:    10,
			SendBuffer:     256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CROSSING_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("CROSSING_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("CROSSING_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CROSSING_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CROSSING_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("CROSSING_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("CROSSING_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Gate authority
	if v := os.Getenv("CROSSING_GATE_DOCUMENT_URL"); v != "" {
		cfg.Gate.DocumentURL = v
	}
	if v := os.Getenv("CROSSING_GATE_API_KEY"); v != "" {
		cfg.Gate.APIKey = v
	}
	if v := os.Getenv("CROSSING_GATE_BEARER_TOKEN"); v != "" {
		cfg.Gate.BearerToken = v
	}

	// InfluxDB
	if v := os.Getenv("CROSSING_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// pairedSignalCount is the fixed number of signals in a crossing pair.
const pairedSignalCount = 2

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Crossing.ID == "" {
		errs = append(errs, "crossing.id is required")
	}
	if len(c.Crossing.Signals) != pairedSignalCount {
		errs = append(errs, fmt.Sprintf("crossing.signals must contain exactly %d entries", pairedSignalCount))
	} else {
		roles := map[string]bool{}
		for _, s := range c.Crossing.Signals {
			if s.ID == "" {
				errs = append(errs, "crossing.signals[].id is required")
			}
			role := strings.ToLower(s.PairRole)
			if role != "a" && role != "b" {
				errs = append(errs, fmt.Sprintf("crossing.signals[%s].pair_role must be \"a\" or \"b\"", s.ID))
			}
			if roles[role] {
				errs = append(errs, "crossing.signals pair roles must be distinct")
			}
			roles[role] = true
		}
	}
	if c.Crossing.AmberDelayMS <= 0 {
		errs = append(errs, "crossing.amber_delay_ms must be positive")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Telemetry.BaseTopic == "" {
		errs = append(errs, "telemetry.base_topic is required")
	}

	if c.Gate.Enabled {
		if c.Gate.DocumentURL == "" {
			errs = append(errs, "gate.document_url is required when gate.enabled is true")
		}
		if len(c.Gate.Fields) == 0 {
			errs = append(errs, "gate.fields must map each signal id to a document field")
		}
		if c.Gate.PollIntervalMS <= 0 {
			errs = append(errs, "gate.poll_interval_ms must be positive")
		}
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
