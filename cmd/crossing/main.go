// Crossing Core - Paired Traffic Signal Controller
//
// This is the main entry point for the Crossing Core application.
// Crossing Core manages one crossing: a pair of traffic signals, the
// vehicle telemetry feeding it, a remote gate document that external
// hardware shares, and the HTTP/WebSocket surface operators use.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mvaldr/crossing-core/migrations"

	"github.com/mvaldr/crossing-core/internal/api"
	"github.com/mvaldr/crossing-core/internal/gate"
	"github.com/mvaldr/crossing-core/internal/infrastructure/config"
	"github.com/mvaldr/crossing-core/internal/infrastructure/database"
	"github.com/mvaldr/crossing-core/internal/infrastructure/influxdb"
	"github.com/mvaldr/crossing-core/internal/infrastructure/logging"
	"github.com/mvaldr/crossing-core/internal/infrastructure/mqtt"
	signalctl "github.com/mvaldr/crossing-core/internal/signal"
	"github.com/mvaldr/crossing-core/internal/state"
	"github.com/mvaldr/crossing-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Crossing Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Build the in-memory crossing state from the configured signal pair
	store, err := state.NewStore(signalsFromConfig(cfg.Crossing))
	if err != nil {
		return fmt.Errorf("building state store: %w", err)
	}

	// Restore the last persisted snapshot, then attach the repository as
	// the saver so every subsequent mutation is persisted.
	repo := state.NewRepository(db, cfg.Crossing.ID, log)
	stored, err := repo.LoadCurrent(ctx)
	switch {
	case err == nil:
		store.Restore(stored.Snapshot)
		log.Info("state restored",
			"reason", stored.Reason,
			"recorded_at", stored.RecordedAt,
		)
	case errors.Is(err, state.ErrNoSnapshot):
		log.Info("no persisted state, starting fresh")
	default:
		return fmt.Errorf("restoring state: %w", err)
	}
	store.SetSaver(repo)

	// Broadcast hub for WebSocket observers
	hub := api.NewHub(store, cfg.WebSocket, log)

	// Gate authority sync (optional)
	var gateSyncer *gate.Syncer
	if cfg.Gate.Enabled {
		gateClient, clientErr := gate.NewClient(gate.ClientConfig{
			DocumentURL: cfg.Gate.DocumentURL,
			APIKey:      cfg.Gate.APIKey,
			BearerToken: cfg.Gate.BearerToken,
		})
		if clientErr != nil {
			return fmt.Errorf("creating gate client: %w", clientErr)
		}
		gateSyncer = gate.NewSyncer(gateClient, store, hub, cfg.Gate.Fields, cfg.Gate.PollInterval(), log)
		go gateSyncer.Run(ctx)
		log.Info("gate sync started",
			"url", cfg.Gate.DocumentURL,
			"poll_interval", cfg.Gate.PollInterval(),
		)
	} else {
		log.Info("gate sync disabled")
	}

	// Signal controller drives the amber-first phase transitions. The
	// gate syncer mirrors terminal phases back to the remote document.
	var pusher signalctl.GatePusher
	if gateSyncer != nil {
		pusher = gateSyncer
	}
	controller := signalctl.NewController(store, hub, pusher, signalctl.Config{
		AmberDelay: cfg.Crossing.AmberDelay(),
	}, log)

	// Connect to InfluxDB (a disabled config yields a no-op client)
	influxClient, err := influxdb.New(influxdb.Config{
		Enabled: cfg.InfluxDB.Enabled,
		URL:     cfg.InfluxDB.URL,
		Token:   cfg.InfluxDB.Token,
		Org:     cfg.InfluxDB.Org,
		Bucket:  cfg.InfluxDB.Bucket,
	}, log)
	if err != nil {
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	defer func() {
		log.Info("closing InfluxDB connection")
		influxClient.Close()
	}()
	if influxClient.Enabled() {
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Telemetry merger applies pushed and published vehicle data
	merger := telemetry.NewMerger(store, hub, influxClient, log, cfg.Crossing.ID)

	// Connect to MQTT broker and bind the telemetry pipeline
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	topics := mqtt.Topics{VehicleBase: cfg.Telemetry.BaseTopic}
	if err := telemetry.StartIngest(mqttClient, topics, merger); err != nil {
		return fmt.Errorf("subscribing to telemetry: %w", err)
	}
	log.Info("telemetry ingest started", "base_topic", topics.VehicleMain())

	// Start the HTTP API and live state stream
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		Logger:     log,
		Store:      store,
		Hub:        hub,
		Controller: controller,
		Telemetry:  merger,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, server); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. MQTT
	// 3. InfluxDB (no-op when disabled)
	// 4. Database

	log.Info("Crossing Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CROSSING_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CROSSING_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// signalsFromConfig converts the configured signal pair into store
// seeds. Phases default inside the store; config only names the pair.
func signalsFromConfig(cfg config.CrossingConfig) []state.SignalState {
	signals := make([]state.SignalState, 0, len(cfg.Signals))
	for _, s := range cfg.Signals {
		signals = append(signals, state.SignalState{
			ID:          s.ID,
			DisplayName: s.DisplayName,
			PairRole:    state.PairRole(s.PairRole),
		})
	}
	return signals
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, server *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	// The gate syncer logs and retries on its own schedule; a cold gate
	// document must not block startup.

	return nil
}
