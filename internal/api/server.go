package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mvaldr/crossing-core/internal/infrastructure/config"
	"github.com/mvaldr/crossing-core/internal/infrastructure/logging"
	"github.com/mvaldr/crossing-core/internal/state"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SignalController is the slice of the signal state machine the API
// exposes over HTTP.
type SignalController interface {
	SetGreen(id string) error
	SetRed(id string) error
	SetYellow(id string) error
	Toggle(id string) error
	SetFlow(mode state.FlowMode, direction state.FlowDirection) error
	EmergencyStop() error
}

// TelemetrySink accepts pushed telemetry with base-topic merge
// semantics, the HTTP alternative to the MQTT pipeline.
type TelemetrySink interface {
	ApplyMain(payload []byte) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	Logger     *logging.Logger
	Store      *state.Store
	Hub        *Hub
	Controller SignalController
	Telemetry  TelemetrySink
	Version    string
}

// Server is the HTTP API and live state stream server for Crossing Core.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket
// broadcast hub. The server is created with New() and started with
// Start().
type Server struct {
	cfg        config.APIConfig
	logger     *logging.Logger
	store      *state.Store
	hub        *Hub
	controller SignalController
	telemetry  TelemetrySink
	version    string
	server     *http.Server
	cancel     context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("broadcast hub is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("signal controller is required")
	}
	if deps.Telemetry == nil {
		return nil, fmt.Errorf("telemetry sink is required")
	}

	return &Server{
		cfg:        deps.Config,
		logger:     deps.Logger,
		store:      deps.Store,
		hub:        deps.Hub,
		controller: deps.Controller,
		telemetry:  deps.Telemetry,
		version:    deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It runs the broadcast hub lifecycle and launches the HTTP listener in
// a background goroutine. The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
