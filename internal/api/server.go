package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gregor-bridge/internal/bridge"
	"github.com/nerrad567/gregor-bridge/internal/infrastructure/config"
	"github.com/nerrad567/gregor-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/gregor-bridge/internal/registry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Commander executes drive and room commands. *command.Dispatcher
// satisfies it.
type Commander interface {
	Open(ctx context.Context, deviceID int64) (registry.CoverState, error)
	Close(ctx context.Context, deviceID int64) (registry.CoverState, error)
	SetMode(ctx context.Context, roomID int64, mode string) error
}

// Refresher forces one device update outside the schedule.
// *scheduler.Scheduler satisfies it.
type Refresher interface {
	Trigger(ctx context.Context, deviceID int64) error
}

// ConnectionChecker reports broker connectivity for the metrics endpoint.
type ConnectionChecker interface {
	IsConnected() bool
}

// StatsProvider exposes the MQTT bridge counters. *bridge.Bridge satisfies it.
type StatsProvider interface {
	Stats() bridge.BridgeStatistics
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Registry *registry.Registry

	// Commander and Refresher are optional; without them the command
	// routes answer 503.
	Commander Commander
	Refresher Refresher

	// MQTT and Bridge are optional and only feed /metrics.
	MQTT   ConnectionChecker
	Bridge StatsProvider

	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	registry  *registry.Registry
	commander Commander
	refresher Refresher
	mqtt      ConnectionChecker
	bridge    StatsProvider
	version   string
	startTime time.Time

	hub     *Hub
	tickets *ticketStore

	mu          sync.Mutex
	server      *http.Server
	listener    net.Listener
	cancel      context.CancelFunc
	unsubscribe func()
}

// New creates a server. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if deps.Security.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		registry:  deps.Registry,
		commander: deps.Commander,
		refresher: deps.Refresher,
		mqtt:      deps.MQTT,
		bridge:    deps.Bridge,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.WS, deps.Logger),
		tickets:   newTicketStore(),
	}, nil
}

// Start binds the listener, starts the WebSocket hub and relays registry
// events to it. Requests are served on a background goroutine until Close.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.unsubscribe = s.registry.Subscribe(s.relayEvent)

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	srv := s.server
	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close detaches from the registry, disconnects WebSocket clients and
// waits up to 10 seconds for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	cancel := s.cancel
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
