// Package server exposes the fleet over HTTP: device inventory and one-shot
// operations as JSON endpoints, metrics, log, and terminal streams over
// WebSocket, and Prometheus meters about the daemon itself. Request routing
// honors the registry's control URLs, so a device that runs its own daemon
// answers for itself.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rileyhilliard/pifleet/internal/config"
	"github.com/rileyhilliard/pifleet/internal/errors"
	"github.com/rileyhilliard/pifleet/internal/events"
	"github.com/rileyhilliard/pifleet/internal/hub"
	"github.com/rileyhilliard/pifleet/internal/logger"
	"github.com/rileyhilliard/pifleet/internal/registry"
	"github.com/rileyhilliard/pifleet/internal/session"
	"github.com/rileyhilliard/pifleet/internal/telemetry"
)

const (
	// shutdownGrace is how long in-flight requests get once the daemon is
	// asked to stop.
	shutdownGrace = 10 * time.Second

	// writeWait bounds a single WebSocket write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before the read
	// side gives up on it. Refreshed by pongs and by inbound messages.
	pongWait = 90 * time.Second

	// pingPeriod is the keepalive cadence. Well under pongWait so a
	// healthy peer always answers in time.
	pingPeriod = 30 * time.Second

	// maxMessageSize caps inbound WebSocket messages.
	maxMessageSize = 64 * 1024

	// maxBodySize caps JSON request bodies.
	maxBodySize = 1 << 20
)

// Config wires a Server. Registry and Sessions are required; Hub is needed
// for the stream endpoints and Sampler for one-shot metrics.
type Config struct {
	Registry registry.Registry
	Sessions *session.Manager
	Hub      *hub.Hub
	Sampler  *telemetry.Sampler
	Bus      *events.Bus
	Log      logger.Logger
	Metrics  *Metrics

	// Origins allowed to call from a browser. Empty means same-host only;
	// "*" allows everything.
	Origins []string

	// Discovery configures the scan endpoint's defaults.
	Discovery config.DiscoveryConfig

	// ExecTimeout caps one-shot remote commands.
	ExecTimeout time.Duration

	// DefaultInterval, MinInterval, and MaxInterval shape what a metrics
	// stream consumer may ask for.
	DefaultInterval time.Duration
	MinInterval     time.Duration
	MaxInterval     time.Duration

	// Version is reported by the health endpoint.
	Version string
}

func (c *Config) fill() {
	if c.Log == nil {
		c.Log = logger.Default()
	}
	if c.Metrics == nil {
		var states func() []session.Status
		if c.Sessions != nil {
			states = c.Sessions.States
		}
		c.Metrics = NewMetrics(states)
	}
	if c.ExecTimeout <= 0 {
		c.ExecTimeout = 30 * time.Second
	}
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = hub.DefaultInterval
	}
	if c.MinInterval <= 0 {
		c.MinInterval = time.Second
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = time.Minute
	}
}

// Server is the fleet API daemon.
type Server struct {
	cfg      Config
	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

// New builds a Server with its routes registered. Serve starts it.
func New(cfg Config) *Server {
	cfg.fill()
	s := &Server{cfg: cfg, mux: http.NewServeMux()}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.originAllowed,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/devices", s.handleDevices)
	s.mux.HandleFunc("POST /api/scan", s.handleScan)

	s.mux.HandleFunc("POST /api/devices/{id}/exec", s.routed(s.handleExec))
	s.mux.HandleFunc("GET /api/devices/{id}/metrics", s.routed(s.handleMetricsOnce))
	s.mux.HandleFunc("GET /api/devices/{id}/host", s.routed(s.handleHostInfo))
	s.mux.HandleFunc("GET /api/devices/{id}/services", s.routed(s.handleServices))
	s.mux.HandleFunc("GET /api/devices/{id}/services/{unit}", s.routed(s.handleServiceStatus))
	s.mux.HandleFunc("POST /api/devices/{id}/services/{unit}", s.routed(s.handleServiceAction))
	s.mux.HandleFunc("POST /api/devices/{id}/power", s.routed(s.handlePower))

	s.mux.HandleFunc("GET /ws/devices/{id}/metrics", s.routed(s.handleMetricsStream))
	s.mux.HandleFunc("GET /ws/devices/{id}/logs", s.routed(s.handleLogStream))
	s.mux.HandleFunc("GET /ws/devices/{id}/terminal", s.routed(s.handleTerminal))

	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.Metrics.Registry, promhttp.HandlerOpts{}))
}

// Handler returns the full middleware-wrapped handler, exported so tests
// can mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.cors(s.mux))
}

// Serve listens on addr and blocks until ctx is cancelled or the listener
// fails. A cancelled ctx drains in-flight requests before returning nil.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.cfg.Log.Info("API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			s.cfg.Log.Warn("shutdown didn't finish cleanly: %v", err)
			_ = srv.Close()
		}
		<-errCh
		return nil
	case err := <-errCh:
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Couldn't serve the API on %s", addr),
			"Check the listen address in config; the port may already be in use.")
	}
}

// Acquirer adapts the registry and session manager into the hub's source
// lookup. Hub sources are device IDs, not raw addresses, so stream
// subscribers and REST callers name devices the same way.
func Acquirer(reg registry.Registry, mgr *session.Manager) hub.AcquireFunc {
	return func(ctx context.Context, source string) (hub.Source, error) {
		d, err := reg.Lookup(source)
		if err != nil {
			return nil, err
		}
		return mgr.Acquire(ctx, d.Address, d.Credentials())
	}
}

// acquire resolves a device ID and hands back its live session.
func (s *Server) acquire(ctx context.Context, id string) (registry.Device, *session.Session, error) {
	d, err := s.cfg.Registry.Lookup(id)
	if err != nil {
		return registry.Device{}, nil, err
	}
	sess, err := s.cfg.Sessions.Acquire(ctx, d.Address, d.Credentials())
	if err != nil {
		return d, nil, err
	}
	return d, sess, nil
}

func (s *Server) publish(event events.Event) {
	if s.cfg.Bus != nil {
		s.cfg.Bus.Publish(event)
	}
}
