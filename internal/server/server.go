// Package server owns the relay's shared components and the lifecycle of the
// sessions it accepts.
package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tyrowin/gochat-relay/internal/group"
	"github.com/Tyrowin/gochat-relay/internal/identity"
	"github.com/Tyrowin/gochat-relay/internal/metrics"
	"github.com/Tyrowin/gochat-relay/internal/router"
)

// Authenticator resolves the connection token into an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) identity.Identity
}

// Deps are the collaborators a Server is built from.
type Deps struct {
	Log           *slog.Logger
	Authenticator Authenticator
	Registry      group.Registry
	Metrics       *metrics.Metrics
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Server accepts WebSocket connections and runs one session per connection.
type Server struct {
	cfg      Config
	log      *slog.Logger
	authn    Authenticator
	registry group.Registry
	router   *router.Router
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	origins  *originPolicy
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders sessions.Add against Shutdown's Wait.
	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup
	active   atomic.Int64
}

// New builds a Server. cfg is sanitized; validation is the caller's job.
func New(cfg Config, deps Deps) *Server {
	cfg = sanitizeConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:      cfg,
		log:      deps.Log,
		authn:    deps.Authenticator,
		registry: deps.Registry,
		router:   router.New(deps.Registry, deps.Log, deps.Metrics),
		metrics:  deps.Metrics,
		gatherer: deps.Gatherer,
		origins:  newOriginPolicy(cfg.AllowedOrigins, deps.Log),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config {
	return s.cfg
}

// ActiveSessions reports the number of running sessions.
func (s *Server) ActiveSessions() int64 {
	return s.active.Load()
}

// startSession runs fn on its own goroutine with the server context. It
// returns false, without running fn, once Shutdown has begun.
func (s *Server) startSession(fn func(ctx context.Context)) bool {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return false
	}
	s.sessions.Add(1)
	s.active.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.sessions.Done()
		defer s.active.Add(-1)
		fn(s.ctx)
	}()
	return true
}

// Shutdown closes every session and waits for them to finish, or until the
// timeout is reached. Sessions are refused from then on.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.closing = true
	s.cancel()
	s.mu.Unlock()

	s.log.Info("Closing WebSocket sessions...", "active", s.active.Load())

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("All sessions closed")
		return nil
	case <-time.After(timeout):
		s.log.Warn("Session shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
