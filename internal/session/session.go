// Package session runs one client connection: it resolves which groups the
// client belongs to, confirms the connection, routes inbound frames and
// writes events fanned out to it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Tyrowin/gochat-relay/internal/group"
	"github.com/Tyrowin/gochat-relay/internal/identity"
	"github.com/Tyrowin/gochat-relay/internal/metrics"
	"github.com/Tyrowin/gochat-relay/internal/protocol"
)

const (
	DefaultSendBuffer   = 256
	DefaultPingInterval = 54 * time.Second
)

// State is the lifecycle position of a session.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MessageRouter receives every well-formed inbound message.
type MessageRouter interface {
	Route(ctx context.Context, message, recipient string, sender identity.Identity) error
}

// Options configures a Session. Transport, Registry, Router and Log are
// required.
type Options struct {
	Transport    Transport
	Identity     identity.Identity
	Registry     group.Registry
	Router       MessageRouter
	Log          *slog.Logger
	Metrics      *metrics.Metrics
	RemoteAddr   string
	SendBuffer   int
	PingInterval time.Duration
}

// Session is the server side of one connection. It implements group.Member.
type Session struct {
	id           string
	identity     identity.Identity
	transport    Transport
	registry     group.Registry
	router       MessageRouter
	log          *slog.Logger
	metrics      *metrics.Metrics
	send         chan []byte
	pingInterval time.Duration

	state   atomic.Int32
	started atomic.Bool

	mu     sync.Mutex
	joined []string

	done      chan struct{}
	closeOnce sync.Once
}

func New(opts Options) *Session {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}

	id := uuid.NewString()
	return &Session{
		id:        id,
		identity:  opts.Identity,
		transport: opts.Transport,
		registry:  opts.Registry,
		router:    opts.Router,
		log: opts.Log.With(
			"session", id,
			"remote", opts.RemoteAddr,
			"user", opts.Identity.String(),
		),
		metrics:      opts.Metrics,
		send:         make(chan []byte, opts.SendBuffer),
		pingInterval: opts.PingInterval,
		done:         make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Identity() identity.Identity {
	return s.identity
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Groups returns the groups the session currently belongs to.
func (s *Session) Groups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.joined...)
}

// Run drives the session until the transport fails or ctx is cancelled. It
// always leaves the session closed.
func (s *Session) Run(ctx context.Context) {
	defer s.Close()

	s.started.Store(true)
	s.metrics.SessionOpened(s.identity.Kind().String())
	s.log.Info("New WebSocket connection")

	if err := s.joinGroups(ctx); err != nil {
		s.log.Warn("Joining groups failed", "error", err)
		return
	}

	if err := s.confirm(); err != nil {
		s.log.Warn("Sending confirmation failed", "error", err)
		return
	}
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		return
	}

	go s.writePump()
	go s.watch(ctx)
	s.readPump(ctx)
}

// joinGroups puts the session in the public group and, for authenticated
// users, in their personal group.
func (s *Session) joinGroups(ctx context.Context) error {
	groups := []string{group.Public}
	if userID, ok := s.identity.UserID(); ok {
		groups = append(groups, group.Personal(userID))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range groups {
		if s.State() == StateClosed {
			return nil
		}
		if err := s.registry.Join(ctx, name, s); err != nil {
			return fmt.Errorf("join %s: %w", name, err)
		}
		s.joined = append(s.joined, name)
	}
	return nil
}

// confirm writes the confirmation straight to the transport, before the
// write pump starts, so it always precedes queued events.
func (s *Session) confirm() error {
	payload, err := json.Marshal(protocol.NewConfirmation(s.identity))
	if err != nil {
		return fmt.Errorf("marshal confirmation: %w", err)
	}
	return s.transport.WriteFrame(payload)
}

func (s *Session) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		s.Close()
	case <-s.done:
	}
}

func (s *Session) readPump(ctx context.Context) {
	for {
		frame, err := s.transport.ReadFrame()
		if err != nil {
			s.logReadError(err)
			return
		}
		s.handleFrame(ctx, frame)
	}
}

func (s *Session) logReadError(err error) {
	switch {
	case s.State() == StateClosed:
	case errors.Is(err, ErrTransportClosed):
		s.log.Info("Client disconnected", "reason", err)
	default:
		s.log.Warn("Read error", "error", err)
	}
}

// handleFrame drops malformed frames without replying; the connection stays
// open.
func (s *Session) handleFrame(ctx context.Context, frame []byte) {
	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		s.log.Debug("Dropping malformed frame", "error", err)
		s.metrics.MalformedFrame()
		return
	}

	if err := s.router.Route(ctx, env.Message, string(env.Recipient), s.identity); err != nil {
		s.log.Warn("Routing message failed", "error", err)
	}
}

// Deliver queues ev for the client without blocking. A full send buffer
// marks the session closed and tears it down on another goroutine.
func (s *Session) Deliver(ev protocol.Event) bool {
	if s.State() == StateClosed {
		return false
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("Encoding event failed", "error", err)
		return false
	}

	select {
	case <-s.done:
		return false
	case s.send <- payload:
		return true
	default:
		s.log.Warn("Send buffer full, closing session", "capacity", cap(s.send))
		s.metrics.SlowConsumer()
		// Closing writes to the network; keep that off the broadcaster.
		s.state.Store(int32(StateClosed))
		go s.Close()
		return false
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case payload := <-s.send:
			if err := s.transport.WriteFrame(payload); err != nil {
				s.logWriteError("Writing event failed", err)
				s.Close()
				return
			}
		case <-ticker.C:
			if err := s.transport.Ping(); err != nil {
				s.logWriteError("Writing ping failed", err)
				s.Close()
				return
			}
		}
	}
}

func (s *Session) logWriteError(msg string, err error) {
	if s.State() == StateClosed {
		return
	}
	s.log.Warn(msg, "error", err)
}

// Close tears the session down exactly once: it leaves every joined group,
// stops the write pump and closes the transport. It is safe to call from any
// goroutine, any number of times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.leaveGroups()
		close(s.done)

		if err := s.transport.Close(); err != nil {
			s.log.Debug("Closing transport failed", "error", err)
		}
		if s.started.Load() {
			s.metrics.SessionClosed()
		}
		s.log.Info("WebSocket connection closed")
	})
}

func (s *Session) leaveGroups() {
	s.mu.Lock()
	joined := s.joined
	s.joined = nil
	s.mu.Unlock()

	ctx := context.Background()
	for _, name := range joined {
		if err := s.registry.Leave(ctx, name, s); err != nil {
			s.log.Debug("Leaving group failed", "group", name, "error", err)
		}
	}
}
