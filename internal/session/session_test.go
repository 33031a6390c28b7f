package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-relay/internal/group"
	"github.com/Tyrowin/gochat-relay/internal/identity"
	"github.com/Tyrowin/gochat-relay/internal/protocol"
	"github.com/Tyrowin/gochat-relay/internal/router"
)

const waitFor = 2 * time.Second

var errWriteClosed = errors.New("write on closed transport")

type fakeTransport struct {
	inbound   chan []byte
	outbound  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
	pings     atomic.Int32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound:  make(chan []byte),
		outbound: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (f *fakeTransport) ReadFrame() ([]byte, error) {
	select {
	case frame := <-f.inbound:
		return frame, nil
	case <-f.closed:
		return nil, fmt.Errorf("%w: close 1000", ErrTransportClosed)
	}
}

func (f *fakeTransport) WriteFrame(payload []byte) error {
	select {
	case <-f.closed:
		return errWriteClosed
	default:
	}
	f.outbound <- payload
	return nil
}

func (f *fakeTransport) Ping() error {
	f.pings.Add(1)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closes.Add(1)
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// clientSend plays the role of the remote client sending a frame.
func (f *fakeTransport) clientSend(t *testing.T, frame string) {
	t.Helper()
	select {
	case f.inbound <- []byte(frame):
	case <-time.After(waitFor):
		t.Fatalf("session did not read frame %q", frame)
	}
}

func (f *fakeTransport) next(t *testing.T) string {
	t.Helper()
	select {
	case payload := <-f.outbound:
		return string(payload)
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for outbound frame")
		return ""
	}
}

func (f *fakeTransport) expectSilence(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case payload := <-f.outbound:
		t.Fatalf("expected no outbound frame, got %s", payload)
	case <-time.After(d):
	}
}

type fixture struct {
	hub    *group.Hub
	router *router.Router
	log    *slog.Logger
}

func newFixture() *fixture {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	hub := group.NewHub(log, nil)
	return &fixture{hub: hub, router: router.New(hub, log, nil), log: log}
}

func (fx *fixture) newSession(transport Transport, id identity.Identity) *Session {
	return New(Options{
		Transport:  transport,
		Identity:   id,
		Registry:   fx.hub,
		Router:     fx.router,
		Log:        fx.log,
		RemoteAddr: "127.0.0.1:12345",
	})
}

// start runs a session and consumes its confirmation.
func (fx *fixture) start(t *testing.T, ctx context.Context, id identity.Identity) (*Session, *fakeTransport, string) {
	t.Helper()
	transport := newFakeTransport()
	s := fx.newSession(transport, id)
	go s.Run(ctx)
	confirmation := transport.next(t)
	require.Eventually(t, func() bool { return s.State() == StateOpen }, waitFor, time.Millisecond)
	t.Cleanup(s.Close)
	return s, transport, confirmation
}

func TestAnonymousRoundTrip(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	s, transport, confirmation := fx.start(t, context.Background(), identity.Anonymous())

	req.JSONEq(`{"message":"Connected to WebSocket","user_id":null}`, confirmation)
	req.Equal([]string{group.Public}, s.Groups())

	transport.clientSend(t, `{"message":"hi"}`)
	req.JSONEq(`{"type":"group","message":"hi","from_user":null}`, transport.next(t))
}

func TestZeroRecipientIsPublic(t *testing.T) {
	fx := newFixture()

	_, transport, _ := fx.start(t, context.Background(), identity.Anonymous())

	transport.clientSend(t, `{"message":"zero","recipient":0}`)
	require.JSONEq(t, `{"type":"group","message":"zero","from_user":null}`, transport.next(t))
	transport.clientSend(t, `{"message":"false","recipient":false}`)
	require.JSONEq(t, `{"type":"group","message":"false","from_user":null}`, transport.next(t))
}

func TestAuthenticatedSessionJoinsPersonalGroup(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	s, _, confirmation := fx.start(t, context.Background(), identity.Authenticated("42"))

	req.JSONEq(`{"message":"Connected to WebSocket","user_id":"42"}`, confirmation)
	req.ElementsMatch([]string{group.Public, group.Personal("42")}, s.Groups())
	req.Equal([]string{s.ID()}, fx.hub.Members(group.Personal("42")))
}

func TestPublicMessageReachesEveryMemberOnce(t *testing.T) {
	req := require.New(t)
	fx := newFixture()
	ctx := context.Background()

	_, alice, _ := fx.start(t, ctx, identity.Authenticated("1"))
	_, bob, _ := fx.start(t, ctx, identity.Anonymous())

	alice.clientSend(t, `{"message":"hello all"}`)

	want := `{"type":"group","message":"hello all","from_user":"1"}`
	req.JSONEq(want, alice.next(t))
	req.JSONEq(want, bob.next(t))
	alice.expectSilence(t, 50*time.Millisecond)
	bob.expectSilence(t, 50*time.Millisecond)
}

func TestPrivateMessage(t *testing.T) {
	req := require.New(t)
	fx := newFixture()
	ctx := context.Background()

	_, sender, _ := fx.start(t, ctx, identity.Authenticated("1"))
	_, recipient, _ := fx.start(t, ctx, identity.Authenticated("42"))
	_, bystander, _ := fx.start(t, ctx, identity.Anonymous())

	sender.clientSend(t, `{"message":"psst","recipient":"42"}`)

	req.JSONEq(`{"type":"private","message":"psst","from_user":"1"}`, recipient.next(t))
	recipient.expectSilence(t, 50*time.Millisecond)
	bystander.expectSilence(t, 50*time.Millisecond)
	sender.expectSilence(t, 50*time.Millisecond)
}

func TestPrivateMessageToOfflineUserIsSilent(t *testing.T) {
	fx := newFixture()

	s, transport, _ := fx.start(t, context.Background(), identity.Anonymous())

	transport.clientSend(t, `{"message":"anyone?","recipient":"999"}`)
	transport.expectSilence(t, 100*time.Millisecond)
	require.Equal(t, StateOpen, s.State())
}

func TestMalformedFrameIsDropped(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	s, transport, _ := fx.start(t, context.Background(), identity.Anonymous())

	transport.clientSend(t, `{not json`)
	transport.expectSilence(t, 100*time.Millisecond)
	req.Equal(StateOpen, s.State())

	transport.clientSend(t, `{"message":"still here"}`)
	req.JSONEq(`{"type":"group","message":"still here","from_user":null}`, transport.next(t))
}

func TestDisconnectLeavesAllGroups(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	s, transport, _ := fx.start(t, context.Background(), identity.Authenticated("42"))
	req.Len(fx.hub.Groups(), 2)

	req.NoError(transport.Close())

	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("session did not close after disconnect")
	}
	req.Equal(StateClosed, s.State())
	req.Empty(fx.hub.Groups())
	req.Empty(s.Groups())
}

func TestContextCancellationClosesSession(t *testing.T) {
	fx := newFixture()
	ctx, cancel := context.WithCancel(context.Background())

	s, transport, _ := fx.start(t, ctx, identity.Anonymous())
	cancel()

	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("session did not close after cancellation")
	}
	require.Eventually(t, func() bool { return transport.closes.Load() > 0 }, waitFor, time.Millisecond)
	require.Empty(t, fx.hub.Groups())
}

func TestCloseIsIdempotentUnderRace(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	s, transport, _ := fx.start(t, context.Background(), identity.Authenticated("42"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Close()
		}()
		go func() {
			defer wg.Done()
			_ = fx.hub.Broadcast(context.Background(), group.Public, protocol.Event{Kind: protocol.KindGroup, Message: "racing"})
		}()
	}
	wg.Wait()

	req.Equal(StateClosed, s.State())
	req.Empty(fx.hub.Groups())
	req.Equal(int32(1), transport.closes.Load())
	req.False(s.Deliver(protocol.Event{Kind: protocol.KindGroup, Message: "too late"}))
}

func TestSlowConsumerIsClosed(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	s := New(Options{
		Transport:  newFakeTransport(),
		Registry:   fx.hub,
		Router:     fx.router,
		Log:        fx.log,
		SendBuffer: 1,
	})
	ev := protocol.Event{Kind: protocol.KindGroup, Message: "hi"}

	req.True(s.Deliver(ev))
	req.False(s.Deliver(ev))
	req.Equal(StateClosed, s.State())
	<-s.Done()
}

// stallingTransport blocks Close until released, like a gorilla connection
// whose write lock is held by a stuck write.
type stallingTransport struct {
	*fakeTransport
	release chan struct{}
}

func (s *stallingTransport) Close() error {
	<-s.release
	return s.fakeTransport.Close()
}

func TestSlowConsumerDoesNotStallBroadcast(t *testing.T) {
	req := require.New(t)
	fx := newFixture()
	ctx := context.Background()

	stalled := &stallingTransport{fakeTransport: newFakeTransport(), release: make(chan struct{})}
	slow := New(Options{
		Transport:  stalled,
		Registry:   fx.hub,
		Router:     fx.router,
		Log:        fx.log,
		SendBuffer: 1,
	})
	req.NoError(fx.hub.Join(ctx, group.Public, slow))
	req.True(slow.Deliver(protocol.Event{Kind: protocol.KindGroup, Message: "backlog"}))

	_, healthy, _ := fx.start(t, ctx, identity.Anonymous())

	start := time.Now()
	req.NoError(fx.hub.Broadcast(ctx, group.Public, protocol.Event{Kind: protocol.KindGroup, Message: "hi"}))
	elapsed := time.Since(start)
	req.True(elapsed < 200*time.Millisecond, "broadcast took %s", elapsed)

	req.JSONEq(`{"type":"group","message":"hi","from_user":null}`, healthy.next(t))
	req.Equal(StateClosed, slow.State())
	req.False(slow.Deliver(protocol.Event{Kind: protocol.KindGroup, Message: "late"}))

	close(stalled.release)
	select {
	case <-slow.Done():
	case <-time.After(waitFor):
		t.Fatal("slow session was never torn down")
	}
	req.Eventually(func() bool { return len(fx.hub.Members(group.Public)) == 1 }, waitFor, time.Millisecond)
}

func TestWritePumpPings(t *testing.T) {
	fx := newFixture()
	transport := newFakeTransport()
	s := New(Options{
		Transport:    transport,
		Registry:     fx.hub,
		Router:       fx.router,
		Log:          fx.log,
		PingInterval: 10 * time.Millisecond,
	})
	go s.Run(context.Background())
	t.Cleanup(s.Close)

	transport.next(t)
	require.Eventually(t, func() bool { return transport.pings.Load() >= 2 }, waitFor, 5*time.Millisecond)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "connecting", StateConnecting.String())
	require.Equal(t, "open", StateOpen.String())
	require.Equal(t, "closed", StateClosed.String())
}
