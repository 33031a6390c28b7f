package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat-relay/internal/group"
	"github.com/Tyrowin/gochat-relay/internal/identity"
	"github.com/Tyrowin/gochat-relay/internal/protocol"
)

type inbox struct {
	id     string
	mu     sync.Mutex
	events []protocol.Event
}

func (i *inbox) ID() string { return i.id }

func (i *inbox) Deliver(ev protocol.Event) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.events = append(i.events, ev)
	return true
}

func (i *inbox) received() []protocol.Event {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]protocol.Event(nil), i.events...)
}

func newRouter(t *testing.T) (*Router, *group.Hub) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	hub := group.NewHub(log, nil)
	return New(hub, log, nil), hub
}

func TestRoutePublicMessage(t *testing.T) {
	req := require.New(t)
	r, hub := newRouter(t)
	ctx := context.Background()

	sender, other := &inbox{id: "a"}, &inbox{id: "b"}
	req.NoError(hub.Join(ctx, group.Public, sender))
	req.NoError(hub.Join(ctx, group.Public, other))

	req.NoError(r.Route(ctx, "hi", "", identity.Authenticated("1")))

	want := []protocol.Event{{Kind: protocol.KindGroup, Message: "hi", From: identity.Authenticated("1")}}
	req.Equal(want, sender.received(), "sender is a public member and sees its own message")
	req.Equal(want, other.received())
}

func TestRoutePrivateMessage(t *testing.T) {
	req := require.New(t)
	r, hub := newRouter(t)
	ctx := context.Background()

	sender := &inbox{id: "a"}
	recipient := &inbox{id: "b"}
	bystander := &inbox{id: "d"}
	req.NoError(hub.Join(ctx, group.Public, sender))
	req.NoError(hub.Join(ctx, group.Public, recipient))
	req.NoError(hub.Join(ctx, group.Personal("42"), recipient))
	req.NoError(hub.Join(ctx, group.Public, bystander))

	req.NoError(r.Route(ctx, "psst", "42", identity.Authenticated("1")))

	req.Equal([]protocol.Event{{Kind: protocol.KindPrivate, Message: "psst", From: identity.Authenticated("1")}}, recipient.received())
	req.Empty(bystander.received())
	req.Empty(sender.received())
}

func TestRouteAnonymousSenderIsUnattributed(t *testing.T) {
	req := require.New(t)
	r, hub := newRouter(t)
	ctx := context.Background()

	recipient := &inbox{id: "b"}
	req.NoError(hub.Join(ctx, group.Personal("42"), recipient))

	req.NoError(r.Route(ctx, "who am i", "42", identity.Anonymous()))

	events := recipient.received()
	req.Len(events, 1)
	_, attributed := events[0].From.UserID()
	req.False(attributed)
}

func TestRouteToOfflineRecipientSucceeds(t *testing.T) {
	r, _ := newRouter(t)
	require.NoError(t, r.Route(context.Background(), "anyone?", "999", identity.Anonymous()))
}

type failingRegistry struct{ group.Registry }

func (failingRegistry) Broadcast(context.Context, string, protocol.Event) error {
	return errors.New("backbone unavailable")
}

func TestRouteWrapsRegistryErrors(t *testing.T) {
	r := New(failingRegistry{}, logs.GetLoggerFromLevel(slog.LevelDebug), nil)

	err := r.Route(context.Background(), "hi", "", identity.Anonymous())
	require.ErrorContains(t, err, "broadcast to chat_group")
}
