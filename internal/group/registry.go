// Package group tracks which sessions belong to which broadcast groups and
// fans events out to them.
package group

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/Tyrowin/gochat-relay/internal/metrics"
	"github.com/Tyrowin/gochat-relay/internal/protocol"
)

// Public is the group every connection joins.
const Public = "chat_group"

// Personal returns the name of the group that reaches userID.
func Personal(userID string) string {
	return "user_" + userID
}

// Member is anything that can receive events from a group, in practice a
// session.
type Member interface {
	// ID uniquely identifies the member across all groups.
	ID() string
	// Deliver queues ev for the member and reports whether it was accepted.
	// It must not block.
	Deliver(ev protocol.Event) bool
}

// Registry maps group names to member sets. Implementations must be safe for
// concurrent use. The error returns exist for backends that talk to another
// process; Hub never fails.
type Registry interface {
	// Join adds m to the group, creating the group if needed. Joining twice
	// is a no-op.
	Join(ctx context.Context, group string, m Member) error
	// Leave removes m from the group. Unknown groups and non-members are
	// ignored.
	Leave(ctx context.Context, group string, m Member) error
	// Broadcast delivers ev to every current member of the group. An unknown
	// or empty group is a successful no-op.
	Broadcast(ctx context.Context, group string, ev protocol.Event) error
}

// Hub is the in-process Registry.
type Hub struct {
	mu      sync.RWMutex
	groups  map[string]map[string]Member
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHub creates an empty Hub.
func NewHub(log *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		groups:  make(map[string]map[string]Member),
		log:     log,
		metrics: m,
	}
}

func (h *Hub) Join(_ context.Context, group string, m Member) error {
	h.mu.Lock()
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]Member)
		h.groups[group] = members
	}
	members[m.ID()] = m
	size := len(members)
	h.mu.Unlock()

	h.log.Debug("Member joined group", "group", group, "session", m.ID(), "members", size)
	return nil
}

func (h *Hub) Leave(_ context.Context, group string, m Member) error {
	h.mu.Lock()
	members, ok := h.groups[group]
	if !ok {
		h.mu.Unlock()
		return nil
	}
	if _, ok := members[m.ID()]; !ok {
		h.mu.Unlock()
		return nil
	}
	delete(members, m.ID())
	size := len(members)
	if size == 0 {
		delete(h.groups, group)
	}
	h.mu.Unlock()

	h.log.Debug("Member left group", "group", group, "session", m.ID(), "members", size)
	return nil
}

// Broadcast snapshots the membership and delivers outside the lock so a
// member closing itself from Deliver can call Leave without deadlocking.
func (h *Hub) Broadcast(_ context.Context, group string, ev protocol.Event) error {
	members := h.snapshot(group)
	if len(members) == 0 {
		h.log.Debug("Broadcast to empty group", "group", group)
		return nil
	}

	delivered, dropped := 0, 0
	for _, m := range members {
		if m.Deliver(ev) {
			delivered++
		} else {
			dropped++
		}
	}

	h.metrics.Delivered(delivered, dropped)
	h.log.Debug("Broadcast event", "group", group, "kind", ev.Kind, "delivered", delivered, "dropped", dropped)
	return nil
}

func (h *Hub) snapshot(group string) []Member {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return lo.Values(h.groups[group])
}

// Members returns the sorted member ids of group.
func (h *Hub) Members(group string) []string {
	h.mu.RLock()
	ids := lo.Keys(h.groups[group])
	h.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Groups returns the sorted names of all non-empty groups.
func (h *Hub) Groups() []string {
	h.mu.RLock()
	names := lo.Keys(h.groups)
	h.mu.RUnlock()

	sort.Strings(names)
	return names
}
