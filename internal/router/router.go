// Package router decides where an inbound message goes: the public group, or
// the personal group of a single recipient.
package router

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Tyrowin/gochat-relay/internal/group"
	"github.com/Tyrowin/gochat-relay/internal/identity"
	"github.com/Tyrowin/gochat-relay/internal/metrics"
	"github.com/Tyrowin/gochat-relay/internal/protocol"
)

const tracerName = "github.com/Tyrowin/gochat-relay/internal/router"

// Router routes messages through a group.Registry.
type Router struct {
	registry group.Registry
	log      *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

func New(registry group.Registry, log *slog.Logger, m *metrics.Metrics) *Router {
	return &Router{
		registry: registry,
		log:      log,
		metrics:  m,
		tracer:   otel.Tracer(tracerName),
	}
}

// Route delivers message privately when recipient is set and publicly
// otherwise. Whether the recipient exists or is connected is not checked:
// an unreachable recipient simply receives nothing.
func (r *Router) Route(ctx context.Context, message, recipient string, sender identity.Identity) error {
	ev := protocol.Event{Kind: protocol.KindGroup, Message: message, From: sender}
	target := group.Public
	if recipient != "" {
		ev.Kind = protocol.KindPrivate
		target = group.Personal(recipient)
	}

	ctx, span := r.tracer.Start(ctx, "router.Route",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("relay.kind", string(ev.Kind)),
			attribute.String("relay.group", target),
			attribute.Bool("relay.authenticated", sender.IsAuthenticated()),
		),
	)
	defer span.End()

	r.metrics.MessageRouted(string(ev.Kind))

	if err := r.registry.Broadcast(ctx, target, ev); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("broadcast to %s: %w", target, err)
	}

	r.log.Debug("Routed message", "kind", ev.Kind, "group", target, "user", sender.String())
	return nil
}
