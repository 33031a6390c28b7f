// Package metrics exposes Prometheus collectors for the relay.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Auth outcomes recorded by the authenticator.
const (
	AuthAnonymous     = "anonymous"
	AuthAuthenticated = "authenticated"
	AuthInvalidToken  = "invalid_token"
	AuthUnknownUser   = "unknown_user"
	AuthStoreError    = "store_error"
)

// Metrics holds the relay collectors.
type Metrics struct {
	activeSessions  prometheus.Gauge
	sessionsTotal   *prometheus.CounterVec
	messagesRouted  *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	malformedFrames prometheus.Counter
	authOutcomes    *prometheus.CounterVec
	slowConsumers   prometheus.Counter
}

// New registers the relay collectors on reg under namespace.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "gochat"
	}
	factory := promauto.With(reg)

	return &Metrics{
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of open WebSocket sessions",
		}),
		sessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions opened, by identity kind",
		}, []string{"identity"}),
		messagesRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_routed_total",
			Help:      "Total number of inbound messages routed, by kind",
		}, []string{"kind"}),
		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total number of per-member deliveries, by result",
		}, []string{"result"}),
		malformedFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_frames_total",
			Help:      "Total number of inbound frames dropped as malformed",
		}),
		authOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_outcomes_total",
			Help:      "Total number of connection authentications, by outcome",
		}, []string{"outcome"}),
		slowConsumers: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_consumers_total",
			Help:      "Total number of sessions closed because their send buffer was full",
		}),
	}
}

func (m *Metrics) SessionOpened(identityKind string) {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
	m.sessionsTotal.WithLabelValues(identityKind).Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) MessageRouted(kind string) {
	if m == nil {
		return
	}
	m.messagesRouted.WithLabelValues(kind).Inc()
}

// Delivered records the outcome of one broadcast: how many members accepted
// the event and how many did not.
func (m *Metrics) Delivered(delivered, dropped int) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues("delivered").Add(float64(delivered))
	m.deliveries.WithLabelValues("dropped").Add(float64(dropped))
}

func (m *Metrics) MalformedFrame() {
	if m == nil {
		return
	}
	m.malformedFrames.Inc()
}

func (m *Metrics) AuthOutcome(outcome string) {
	if m == nil {
		return
	}
	m.authOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SlowConsumer() {
	if m == nil {
		return
	}
	m.slowConsumers.Inc()
}
