// Package metrics owns the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livemesh"

// Metrics groups every collector. Each instance has its own registry so
// tests can build as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	PresenceUpdates    prometheus.Counter
	MatchRequests      prometheus.Counter
	SuggestionsCreated prometheus.Counter
	Transitions        *prometheus.CounterVec
	Expirations        *prometheus.CounterVec
	RewardsGranted     *prometheus.CounterVec

	HubConnections     prometheus.Gauge
	HubMessagesSent    prometheus.Counter
	HubMessagesDropped prometheus.Counter

	HTTPDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		PresenceUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "presence_updates_total",
			Help: "Presence rows written.",
		}),
		MatchRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "match_requests_total",
			Help: "Matchmaking requests created.",
		}),
		SuggestionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "match_suggestions_total",
			Help: "Match suggestions created.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "state_transitions_total",
			Help: "Compare-and-transition attempts by entity and outcome.",
		}, []string{"entity", "outcome"}),
		Expirations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "expirations_total",
			Help: "Rows moved to a terminal state by the sweeper.",
		}, []string{"entity"}),
		RewardsGranted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rewards_granted_total",
			Help: "Reward grants recorded by reason.",
		}, []string{"reason"}),
		HubConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "hub", Name: "connections",
			Help: "Currently registered WebSocket connections.",
		}),
		HubMessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hub", Name: "messages_sent_total",
			Help: "Messages queued to client send buffers.",
		}),
		HubMessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hub", Name: "messages_dropped_total",
			Help: "Messages dropped because a client buffer was full.",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.PresenceUpdates,
		m.MatchRequests,
		m.SuggestionsCreated,
		m.Transitions,
		m.Expirations,
		m.RewardsGranted,
		m.HubConnections,
		m.HubMessagesSent,
		m.HubMessagesDropped,
		m.HTTPDuration,
	)
	return m
}

// OrNew returns m, or a fresh unexported set when m is nil.
func OrNew(m *Metrics) *Metrics {
	if m != nil {
		return m
	}
	return New()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
