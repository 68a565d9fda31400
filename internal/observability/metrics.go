package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the Prometheus instrument set shared by the connection
// manager and the sync store. Each process constructs one and hands it to
// its consumers; tests build their own against a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ConnectionState   prometheus.Gauge
	ReconnectAttempts prometheus.Counter
	QueuedFrames      prometheus.Gauge
	PushEvents        *prometheus.CounterVec
	SyncOps           *prometheus.CounterVec
	SyncRollbacks     prometheus.Counter
}

// NewMetrics builds and registers the instrument set on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vicinity_connection_state",
			Help: "Current connection state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting).",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vicinity_reconnect_attempts_total",
			Help: "Automatic reconnection attempts.",
		}),
		QueuedFrames: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vicinity_outbound_queue_depth",
			Help: "Outbound frames waiting for a connected transport.",
		}),
		PushEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vicinity_push_events_total",
			Help: "Authoritative push events received, by event type.",
		}, []string{"event"}),
		SyncOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vicinity_sync_operations_total",
			Help: "Join/leave/close operations, by operation and outcome.",
		}, []string{"op", "outcome"}),
		SyncRollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vicinity_sync_rollbacks_total",
			Help: "Optimistic mutations rolled back after a remote failure.",
		}),
	}

	reg.MustRegister(
		m.ConnectionState,
		m.ReconnectAttempts,
		m.QueuedFrames,
		m.PushEvents,
		m.SyncOps,
		m.SyncRollbacks,
	)
	return m
}

// Handler exposes the registry for a /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
