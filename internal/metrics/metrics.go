package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "presenced"

// Metrics holds the server's Prometheus instruments. A nil *Metrics is
// valid and records nothing, so tests and tools can run without a
// registry.
type Metrics struct {
	connections      prometheus.Gauge
	framesIn         *prometheus.CounterVec
	eventsOut        prometheus.Counter
	broadcastFanout  prometheus.Histogram
	heartbeatDrops   prometheus.Counter
	chatSaveFailures prometheus.Counter
	pushRequests     *prometheus.CounterVec
}

// New registers the server instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live WebSocket connections.",
		}),

		framesIn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_in_total",
			Help:      "Inbound frames by type.",
		}, []string{"type"}),

		eventsOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_out_total",
			Help:      "Events enqueued to client sockets.",
		}),

		broadcastFanout: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_fanout",
			Help:      "Recipients per broadcast.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),

		heartbeatDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_terminations_total",
			Help:      "Connections dropped by the heartbeat monitor.",
		}),

		chatSaveFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_save_failures_total",
			Help:      "Chat messages the store failed to persist.",
		}),

		pushRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_requests_total",
			Help:      "Internal push API requests by target kind.",
		}, []string{"target"}),
	}
}

func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) FrameIn(frameType string) {
	if m == nil {
		return
	}
	m.framesIn.WithLabelValues(frameType).Inc()
}

func (m *Metrics) EventsOut(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsOut.Add(float64(n))
}

func (m *Metrics) BroadcastFanout(n int) {
	if m == nil {
		return
	}
	m.broadcastFanout.Observe(float64(n))
}

func (m *Metrics) HeartbeatTermination() {
	if m == nil {
		return
	}
	m.heartbeatDrops.Inc()
}

func (m *Metrics) ChatSaveFailure() {
	if m == nil {
		return
	}
	m.chatSaveFailures.Inc()
}

func (m *Metrics) PushRequest(target string) {
	if m == nil {
		return
	}
	m.pushRequests.WithLabelValues(target).Inc()
}
