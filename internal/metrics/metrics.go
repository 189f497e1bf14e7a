// Package metrics exposes relay counters to Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "huddle"

type Metrics struct {
	Connections  prometheus.Gauge
	Rooms        prometheus.Gauge
	Participants prometheus.Gauge

	Events     *prometheus.CounterVec
	Rejections *prometheus.CounterVec
	Signals    *prometheus.CounterVec
	Dropped    prometheus.Counter
	AuthFails  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Live authenticated signaling connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Rooms with at least one participant.",
		}),
		Participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants",
			Help:      "Room memberships across all rooms.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound events by name.",
		}, []string{"event"}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Rejected operations by reason.",
		}, []string{"operation", "reason"}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Relayed negotiation messages by type and mode.",
		}, []string{"type", "mode"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backpressure_drops_total",
			Help:      "Frames not queued because a recipient buffer was full.",
		}),
		AuthFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Handshakes rejected by the identity gate.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Connections, m.Rooms, m.Participants,
			m.Events, m.Rejections, m.Signals, m.Dropped, m.AuthFails,
		)
	}
	return m
}

func (m *Metrics) Connected() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

func (m *Metrics) Disconnected() {
	if m == nil {
		return
	}
	m.Connections.Dec()
}

func (m *Metrics) SetRooms(n int) {
	if m == nil {
		return
	}
	m.Rooms.Set(float64(n))
}

func (m *Metrics) Joined() {
	if m == nil {
		return
	}
	m.Participants.Inc()
}

func (m *Metrics) Left() {
	if m == nil {
		return
	}
	m.Participants.Dec()
}

func (m *Metrics) Event(name string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(name).Inc()
}

func (m *Metrics) Reject(operation, reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(operation, reason).Inc()
}

func (m *Metrics) Signal(kind string, targeted bool) {
	if m == nil {
		return
	}
	mode := "broadcast"
	if targeted {
		mode = "targeted"
	}
	m.Signals.WithLabelValues(kind, mode).Inc()
}

func (m *Metrics) Drops(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Dropped.Add(float64(n))
}

func (m *Metrics) AuthFailed() {
	if m == nil {
		return
	}
	m.AuthFails.Inc()
}
