// Package metrics exposes the Prometheus counters the rest of the
// supervisor increments. The shape follows GVCUTV-NRG-CHAMP's
// internal/observability package: one struct holding pre-registered
// collectors, constructed once at startup and threaded by reference into
// whichever component needs to report.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the supervisor reports to. A nil *Metrics
// is valid everywhere it's consulted — every method is a no-op on a nil
// receiver — so tests and small tools can skip registration entirely.
type Metrics struct {
	busOverflowTotal        *prometheus.CounterVec
	malformedInputTotal     *prometheus.CounterVec
	snapshotDiscardedTotal  prometheus.Counter
	notificationDeniedTotal *prometheus.CounterVec
	safetyShutdownTotal     prometheus.Counter
}

// New builds and registers the supervisor's metrics against reg. Pass
// prometheus.DefaultRegisterer in production, or a fresh
// prometheus.NewRegistry() in tests that want isolation.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		busOverflowTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sauna_bus_overflow_total",
			Help: "Events dropped from the event bus because it was full.",
		}, []string{"event_kind"}),
		malformedInputTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sauna_malformed_input_total",
			Help: "Adapter payloads dropped at the boundary for failing schema validation.",
		}, []string{"source"}),
		snapshotDiscardedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sauna_snapshot_discarded_total",
			Help: "Snapshots discarded for slow broadcaster subscribers.",
		}),
		notificationDeniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sauna_notification_denied_total",
			Help: "Outbound notifications denied by the rate limiter.",
		}, []string{"kind"}),
		safetyShutdownTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sauna_safety_shutdown_total",
			Help: "Safety shutdowns executed (MCB.turnOff invoked by the safety evaluator path).",
		}),
	}

	reg.MustRegister(
		m.busOverflowTotal,
		m.malformedInputTotal,
		m.snapshotDiscardedTotal,
		m.notificationDeniedTotal,
		m.safetyShutdownTotal,
	)

	return m
}

func (m *Metrics) BusOverflow(eventKind string) {
	if m == nil {
		return
	}
	m.busOverflowTotal.WithLabelValues(eventKind).Inc()
}

func (m *Metrics) MalformedInput(source string) {
	if m == nil {
		return
	}
	m.malformedInputTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) SnapshotDiscarded() {
	if m == nil {
		return
	}
	m.snapshotDiscardedTotal.Inc()
}

func (m *Metrics) NotificationDenied(kind string) {
	if m == nil {
		return
	}
	m.notificationDeniedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) SafetyShutdown() {
	if m == nil {
		return
	}
	m.safetyShutdownTotal.Inc()
}
