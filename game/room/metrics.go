package room

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by rooms.
type Metrics struct {
	RoomsActive    prometheus.Gauge
	SessionsActive prometheus.Gauge
	Actions        *prometheus.CounterVec
	Events         *prometheus.CounterVec
	JoinsRejected  *prometheus.CounterVec
}

// NewMetrics creates the room collectors and registers them with reg.
// A nil registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RoomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "shapesync",
			Name:      "rooms_active",
			Help:      "Number of rooms with a running worker.",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "shapesync",
			Name:      "sessions_active",
			Help:      "Number of joined sessions across all rooms.",
		}),
		Actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shapesync",
			Name:      "actions_total",
			Help:      "Client actions processed by room workers, by outcome.",
		}, []string{"action", "result"}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shapesync",
			Name:      "events_sent_total",
			Help:      "Events handed to session senders, by type.",
		}, []string{"event"}),
		JoinsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shapesync",
			Name:      "joins_rejected_total",
			Help:      "Join requests that did not produce a session, by reason.",
		}, []string{"reason"}),
	}
}
