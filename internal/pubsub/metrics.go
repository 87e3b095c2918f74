package pubsub

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts publishes and subscriptions per event name.
type Metrics struct {
	Published  *prometheus.CounterVec
	Subscribed *prometheus.CounterVec
}

// NewMetrics creates the bus counters and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pubsub_events_published_total",
			Help: "Events published on the bus, by event name.",
		}, []string{"name"}),
		Subscribed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pubsub_events_subscribed_total",
			Help: "Subscriptions opened on the bus, by event name.",
		}, []string{"name"}),
	}
	if reg != nil {
		reg.MustRegister(m.Published, m.Subscribed)
	}
	return m
}
