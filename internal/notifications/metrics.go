package notifications

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts what the feed reads and what it sends to clients.
type Metrics struct {
	Fetched *prometheus.CounterVec
	Sent    *prometheus.CounterVec
}

// NewMetrics creates the feed counters and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Fetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_fetched_total",
			Help: "Notification rows read from the database.",
		}, []string{"app", "type"}),
		Sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Built notifications returned to clients.",
		}, []string{"app"}),
	}
	if reg != nil {
		reg.MustRegister(m.Fetched, m.Sent)
	}
	return m
}
