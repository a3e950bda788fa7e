package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-wide Prometheus metrics not owned by a single domain.
type Metrics struct {
	NamesRegistered prometheus.Counter
	NamesRevived    prometheus.Counter
}

// New creates and registers the application-level metrics.
func New() *Metrics {
	return &Metrics{
		NamesRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notto_names_registered_total",
			Help: "Total number of names registered into the pending queue",
		}),
		NamesRevived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "notto_names_revived_total",
			Help: "Total number of rejected or deleted names restored to pending",
		}),
	}
}
