package operation

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics for the dispatcher.
type Metrics struct {
	transactionsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics for the dispatcher.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "operation_transactions_total",
			Help: "Transactions reaching a lifecycle stage, labeled by stage and result.",
		}, []string{"stage", "result"}),
	}
	reg.MustRegister(m.transactionsTotal)
	return m
}
