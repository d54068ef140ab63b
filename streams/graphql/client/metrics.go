package client

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics for the indexer client.
type Metrics struct {
	queriesTotal  *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the metrics for the indexer client.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "indexer_queries_total",
			Help: "Total number of indexer requests, labeled by operation and result.",
		}, []string{"op", "result"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "indexer_query_duration_seconds",
			Help:    "Time taken by a single indexer request.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
	reg.MustRegister(m.queriesTotal, m.queryDuration)
	return m
}
