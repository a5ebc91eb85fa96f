package drain

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	evictionsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "noderefresh_evictions_issued_total",
		Help: "Number of pod eviction requests issued.",
	})

	evictionRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "noderefresh_eviction_retries_total",
		Help: "Number of pod evictions rejected by a disruption budget and retried.",
	})

	drainFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "noderefresh_drain_failures_total",
		Help: "Number of node drains that ended in an error.",
	})
)

func init() {
	metrics.Registry.MustRegister(evictionsIssued, evictionRetries, drainFailures)
}
