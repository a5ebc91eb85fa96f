package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	cyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "noderefresh_cycles_total",
		Help: "Number of completed refresh cycles by result.",
	}, []string{"result"})

	nodesRefreshed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "noderefresh_nodes_refreshed_total",
		Help: "Number of nodes successfully drained and uncordoned.",
	})
)

func init() {
	metrics.Registry.MustRegister(cyclesTotal, nodesRefreshed)
}
