package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	resultSuccess       = "success"
	resultCalloutFailed = "callout_failed"
	resultPatchFailed   = "patch_failed"

	// resultInvalidCallout counts callouts that couldn't be run with the
	// resource or whose output couldn't be used as status.
	resultInvalidCallout = "invalid_callout"
)

var (
	reconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "side8_operator",
		Name:      "reconcile_total",
		Help:      "Total number of reconciliations per action and result",
	}, []string{"action", "result"})
	liveQueues = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "side8_operator",
		Name:      "queues",
		Help:      "The number of resources with a live snapshot queue",
	})
)

func init() {
	metrics.Registry.MustRegister(reconcileTotal, liveQueues)
}
