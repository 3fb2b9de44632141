package callout

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

var calloutDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "side8_operator",
	Name:      "callout_duration_seconds",
	Help:      "Wall time of apply and delete callouts",
	Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
}, []string{"callout", "result"})

func init() {
	metrics.Registry.MustRegister(calloutDuration)
}
