package telemetry

import (
	"context"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/trace"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/side8/k8s-operator/telemetry/tracing"
)

// Name of the logger library key.
const logLibraryKey = "library"

// Instrumentation provides instrumentation builder consisting of tracer, meter
// and logger.
type Instrumentation struct {
	trace  trace.Tracer
	metric metric.Meter
	log    logr.Logger
}

// NewInstrumentationWithProviders constructs and returns a new Instrumentation
// based on the given providers. Nil providers fall back to the global ones.
func NewInstrumentationWithProviders(name string, tp trace.TracerProvider, mp metric.MeterProvider, log logr.Logger) *Instrumentation {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = global.GetMeterProvider()
	}
	if log == nil {
		log = ctrl.Log
	}
	return &Instrumentation{
		trace:  tp.Tracer(name),
		metric: mp.Meter(name),
		log:    log.WithValues(logLibraryKey, name),
	}
}

// NewInstrumentation constructs and returns a new Instrumentation with default
// providers.
func NewInstrumentation(name string, log logr.Logger) *Instrumentation {
	return NewInstrumentationWithProviders(name, nil, nil, log)
}

// Int64Counter creates a counter on the meter of the instrumentation. A
// counter that can't be created is replaced by a no-op one.
func (i *Instrumentation) Int64Counter(name, description string) metric.Int64Counter {
	counter, err := i.metric.NewInt64Counter(name, metric.WithDescription(description))
	if err != nil {
		i.log.Error(err, "failed to create counter", "counter", name)
	}
	return counter
}

// Start creates a span and a tracing logger carrying the given key/values.
// The logger is also stored in the returned context, so callees can fetch it
// with ctrl.LoggerFrom.
func (i *Instrumentation) Start(ctx context.Context, name string, keysAndValues ...interface{}) (context.Context, trace.Span, logr.Logger) {
	ctx, span := i.trace.Start(ctx, name)
	var tl logr.Logger = tracing.NewLogger(i.log.WithValues("spanName", name), span)
	if len(keysAndValues) > 0 {
		tl = tl.WithValues(keysAndValues...)
	}
	return ctrl.LoggerInto(ctx, tl), span, tl
}
