package tracing

import (
	"fmt"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// Trace event names.
	infoEventName  = "info"
	errorEventName = "error"

	// Trace event attribute keys.
	messageKey   = "message"
	eventTypeKey = "event.type"
	nonStringKey = "non-string"

	// Value for trace event type log.
	logEventTypeValue = "log"
)

var _ logr.Logger = TracingLogger{}

// TracingLogger is a logger with tracing support. Every log line that passes
// the verbosity check is also added to the span as an event.
type TracingLogger struct {
	logr.Logger
	trace.Span
}

// NewLogger creates and returns a TracingLogger.
func NewLogger(logger logr.Logger, span trace.Span) *TracingLogger {
	return &TracingLogger{
		Logger: logger,
		Span:   span,
	}
}

// Info implements the Logger interface.
func (t TracingLogger) Info(msg string, keysAndValues ...interface{}) {
	t.Logger.Info(msg, keysAndValues...)
	if !t.Logger.Enabled() {
		return
	}
	t.Span.AddEvent(infoEventName, trace.WithAttributes(eventAttributes(msg, keysAndValues)...))
}

// Error implements the Logger interface.
func (t TracingLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	t.Logger.Error(err, msg, keysAndValues...)
	t.Span.AddEvent(errorEventName, trace.WithAttributes(eventAttributes(msg, keysAndValues)...))
	t.Span.RecordError(err)
}

// V implements the Logger interface.
func (t TracingLogger) V(level int) logr.Logger {
	return TracingLogger{Logger: t.Logger.V(level), Span: t.Span}
}

// WithValues implements the Logger interface.
func (t TracingLogger) WithValues(keysAndValues ...interface{}) logr.Logger {
	t.Span.SetAttributes(keyValues(keysAndValues...)...)
	return TracingLogger{Logger: t.Logger.WithValues(keysAndValues...), Span: t.Span}
}

// WithName implements the Logger interface.
func (t TracingLogger) WithName(name string) logr.Logger {
	t.Span.SetAttributes(attribute.String("name", name))
	return TracingLogger{Logger: t.Logger.WithName(name), Span: t.Span}
}

func eventAttributes(msg string, keysAndValues []interface{}) []attribute.KeyValue {
	return append(
		[]attribute.KeyValue{
			attribute.String(messageKey, msg),
			attribute.String(eventTypeKey, logEventTypeValue),
		},
		keyValues(keysAndValues...)...)
}

// keyValues converts the keysAndValues input from logger into a slice of
// opentelemetry attributes. Stringers, like resource UIDs and durations, are
// recorded by their string form.
func keyValues(keysAndValues ...interface{}) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = nonStringKey
		}
		switch v := keysAndValues[i+1].(type) {
		case fmt.Stringer:
			attrs = append(attrs, attribute.String(key, v.String()))
		case error:
			attrs = append(attrs, attribute.String(key, v.Error()))
		default:
			attrs = append(attrs, attribute.Any(key, v))
		}
	}
	return attrs
}
