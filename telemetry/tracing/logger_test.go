package tracing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/oteltest"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

func TestKeyValues(t *testing.T) {
	cases := []struct {
		name       string
		input      []interface{}
		wantOutput []attribute.KeyValue
	}{
		{
			name:       "nil input",
			input:      nil,
			wantOutput: []attribute.KeyValue{},
		},
		{
			name:  "valid key-val",
			input: []interface{}{"namespace", "default", "workers", 4},
			wantOutput: []attribute.KeyValue{
				attribute.String("namespace", "default"),
				attribute.Int("workers", 4),
			},
		},
		{
			name:  "stringer value",
			input: []interface{}{"elapsed", 2 * time.Second},
			wantOutput: []attribute.KeyValue{
				attribute.String("elapsed", "2s"),
			},
		},
		{
			name:  "error value",
			input: []interface{}{"cause", errors.New("boom")},
			wantOutput: []attribute.KeyValue{
				attribute.String("cause", "boom"),
			},
		},
		{
			name:  "non-string key",
			input: []interface{}{1, 2},
			wantOutput: []attribute.KeyValue{
				attribute.Int(nonStringKey, 2),
			},
		},
		{
			name:       "dangling key",
			input:      []interface{}{"aa"},
			wantOutput: []attribute.KeyValue{},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			result := keyValues(tc.input...)
			assert.Equal(t, tc.wantOutput, result)
		})
	}
}

func TestLoggerEvents(t *testing.T) {
	sr := new(oteltest.SpanRecorder)
	tp := oteltest.NewTracerProvider(oteltest.WithSpanRecorder(sr))
	_, span := tp.Tracer("test").Start(context.TODO(), "reconcile")

	// Only V(0) is enabled.
	zl := zap.New(zap.UseDevMode(false))
	log := NewLogger(zl, span)

	log.Info("applied")
	log.V(5).Info("stdout")
	log.Error(errors.New("exited with 1"), "callout failed")
	span.End()

	completed := sr.Completed()
	if assert.Len(t, completed, 1) {
		events := completed[0].Events()
		// info, error and the recorded exception.
		assert.Len(t, events, 3)
		assert.Equal(t, infoEventName, events[0].Name)
		assert.Equal(t, errorEventName, events[1].Name)
	}
}
