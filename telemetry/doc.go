// Package telemetry bundles the tracer, meter and logger used to instrument
// a reconciliation. Spans are exported by the pipeline installed with the
// export package; without one they are no-ops.
package telemetry
