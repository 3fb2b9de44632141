// Package export installs the opentelemetry trace pipeline selected at
// startup.
package export

import (
	"fmt"
	"strings"
)

// Supported exporters.
const (
	ExporterNone   = "none"
	ExporterJaeger = "jaeger"
	ExporterOTLP   = "otlp"
)

// TracerShutdown is returned by exporter setup functions. This is called to
// shutdown the exporter.
type TracerShutdown func()

func noopShutdown() {}

// Exporter resolves the exporter name. An empty name falls back to the
// TRACING_EXPORTER environment variable, then to none. DISABLE_TRACING=true
// always selects none.
func Exporter(name string) string {
	if getEnvAsBool(envDisableTracing, false) {
		return ExporterNone
	}
	if name == "" {
		name = getEnv(envTracingExporter, ExporterNone)
	}
	return strings.ToLower(strings.TrimSpace(name))
}

// Install sets up the named exporter for the given service. With "none" the
// global no-op tracer provider is left in place.
func Install(name, serviceName string) (TracerShutdown, error) {
	switch exp := Exporter(name); exp {
	case ExporterNone, "":
		return noopShutdown, nil
	case ExporterJaeger:
		return InstallJaegerExporter(serviceName)
	case ExporterOTLP:
		return InstallOTLPExporter(serviceName)
	default:
		return nil, fmt.Errorf("unknown tracing exporter %q", exp)
	}
}
