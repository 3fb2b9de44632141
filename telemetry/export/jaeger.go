package export

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/trace/jaeger"
)

// Empty default jaeger endpoint.
const defaultJaegerEndpoint = ""

// InstallJaegerExporter installs opentelemetry exporter for Jaeger with the
// given service name. The returned TracerShutdown can be called to perform a
// flush of the exporter.
// The pipeline is disabled unless JAEGER_DISABLED=false, and spans are sent
// to JAEGER_ENDPOINT, e.g. http://<service-address>:14268/api/traces.
func InstallJaegerExporter(serviceName string, opts ...jaeger.Option) (TracerShutdown, error) {
	// Default options.
	jOpts := []jaeger.Option{
		jaeger.WithProcess(jaeger.Process{
			ServiceName: serviceName,
			Tags: []attribute.KeyValue{
				attribute.String("exporter", ExporterJaeger),
			},
		}),
		jaeger.WithDisabled(true),
	}
	jOpts = append(jOpts, opts...)

	flush, err := jaeger.InstallNewPipeline(
		jaeger.WithCollectorEndpoint(defaultJaegerEndpoint),
		jOpts...,
	)
	if err != nil {
		return nil, err
	}

	return flush, nil
}
