// Package exporters builds the OpenTelemetry span exporters and metric
// readers selectable by name in the toolgate configuration.
package exporters

import (
	"context"
	"errors"
	"fmt"
	"os"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// PrometheusNamespace prefixes every metric exposed on /metrics.
const PrometheusNamespace = "toolgate"

// Registerer receives the Prometheus collector. Tests swap it for a
// private registry.
var Registerer promclient.Registerer = promclient.DefaultRegisterer

var (
	// ErrUnknownExporter is returned for a name not listed below.
	ErrUnknownExporter = errors.New("exporters: unknown exporter")

	// ErrNoEndpoint is returned for otlp when no collector endpoint is set.
	ErrNoEndpoint = errors.New("exporters: OTLP endpoint not configured")
)

// NewTracingExporter returns the span exporter named stdout, otlp or
// none. "none" and "" yield a nil exporter: spans are sampled but dropped.
func NewTracingExporter(ctx context.Context, name string) (sdktrace.SpanExporter, error) {
	switch name {
	case "none", "":
		return nil, nil
	case "stdout":
		return stdouttrace.New(stdouttrace.WithWriter(os.Stdout))
	case "otlp":
		if err := requireEndpoint("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"); err != nil {
			return nil, err
		}
		return otlptracegrpc.New(ctx)
	}
	return nil, fmt.Errorf("%w: tracing %q", ErrUnknownExporter, name)
}

// NewMetricsReader returns the reader named stdout, otlp, prometheus or
// none. The prometheus reader registers into Registerer and backs the
// /metrics endpoint.
func NewMetricsReader(ctx context.Context, name string) (sdkmetric.Reader, error) {
	switch name {
	case "none", "":
		return sdkmetric.NewManualReader(), nil
	case "prometheus":
		return prometheus.New(
			prometheus.WithRegisterer(Registerer),
			prometheus.WithNamespace(PrometheusNamespace),
			prometheus.WithoutScopeInfo(),
		)
	case "stdout":
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stdout))
		if err != nil {
			return nil, fmt.Errorf("stdout metrics: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	case "otlp":
		if err := requireEndpoint("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); err != nil {
			return nil, err
		}
		exp, err := otlpmetricgrpc.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("otlp metrics: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	}
	return nil, fmt.Errorf("%w: metrics %q", ErrUnknownExporter, name)
}

// requireEndpoint checks the generic or the signal-specific OTLP endpoint
// variable.
func requireEndpoint(signalVar string) error {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" || os.Getenv(signalVar) != "" {
		return nil
	}
	return fmt.Errorf("%w: set OTEL_EXPORTER_OTLP_ENDPOINT or %s", ErrNoEndpoint, signalVar)
}
