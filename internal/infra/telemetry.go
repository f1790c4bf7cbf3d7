package infra

import (
	"context"
	"errors"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	TelemetryExporterNone   = "none"
	TelemetryExporterStdout = "stdout"

	metricExportInterval = time.Minute
)

// Telemetry owns the SDK meter and tracer providers of one process.
type Telemetry struct {
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
}

// NewTelemetry builds providers tagged with service that feed readers and
// spans. Spans are sampled according to the parent, defaulting to always.
func NewTelemetry(service string, readers []sdkmetric.Reader, spans []sdktrace.SpanProcessor) *Telemetry {
	res := resource.NewSchemaless(attribute.String("service.name", service))

	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		metricOpts = append(metricOpts, sdkmetric.WithReader(r))
	}
	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	for _, sp := range spans {
		traceOpts = append(traceOpts, sdktrace.WithSpanProcessor(sp))
	}
	return &Telemetry{
		MeterProvider:  sdkmetric.NewMeterProvider(metricOpts...),
		TracerProvider: sdktrace.NewTracerProvider(traceOpts...),
	}
}

// Install makes t the global provider pair read by otel.Meter and otel.Tracer.
func (t *Telemetry) Install() {
	otel.SetMeterProvider(t.MeterProvider)
	otel.SetTracerProvider(t.TracerProvider)
}

// Shutdown flushes pending exports and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.TracerProvider.Shutdown(ctx), t.MeterProvider.Shutdown(ctx))
}

// SetupTelemetry installs global providers for service. With the "none"
// exporter nothing is installed and instruments stay noop.
func SetupTelemetry(cfg *Config, service string, logger Logger) (*Telemetry, error) {
	if cfg.OTelExporter != TelemetryExporterStdout {
		logger.Info().Msg("telemetry export disabled")
		return nil, nil
	}
	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return nil, err
	}
	spanExp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, err
	}
	t := NewTelemetry(service,
		[]sdkmetric.Reader{sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(metricExportInterval))},
		[]sdktrace.SpanProcessor{sdktrace.NewBatchSpanProcessor(spanExp)},
	)
	t.Install()
	logger.Info().Str("exporter", cfg.OTelExporter).Msg("telemetry installed")
	return t, nil
}
