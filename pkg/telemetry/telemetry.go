// Package telemetry installs the OpenTelemetry tracer provider used by the
// run stages and the grid search. With the "none" exporter the global no-op
// provider stays in place and spans cost nothing.
package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/YuminosukeSato/gridtrack/pkg/errors"
)

// Exporter names.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// ServiceName identifies gridtrack spans.
const ServiceName = "gridtrack"

// Config selects the trace exporter.
type Config struct {
	Exporter     string
	OTLPEndpoint string // host:port, otlp only
	OTLPInsecure bool
	Writer       io.Writer // stdout only; nil means os.Stdout
}

// Init installs a global tracer provider for cfg and returns its shutdown
// function, which flushes pending spans. Call once at startup.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case ExporterNone, "":
		return noop, nil
	case ExporterStdout:
		opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if cfg.Writer != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Writer))
		}
		exporter, err = stdouttrace.New(opts...)
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		return nil, errors.NewValidationError("trace_exporter", "must be none, stdout or otlp", cfg.Exporter)
	}
	if err != nil {
		return nil, errors.Wrap(err, "create trace exporter")
	}

	res := resource.NewWithAttributes("",
		attribute.String("service.name", ServiceName),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
