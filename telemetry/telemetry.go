package telemetry

import (
	"context"
	"io"

	"chatrelay/common"
	"chatrelay/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ShutdownFunc flushes pending spans and releases the exporter.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// InitTracer installs a global tracer provider. When tracing is disabled the
// global no-op provider is left in place. With an endpoint configured, spans
// go to an OTLP gRPC collector; otherwise they are written as JSON to a daily
// rotating file under cfg.TraceDir, or to out when no directory is set.
func InitTracer(ctx context.Context, serviceName string, cfg common.OtelConfig, out io.Writer) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	var exporter sdktrace.SpanExporter
	var closeOut func() error
	switch {
	case cfg.Endpoint != "":
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, err
		}

	default:
		if cfg.TraceDir != "" {
			rotatingWriter, err := logger.NewDailyRotatingWriter(cfg.TraceDir, "traces-", ".json")
			if err != nil {
				return nil, err
			}
			out = rotatingWriter
			closeOut = rotatingWriter.Close
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(out))
		if err != nil {
			if closeOut != nil {
				closeOut()
			}
			return nil, err
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if closeOut != nil {
			if closeErr := closeOut(); err == nil {
				err = closeErr
			}
		}
		return err
	}, nil
}
