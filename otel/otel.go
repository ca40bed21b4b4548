// Package otel provides higher level APIs around Open Telemetry instrumentation.
package otel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "webdriver-launcher"

// ErrUnsupportedProto indicates that the defined exporter protocol is not supported.
var ErrUnsupportedProto = errors.New("unsupported protocol")

// TraceProvider provides methods for tracers initialization and shutdown of the
// processing pipeline.
type TraceProvider interface {
	Tracer(name string, options ...trace.TracerOption) trace.Tracer
	Shutdown(ctx context.Context) error
}

type (
	traceProvShutdownFunc func(ctx context.Context) error
)

type traceProvider struct {
	trace.TracerProvider

	noop bool

	shutdown traceProvShutdownFunc
}

// Options configures the OTLP exporter.
type Options struct {
	// Proto is either http or grpc.
	Proto    string
	Endpoint string
	Insecure bool
	Headers  map[string]string
}

// NewTraceProvider creates a new trace provider exporting spans over OTLP.
func NewTraceProvider(ctx context.Context, opts Options) (TraceProvider, error) {
	client, err := newClient(opts)
	if err != nil {
		return nil, fmt.Errorf("creating exporter client: %w", err)
	}

	exporter, err := otlptrace.New(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("creating exporter: %w", err)
	}

	prov := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource()),
	)

	otel.SetTracerProvider(prov)

	return &traceProvider{
		TracerProvider: prov,
		shutdown:       prov.Shutdown,
	}, nil
}

func newResource() *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)
}

func newClient(opts Options) (otlptrace.Client, error) {
	switch strings.ToLower(opts.Proto) {
	case "http":
		return newHTTPClient(opts), nil
	case "grpc":
		return newGRPCClient(opts), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedProto, opts.Proto)
	}
}

func newHTTPClient(opts Options) otlptrace.Client {
	hopts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(opts.Endpoint),
		otlptracehttp.WithHeaders(opts.Headers),
	}
	if opts.Insecure {
		hopts = append(hopts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.NewClient(hopts...)
}

func newGRPCClient(opts Options) otlptrace.Client {
	gopts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(opts.Endpoint),
		otlptracegrpc.WithHeaders(opts.Headers),
	}
	if opts.Insecure {
		gopts = append(gopts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.NewClient(gopts...)
}

// NewNoopTraceProvider creates a new noop trace provider.
func NewNoopTraceProvider() TraceProvider {
	prov := noop.NewTracerProvider()

	otel.SetTracerProvider(prov)

	return &traceProvider{
		TracerProvider: prov,
		noop:           true,
	}
}

// Shutdown shuts down TracerProvider releasing any held computational resources.
// After Shutdown is called, all methods are no-ops.
func (tp *traceProvider) Shutdown(ctx context.Context) error {
	if tp.noop {
		return nil
	}

	return tp.shutdown(ctx)
}
