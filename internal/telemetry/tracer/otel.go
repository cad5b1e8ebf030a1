package tracer

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InstrumentationName names the tracer used by clinvault packages.
const InstrumentationName = "github.com/yndnr/clinvault"

// Config configures the tracer provider.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// File receives exported spans; empty means Output.
	File string

	// Output receives exported spans when File is empty (default os.Stderr).
	Output io.Writer
}

// Provider manages the OpenTelemetry tracer provider.
type Provider struct {
	tp     trace.TracerProvider
	sdk    *sdktrace.TracerProvider
	closer io.Closer
}

// New creates a tracer provider and installs it as the global provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return &Provider{tp: tp}, nil
	}

	var (
		out    io.Writer = cfg.Output
		closer io.Closer
	)
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		out, closer = lj, lj
	}
	if out == nil {
		out = os.Stderr
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return nil, err
	}

	name := cfg.ServiceName
	if name == "" {
		name = "clinvault"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(sdk)

	return &Provider{tp: sdk, sdk: sdk, closer: closer}, nil
}

// TracerProvider returns the underlying provider.
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.tp
}

// Shutdown flushes pending spans and releases the export file.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	err := p.sdk.Shutdown(ctx)
	if p.closer != nil {
		if cerr := p.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// StartSpan starts a span on the global provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(InstrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
