// Package telemetry provides OpenTelemetry instrumentation for sgscope.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/sgscope/internal/config"
	"github.com/yairfalse/sgscope/pkg/usage"
)

const instrumentationName = "github.com/yairfalse/sgscope"

// Provider wraps OTEL tracer and meter providers. It implements finder.Observer.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter

	// Metrics
	lookupDuration metric.Float64Histogram
	scanDuration   metric.Float64Histogram
	lookupErrors   metric.Int64Counter
	matched        metric.Int64Counter
	skipped        metric.Int64Counter
}

// NewProvider creates a new telemetry provider. Extra readers (e.g. a
// Prometheus exporter) are attached to the meter provider alongside OTLP.
func NewProvider(ctx context.Context, cfg config.OTELConfig, readers ...sdkmetric.Reader) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	p := &Provider{}

	if err := p.setupTracing(ctx, cfg, res); err != nil {
		return nil, err
	}

	if err := p.setupMetrics(ctx, cfg, res, readers); err != nil {
		if p.tracerProvider != nil {
			_ = p.tracerProvider.Shutdown(ctx)
		}
		return nil, err
	}

	if err := p.initMetrics(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if cfg.Traces.Enabled && cfg.Endpoint != "" {
		exp, err := createTraceExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Traces.SampleRate))
		opts = append(opts, sdktrace.WithBatcher(exp), sdktrace.WithSampler(sampler))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	p.tracer = p.tracerProvider.Tracer(instrumentationName)

	return nil
}

func (p *Provider) setupMetrics(ctx context.Context, cfg config.OTELConfig, res *resource.Resource, readers []sdkmetric.Reader) error {
	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}

	if cfg.Metrics.Enabled && cfg.Endpoint != "" {
		exp, err := createMetricExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter(instrumentationName)

	return nil
}

func createTraceExporter(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func createMetricExporter(ctx context.Context, cfg config.OTELConfig) (sdkmetric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func (p *Provider) initMetrics() error {
	var err error

	p.lookupDuration, err = p.meter.Float64Histogram(
		"sgscope_lookup_duration_seconds",
		metric.WithDescription("Duration of single provider lookups"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create lookup_duration: %w", err)
	}

	p.scanDuration, err = p.meter.Float64Histogram(
		"sgscope_scan_duration_seconds",
		metric.WithDescription("Duration of full security group scans"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create scan_duration: %w", err)
	}

	p.lookupErrors, err = p.meter.Int64Counter(
		"sgscope_lookup_errors_total",
		metric.WithDescription("Total failed provider lookups"),
	)
	if err != nil {
		return fmt.Errorf("create lookup_errors: %w", err)
	}

	p.matched, err = p.meter.Int64Counter(
		"sgscope_resources_matched_total",
		metric.WithDescription("Total resources found referencing a scanned security group"),
	)
	if err != nil {
		return fmt.Errorf("create resources_matched: %w", err)
	}

	p.skipped, err = p.meter.Int64Counter(
		"sgscope_items_skipped_total",
		metric.WithDescription("Total items a two-phase lookup could not describe"),
	)
	if err != nil {
		return fmt.Errorf("create items_skipped: %w", err)
	}

	return nil
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	return p.meter
}

// StartSpan starts a new span.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name)
}

// RecordLookup records the outcome of one provider lookup.
func (p *Provider) RecordLookup(ctx context.Context, region string, r usage.Result) {
	attrs := []attribute.KeyValue{
		attribute.String("provider", r.Provider),
		attribute.String("region", region),
		attribute.String("outcome", outcome(r)),
	}
	p.lookupDuration.Record(ctx, r.Duration.Seconds(), metric.WithAttributes(attrs...))

	if r.Failed() {
		p.lookupErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("provider", r.Provider),
			attribute.String("region", region),
			attribute.String("kind", string(r.Err.Kind)),
		))
		return
	}

	provider := metric.WithAttributes(
		attribute.String("provider", r.Provider),
		attribute.String("region", region),
	)
	if n := len(r.ResourceIDs); n > 0 {
		p.matched.Add(ctx, int64(n), provider)
	}
	if n := len(r.Skipped); n > 0 {
		p.skipped.Add(ctx, int64(n), provider)
	}
}

// RecordScan records a completed scan and annotates the active span.
func (p *Provider) RecordScan(ctx context.Context, report usage.Report) {
	p.scanDuration.Record(ctx, report.Duration.Seconds(), metric.WithAttributes(
		attribute.String("region", report.Region),
		attribute.Bool("found", report.AnyFound),
	))

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("security_group", report.SecurityGroupID),
		attribute.String("region", report.Region),
		attribute.Int("providers.scanned", report.Scanned()),
		attribute.Int("providers.errored", report.Errored()),
		attribute.Bool("found", report.AnyFound),
	)
	if report.Errored() > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d lookups failed", report.Errored()))
	}
}

func outcome(r usage.Result) string {
	switch {
	case r.Failed():
		return "error"
	case r.Found():
		return "found"
	default:
		return "none"
	}
}

// Shutdown flushes and shuts down the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer: %w", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter: %w", err)
		}
	}
	return nil
}
