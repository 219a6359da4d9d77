package daemon

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DaemonMetrics holds operational metrics using OTEL semantic conventions
type DaemonMetrics struct {
	cycles        metric.Int64Counter
	cycleDuration metric.Float64Histogram
	groupsInUse   metric.Int64Gauge
	emitErrors    metric.Int64Counter
}

// NewDaemonMetrics creates daemon metrics. A nil meter uses the global provider.
func NewDaemonMetrics(meter metric.Meter) (*DaemonMetrics, error) {
	if meter == nil {
		meter = otel.Meter("sgscope.daemon")
	}

	cycles, err := meter.Int64Counter(
		"sgscope.daemon.cycles",
		metric.WithDescription("Number of watch scan cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	cycleDuration, err := meter.Float64Histogram(
		"sgscope.daemon.cycle.duration",
		metric.WithDescription("Duration of watch scan cycles"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	groupsInUse, err := meter.Int64Gauge(
		"sgscope.security_groups.in_use",
		metric.WithDescription("Number of watched security groups referenced by at least one resource"),
		metric.WithUnit("{security_group}"),
	)
	if err != nil {
		return nil, err
	}

	emitErrors, err := meter.Int64Counter(
		"sgscope.daemon.emit_errors",
		metric.WithDescription("Number of reports an emitter failed to accept"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &DaemonMetrics{
		cycles:        cycles,
		cycleDuration: cycleDuration,
		groupsInUse:   groupsInUse,
		emitErrors:    emitErrors,
	}, nil
}

// RecordCycle records a scan cycle with status and duration
func (m *DaemonMetrics) RecordCycle(ctx context.Context, status string, region string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("cloud.provider", "aws"),
		attribute.String("cloud.region", region),
	)
	m.cycles.Add(ctx, 1, attrs)
	m.cycleDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordGroupsInUse records how many watched groups are in use
func (m *DaemonMetrics) RecordGroupsInUse(ctx context.Context, count int64, region string) {
	m.groupsInUse.Record(ctx, count,
		metric.WithAttributes(
			attribute.String("cloud.region", region),
		),
	)
}

// RecordEmitError records a failed emit
func (m *DaemonMetrics) RecordEmitError(ctx context.Context) {
	m.emitErrors.Add(ctx, 1)
}
