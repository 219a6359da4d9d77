package emitter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/sgscope/pkg/usage"
)

// PrometheusEmitter exposes the latest report per security group as metrics via OTEL.
type PrometheusEmitter struct {
	meter metric.Meter

	// Metrics
	attachedResources metric.Int64ObservableGauge
	groupInUse        metric.Int64ObservableGauge
	scanErrorsTotal   metric.Int64Counter
	changesTotal      metric.Int64Counter

	// State for observable gauges, keyed by security group
	mu      sync.RWMutex
	reports map[string]usage.Report

	// Diff tracking
	diffTracker *DiffTracker
}

// NewPrometheusEmitter creates a Prometheus emitter. A nil meter uses the global provider.
func NewPrometheusEmitter(meter metric.Meter) (*PrometheusEmitter, error) {
	if meter == nil {
		meter = otel.Meter("sgscope")
	}

	e := &PrometheusEmitter{
		meter:       meter,
		reports:     make(map[string]usage.Report),
		diffTracker: NewDiffTracker(),
	}

	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return e, nil
}

func (e *PrometheusEmitter) initMetrics() error {
	var err error

	e.attachedResources, err = e.meter.Int64ObservableGauge(
		"sgscope_attached_resources",
		metric.WithDescription("Resources referencing a security group, per provider"),
	)
	if err != nil {
		return fmt.Errorf("create attached_resources gauge: %w", err)
	}

	e.groupInUse, err = e.meter.Int64ObservableGauge(
		"sgscope_security_group_in_use",
		metric.WithDescription("1 if any provider found a resource referencing the security group"),
	)
	if err != nil {
		return fmt.Errorf("create security_group_in_use gauge: %w", err)
	}

	if _, err = e.meter.RegisterCallback(e.observe, e.attachedResources, e.groupInUse); err != nil {
		return fmt.Errorf("register gauge callback: %w", err)
	}

	e.scanErrorsTotal, err = e.meter.Int64Counter(
		"sgscope_scan_errors_total",
		metric.WithDescription("Total failed provider lookups in watched scans"),
	)
	if err != nil {
		return fmt.Errorf("create scan_errors counter: %w", err)
	}

	e.changesTotal, err = e.meter.Int64Counter(
		"sgscope_attachment_changes_total",
		metric.WithDescription("Total resources attached to or detached from a watched security group"),
	)
	if err != nil {
		return fmt.Errorf("create attachment_changes counter: %w", err)
	}

	return nil
}

// Emit records the report as metrics.
func (e *PrometheusEmitter) Emit(ctx context.Context, report usage.Report) error {
	for _, r := range report.Results {
		if !r.Failed() {
			continue
		}
		e.scanErrorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("security_group", report.SecurityGroupID),
			attribute.String("provider", r.Provider),
			attribute.String("kind", string(r.Err.Kind)),
		))
	}

	e.emitDiffs(ctx, report)
	e.diffTracker.Update(report)

	e.mu.Lock()
	e.reports[report.SecurityGroupID] = report
	e.mu.Unlock()

	return nil
}

// emitDiffs computes attachment changes and emits metrics/logs for them.
func (e *PrometheusEmitter) emitDiffs(ctx context.Context, report usage.Report) {
	changes := e.diffTracker.ComputeDiff(report)
	if changes == nil {
		// First scan - baseline established
		return
	}

	for _, c := range changes {
		e.changesTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("security_group", c.SecurityGroupID),
			attribute.String("provider", c.Provider),
			attribute.String("change", string(c.Type)),
		))

		log.Info().
			Str("security_group", c.SecurityGroupID).
			Str("region", report.Region).
			Str("provider", c.Provider).
			Str("resource", c.ResourceID).
			Str("change", string(c.Type)).
			Msg("attachment changed")
	}
}

// observe is the callback for both gauges.
func (e *PrometheusEmitter) observe(_ context.Context, o metric.Observer) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	groups := make([]string, 0, len(e.reports))
	for sg := range e.reports {
		groups = append(groups, sg)
	}
	sort.Strings(groups)

	for _, sg := range groups {
		report := e.reports[sg]
		inUse := int64(0)
		if report.AnyFound {
			inUse = 1
		}
		o.ObserveInt64(e.groupInUse, inUse, metric.WithAttributes(
			attribute.String("security_group", sg),
			attribute.String("region", report.Region),
		))

		for _, r := range report.Results {
			// Failed lookups have no count; absence beats a misleading zero.
			if r.Failed() {
				continue
			}
			o.ObserveInt64(e.attachedResources, int64(len(r.ResourceIDs)), metric.WithAttributes(
				attribute.String("security_group", sg),
				attribute.String("region", report.Region),
				attribute.String("provider", r.Provider),
			))
		}
	}

	return nil
}

// Close is a no-op for Prometheus emitter.
func (e *PrometheusEmitter) Close() error {
	return nil
}
