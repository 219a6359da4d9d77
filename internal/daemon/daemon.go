// Package daemon runs periodic security group scans for watch mode.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/yairfalse/sgscope/internal/emitter"
	"github.com/yairfalse/sgscope/pkg/usage"
)

// Scanner scans one security group. *finder.Finder satisfies it.
type Scanner interface {
	Scan(ctx context.Context, sgID string) usage.Report
	Region() string
}

// Config holds daemon configuration
type Config struct {
	Interval       time.Duration
	SecurityGroups []string
}

// Daemon rescans the watched security groups on an interval
type Daemon struct {
	interval  time.Duration
	groups    []string
	scanner   Scanner
	emitter   emitter.Emitter
	metrics   *DaemonMetrics
	logger    zerolog.Logger
	startTime time.Time
	scanCount atomic.Int64

	mu          sync.RWMutex
	lastCycle   time.Time
	lastErrored int
}

// NewDaemon creates a new daemon instance. A nil metrics disables metric recording.
func NewDaemon(config Config, scanner Scanner, em emitter.Emitter, metrics *DaemonMetrics) (*Daemon, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive (got %s)", config.Interval)
	}
	if len(config.SecurityGroups) == 0 {
		return nil, errors.New("no security groups to watch")
	}
	seen := make(map[string]bool, len(config.SecurityGroups))
	for _, sg := range config.SecurityGroups {
		if sg == "" {
			return nil, errors.New("empty security group id")
		}
		if seen[sg] {
			return nil, fmt.Errorf("security group %q listed twice", sg)
		}
		seen[sg] = true
	}
	if scanner == nil {
		return nil, errors.New("nil scanner")
	}
	if em == nil {
		em = emitter.NewMultiEmitter()
	}

	return &Daemon{
		interval:  config.Interval,
		groups:    append([]string(nil), config.SecurityGroups...),
		scanner:   scanner,
		emitter:   em,
		metrics:   metrics,
		logger:    zerolog.Nop(),
		startTime: time.Now(),
	}, nil
}

// WithLogger sets the daemon's logger.
func (d *Daemon) WithLogger(logger zerolog.Logger) *Daemon {
	d.logger = logger
	return d
}

// Start scans immediately, then once per interval until ctx is done.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Info().
		Dur("interval", d.interval).
		Strs("security_groups", d.groups).
		Str("region", d.scanner.Region()).
		Msg("watch started")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error().Err(err).Msg("scan cycle failed")
		}

		select {
		case <-ctx.Done():
			d.logger.Info().Int64("cycles", d.ScanCount()).Msg("watch stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce scans every watched group in order and emits each report.
// Emit failures are collected; the cycle stops early only when ctx is done.
func (d *Daemon) RunOnce(ctx context.Context) error {
	start := time.Now()
	var errs []error
	errored := 0
	inUse := 0

	for _, sg := range d.groups {
		if err := ctx.Err(); err != nil {
			return err
		}

		report := d.scanner.Scan(ctx, sg)
		errored += report.Errored()
		if report.AnyFound {
			inUse++
		}

		if err := d.emitter.Emit(ctx, report); err != nil {
			errs = append(errs, fmt.Errorf("emit %s: %w", sg, err))
		}
	}

	d.scanCount.Add(1)
	d.mu.Lock()
	d.lastCycle = time.Now()
	d.lastErrored = errored
	d.mu.Unlock()

	status := cycleStatus(errored, len(errs))
	if d.metrics != nil {
		d.metrics.RecordCycle(ctx, status, d.scanner.Region(), time.Since(start))
		d.metrics.RecordGroupsInUse(ctx, int64(inUse), d.scanner.Region())
		for range errs {
			d.metrics.RecordEmitError(ctx)
		}
	}

	d.logger.Debug().
		Str("status", status).
		Int("groups", len(d.groups)).
		Int("in_use", inUse).
		Int("errored_lookups", errored).
		Dur("duration", time.Since(start)).
		Msg("scan cycle complete")

	return errors.Join(errs...)
}

func cycleStatus(erroredLookups, emitErrors int) string {
	switch {
	case emitErrors > 0:
		return "error"
	case erroredLookups > 0:
		return "partial"
	default:
		return "success"
	}
}

// Health returns daemon health status
func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	status := "healthy"
	switch {
	case d.lastCycle.IsZero():
		status = "starting"
	case d.lastErrored > 0:
		status = "degraded"
	}

	return HealthStatus{
		Status:    status,
		Uptime:    int64(time.Since(d.startTime).Seconds()),
		Cycles:    d.scanCount.Load(),
		LastCycle: d.lastCycle,
	}
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status    string    `json:"status"`
	Uptime    int64     `json:"uptime_seconds"`
	Cycles    int64     `json:"cycles"`
	LastCycle time.Time `json:"last_cycle"`
}

// ScanCount returns total scan cycles run
func (d *Daemon) ScanCount() int64 {
	return d.scanCount.Load()
}
