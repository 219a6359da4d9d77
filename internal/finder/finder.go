package finder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/yairfalse/sgscope/pkg/usage"
)

// DefaultConcurrency bounds provider fan-out when Config leaves it unset.
const DefaultConcurrency = 4

// Observer receives scan telemetry.
type Observer interface {
	StartSpan(ctx context.Context, name string) (context.Context, trace.Span)
	RecordLookup(ctx context.Context, region string, result usage.Result)
	RecordScan(ctx context.Context, report usage.Report)
}

// Config holds finder settings.
type Config struct {
	Region        string
	Concurrency   int           // Providers looked up at once
	Timeout       time.Duration // Whole scan; zero means no limit
	LookupTimeout time.Duration // Single provider; zero means no limit
}

// Finder runs every registered provider lookup for a security group.
type Finder struct {
	region        string
	concurrency   int
	timeout       time.Duration
	lookupTimeout time.Duration
	providers     []Provider
	observer      Observer
	logger        zerolog.Logger
}

// New creates a finder over a fixed, ordered provider registry.
func New(cfg Config, providers []Provider) (*Finder, error) {
	if err := validateProviders(providers); err != nil {
		return nil, fmt.Errorf("invalid registry: %w", err)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	registry := make([]Provider, len(providers))
	copy(registry, providers)

	return &Finder{
		region:        cfg.Region,
		concurrency:   concurrency,
		timeout:       cfg.Timeout,
		lookupTimeout: cfg.LookupTimeout,
		providers:     registry,
		observer:      nopObserver{},
		logger:        log.Logger,
	}, nil
}

// WithObserver sets the telemetry observer
func (f *Finder) WithObserver(o Observer) *Finder {
	if o != nil {
		f.observer = o
	}
	return f
}

// WithLogger sets the logger
func (f *Finder) WithLogger(l zerolog.Logger) *Finder {
	f.logger = l
	return f
}

// Region returns the region the providers are bound to.
func (f *Finder) Region() string {
	return f.region
}

// Providers returns the registry in scan order.
func (f *Finder) Providers() []Provider {
	out := make([]Provider, len(f.providers))
	copy(out, f.providers)
	return out
}

// Scan looks up sgID in every provider and returns the aggregated report.
// It always returns one result per provider; failures and cancellation are
// recorded on the affected results rather than returned.
func (f *Finder) Scan(ctx context.Context, sgID string) usage.Report {
	startedAt := time.Now()

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	ctx, span := f.observer.StartSpan(ctx, "finder.scan")
	defer span.End()

	f.logger.Info().
		Ctx(ctx).
		Str("security_group", sgID).
		Str("region", f.region).
		Int("providers", len(f.providers)).
		Msg("starting scan")

	// Each goroutine owns one slot, so no lock is needed.
	results := make([]usage.Result, len(f.providers))

	var g errgroup.Group
	g.SetLimit(f.concurrency)

	for i, p := range f.providers {
		if err := ctx.Err(); err != nil {
			results[i] = f.cancelled(ctx, p, err)
			continue
		}
		g.Go(func() error {
			results[i] = f.lookup(ctx, p, sgID)
			return nil
		})
	}
	_ = g.Wait()

	report := usage.NewReport(sgID, f.region, startedAt, results)
	f.observer.RecordScan(ctx, report)

	f.logger.Info().
		Ctx(ctx).
		Str("security_group", sgID).
		Str("region", f.region).
		Int("scanned", report.Scanned()).
		Int("errored", report.Errored()).
		Bool("found", report.AnyFound).
		Dur("duration", report.Duration).
		Msg("scan complete")

	return report
}

type outcome struct {
	matches usage.Matches
	err     error
}

// lookup runs one provider in isolation. The lookup itself runs in its own
// goroutine so a call that ignores ctx cannot hold the scan past cancellation.
func (f *Finder) lookup(scanCtx context.Context, p Provider, sgID string) usage.Result {
	if err := scanCtx.Err(); err != nil {
		return f.cancelled(scanCtx, p, err)
	}

	ctx := scanCtx
	if f.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.lookupTimeout)
		defer cancel()
	}

	ctx, span := f.observer.StartSpan(ctx, "lookup."+p.Name)
	defer span.End()

	start := time.Now()
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("lookup panicked: %v", r)}
			}
		}()
		m, err := p.Lookup(ctx, sgID)
		done <- outcome{matches: m, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = outcome{err: ctx.Err()}
	}

	var result usage.Result
	if out.err != nil {
		result = usage.Failed(p.Name, p.Title, f.classify(scanCtx, out.err))
	} else {
		result = usage.Succeeded(p.Name, p.Title, out.matches)
	}
	result.Duration = time.Since(start)

	if result.Failed() {
		span.RecordError(result.Err)
	}
	f.record(ctx, result)

	return result
}

// cancelled builds the result of a provider the scan never got to run.
func (f *Finder) cancelled(ctx context.Context, p Provider, cause error) usage.Result {
	result := usage.Failed(p.Name, p.Title, usage.Cancelled(cause))
	f.record(ctx, result)
	return result
}

func (f *Finder) record(ctx context.Context, r usage.Result) {
	f.observer.RecordLookup(ctx, f.region, r)
	f.logResult(ctx, r)
}

// classify maps a lookup error to its kind. Once the scan itself is over,
// every unfinished lookup is cancelled regardless of what it returned.
func (f *Finder) classify(scanCtx context.Context, err error) *usage.Error {
	if scanErr := scanCtx.Err(); scanErr != nil {
		return usage.Cancelled(scanErr)
	}
	if errors.Is(err, context.DeadlineExceeded) && f.lookupTimeout > 0 {
		return usage.Transient(fmt.Errorf("lookup timed out after %s", f.lookupTimeout))
	}
	return usage.AsError(err)
}

func (f *Finder) logResult(ctx context.Context, r usage.Result) {
	if r.Failed() {
		f.logger.Warn().
			Ctx(ctx).
			Str("provider", r.Provider).
			Str("kind", string(r.Err.Kind)).
			Err(r.Err).
			Msg("lookup failed")
		return
	}

	evt := f.logger.Debug().
		Ctx(ctx).
		Str("provider", r.Provider).
		Int("found", len(r.ResourceIDs)).
		Dur("duration", r.Duration)
	if r.Partial() {
		evt = evt.Int("skipped", len(r.Skipped))
	}
	evt.Msg("lookup complete")
}

type nopObserver struct{}

func (nopObserver) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return noop.NewTracerProvider().Tracer("").Start(ctx, name)
}

func (nopObserver) RecordLookup(context.Context, string, usage.Result) {}

func (nopObserver) RecordScan(context.Context, usage.Report) {}
