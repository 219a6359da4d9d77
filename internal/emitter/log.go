package emitter

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/yairfalse/sgscope/pkg/usage"
)

// LogEmitter writes one structured log event per report plus one per match and failure.
type LogEmitter struct {
	logger zerolog.Logger
}

// NewLogEmitter creates a log emitter.
func NewLogEmitter(logger zerolog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

// Emit logs the report.
func (e *LogEmitter) Emit(_ context.Context, report usage.Report) error {
	for _, r := range report.Results {
		switch {
		case r.Failed():
			e.logger.Warn().
				Str("security_group", report.SecurityGroupID).
				Str("provider", r.Provider).
				Str("kind", string(r.Err.Kind)).
				Str("error", r.Err.Message()).
				Msg("lookup failed")
		case r.Found():
			e.logger.Info().
				Str("security_group", report.SecurityGroupID).
				Str("provider", r.Provider).
				Strs("resources", r.ResourceIDs).
				Msg("security group in use")
		}
	}

	e.logger.Info().
		Str("security_group", report.SecurityGroupID).
		Str("region", report.Region).
		Bool("found", report.AnyFound).
		Int("scanned", report.Scanned()).
		Int("errored", report.Errored()).
		Dur("duration", report.Duration).
		Msg("scan complete")

	return nil
}

// Close is a no-op for the log emitter.
func (e *LogEmitter) Close() error {
	return nil
}
