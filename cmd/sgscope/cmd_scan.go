package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/sgscope/internal/filter"
	"github.com/yairfalse/sgscope/internal/finder"
	"github.com/yairfalse/sgscope/internal/render"
	"github.com/yairfalse/sgscope/pkg/usage"
)

// Exit statuses for --fail-if-found.
const (
	exitFound      = 3
	exitIncomplete = 4
)

var (
	scanOutput      string
	scanHideEmpty   bool
	scanExclude     []string
	scanFailIfFound bool
	scanNoColor     bool
	scanTimeout     time.Duration
	scanConcurrency int
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <security-group-id>",
	Short: "Find resources that reference a security group",
	Long: `Scan every supported AWS service for resources that reference the
given security group. Each service is looked up independently: one
failing service never hides what the others found.

With --fail-if-found the exit status gates deletion in CI:
  0  nothing references the group
  3  at least one resource references the group
  4  nothing found, but some services or items could not be checked`,
	Example: `  sgscope scan sg-0abc12345                        # Scan the default region
  sgscope scan sg-0abc12345 --region eu-west-1     # Scan a specific region
  sgscope scan sg-0abc12345 -o json                # Machine-readable report
  sgscope scan sg-0abc12345 --hide-empty           # Only matches and errors
  sgscope scan sg-0abc12345 --exclude sagemaker,emr
  sgscope scan sg-0abc12345 --fail-if-found        # Exit 3 if in use`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "table", "Output format: table, json, yaml")
	scanCmd.Flags().BoolVar(&scanHideEmpty, "hide-empty", false, "Hide services with no matches from the table")
	scanCmd.Flags().StringSliceVar(&scanExclude, "exclude", nil, "Hide these providers from the table (comma-separated)")
	scanCmd.Flags().BoolVar(&scanFailIfFound, "fail-if-found", false, "Exit 3 if any resource references the group")
	scanCmd.Flags().BoolVar(&scanNoColor, "no-color", false, "Disable colored output")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "Whole scan timeout (overrides scanner.timeout)")
	scanCmd.Flags().IntVar(&scanConcurrency, "concurrency", 0, "Providers looked up at once (overrides scanner.concurrency)")
}

func runScan(cmd *cobra.Command, args []string) error {
	format, err := render.ParseFormat(scanOutput)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Scanner.Timeout = scanTimeout
	}
	if cmd.Flags().Changed("concurrency") {
		if scanConcurrency < 1 {
			return fmt.Errorf("concurrency must be at least 1 (got %d)", scanConcurrency)
		}
		cfg.Scanner.Concurrency = scanConcurrency
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, shutdown, err := newTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdown()

	f, err := buildFinder(ctx, cfg, tp)
	if err != nil {
		return err
	}

	flt := filter.New(scanExclude, scanHideEmpty)
	if unknown := flt.Unknown(providerNames(f.Providers())); len(unknown) > 0 {
		log.Warn().Strs("providers", unknown).Msg("excluded providers are not registered")
	}

	report := f.Scan(ctx, args[0])

	opts := render.Options{
		Filter: flt,
		Color:  format == render.FormatTable && !scanNoColor && !color.NoColor,
	}
	if err := render.Render(cmd.OutOrStdout(), report, format, opts); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	return scanExit(report, scanFailIfFound)
}

// scanExit maps a report to the --fail-if-found exit status.
func scanExit(report usage.Report, failIfFound bool) error {
	if !failIfFound {
		return nil
	}
	if report.AnyFound {
		return &exitError{code: exitFound}
	}
	if n := report.Incomplete(); n > 0 {
		return &exitError{
			code: exitIncomplete,
			msg:  fmt.Sprintf("%d providers could not be fully checked; security group usage is unknown", n),
		}
	}
	return nil
}

func providerNames(providers []finder.Provider) []string {
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name)
	}
	return names
}
