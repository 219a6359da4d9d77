package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/yairfalse/sgscope/internal/config"
	"github.com/yairfalse/sgscope/internal/finder"
	"github.com/yairfalse/sgscope/internal/plugin"
	"github.com/yairfalse/sgscope/internal/plugin/aws"
	"github.com/yairfalse/sgscope/internal/telemetry"
)

var (
	version = "0.1.0"

	cfgFile    string
	cfgRegion  string
	cfgProfile string
	logLevel   string
	logFormat  string
	debug      bool

	// cfg is loaded before any subcommand runs.
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "sgscope",
		Short: "Find what uses an AWS security group",
		Long: `sgscope - Security Group Usage Finder

sgscope asks every AWS service that can hold a security group whether any
of its resources reference the given group, and reports per service what
it found, that it found nothing, or why it could not tell.

Use it before deleting a security group, or run it as a watch daemon to
export attachment metrics for a list of groups.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initConfig,
	}
)

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.msg != "" {
			fmt.Fprintln(os.Stderr, exitErr.msg)
		}
		os.Exit(exitErr.code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// init sets up the root command
func init() {
	rootCmd.SetVersionTemplate(`sgscope {{.Version}} - Security Group Usage Finder
`)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Path to TOML config file")
	flags.StringVarP(&cfgRegion, "region", "r", "", "AWS region (default: SDK chain)")
	flags.StringVar(&cfgProfile, "profile", "", "AWS shared config profile")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&logFormat, "log-format", "", "Log format: console, json")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
}

func initConfig(cmd *cobra.Command, _ []string) error {
	loaded := config.Default()
	if cfgFile != "" {
		var err error
		if loaded, err = config.Load(cfgFile); err != nil {
			return err
		}
	}

	applyFlagOverrides(cmd, loaded)

	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := setupLogging(loaded.Log, debug); err != nil {
		return err
	}

	cfg = loaded
	return nil
}

// applyFlagOverrides lets explicitly set flags win over file values.
func applyFlagOverrides(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("region") {
		c.AWS.Region = cfgRegion
	}
	if flags.Changed("profile") {
		c.AWS.Profile = cfgProfile
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		c.Log.Format = logFormat
	}
}

func setupLogging(c config.LogConfig, debug bool) error {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	if debug {
		level = zerolog.DebugLevel
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(level)
	if c.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = log.Logger.Hook(telemetry.OTELHook{})
	return nil
}

// newTelemetry creates the telemetry provider; the returned func flushes it.
func newTelemetry(ctx context.Context, c *config.Config, readers ...sdkmetric.Reader) (*telemetry.Provider, func(), error) {
	tp, err := telemetry.NewProvider(ctx, c.OTEL, readers...)
	if err != nil {
		return nil, nil, fmt.Errorf("create telemetry: %w", err)
	}

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}
	return tp, shutdown, nil
}

// buildFinder registers the AWS plugin and returns a finder over its providers.
func buildFinder(ctx context.Context, c *config.Config, observer finder.Observer) (*finder.Finder, error) {
	p, err := aws.New(ctx, aws.Config{
		Region:              c.AWS.Region,
		Profile:             c.AWS.Profile,
		RequestsPerSecond:   c.Scanner.RequestsPerSecond,
		Burst:               c.Scanner.Burst,
		DescribeConcurrency: c.Scanner.DescribeConcurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("create aws plugin: %w", err)
	}
	plugin.Register(p)

	f, err := plugin.NewFinder(p.Name(), finder.Config{
		Concurrency:   c.Scanner.Concurrency,
		Timeout:       c.Scanner.Timeout,
		LookupTimeout: c.Scanner.LookupTimeout,
	})
	if err != nil {
		return nil, err
	}

	return f.WithObserver(observer).WithLogger(log.Logger), nil
}
