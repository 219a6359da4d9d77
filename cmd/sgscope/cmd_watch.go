package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/sgscope/internal/daemon"
	"github.com/yairfalse/sgscope/internal/emitter"
	"github.com/yairfalse/sgscope/internal/plugin"
	"github.com/yairfalse/sgscope/internal/telemetry"
)

var (
	watchInterval    time.Duration
	watchMetricsAddr string
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [security-group-id...]",
	Short: "Rescan security groups on an interval and export metrics",
	Long: `Run sgscope as a daemon that rescans a list of security groups on an
interval. Every cycle is a fresh scan; reports are logged and exported
as Prometheus metrics.

Groups given as arguments replace watch.security_groups from the config.

Endpoints:
- /metrics   Prometheus metrics
- /healthz   liveness
- /readyz    ready once the first cycle finished
- /health    daemon status as JSON`,
	Example: `  sgscope watch sg-0abc12345 sg-0def67890          # Watch two groups
  sgscope watch --interval 5m                      # Groups from config
  sgscope watch --metrics-addr :9100 sg-0abc12345`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Scan interval (overrides watch.interval)")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Metrics server address (overrides watch.metrics_addr)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	groups := cfg.Watch.SecurityGroups
	if len(args) > 0 {
		groups = args
	}
	if cmd.Flags().Changed("interval") {
		cfg.Watch.Interval = watchInterval
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.Watch.MetricsAddr = watchMetricsAddr
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// OTEL metrics are exposed through the Prometheus exporter
	promReader, err := telemetry.NewPrometheusReader()
	if err != nil {
		return err
	}

	tp, shutdown, err := newTelemetry(ctx, cfg, promReader.Exporter)
	if err != nil {
		return err
	}
	defer shutdown()

	f, err := buildFinder(ctx, cfg, tp)
	if err != nil {
		return err
	}

	promEmitter, err := emitter.NewPrometheusEmitter(tp.Meter())
	if err != nil {
		return fmt.Errorf("create emitter: %w", err)
	}
	emit := emitter.NewMultiEmitter(emitter.NewLogEmitter(log.Logger), promEmitter)
	defer func() { _ = emit.Close() }()

	metrics, err := daemon.NewDaemonMetrics(tp.Meter())
	if err != nil {
		return fmt.Errorf("create daemon metrics: %w", err)
	}

	d, err := daemon.NewDaemon(daemon.Config{
		Interval:       cfg.Watch.Interval,
		SecurityGroups: groups,
	}, f, emit, metrics)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	d.WithLogger(log.Logger)

	srv := &http.Server{
		Addr:              cfg.Watch.MetricsAddr,
		Handler:           newMux(promReader.Handler(), d.Health),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	{
		g.Add(func() error {
			log.Info().Str("addr", srv.Addr).Msg("starting metrics server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}
	{
		daemonCtx, daemonCancel := context.WithCancel(ctx)
		g.Add(func() error {
			return d.Start(daemonCtx)
		}, func(error) {
			daemonCancel()
		})
	}

	err = g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		log.Info().Str("signal", sigErr.Signal.String()).Msg("shutting down")
		return nil
	}
	return err
}

func newMux(metrics http.Handler, health func() daemon.HealthStatus) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics)
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/readyz", handleReadyz(health))
	mux.HandleFunc("/health", handleHealth(health))
	return mux
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func handleReadyz(health func() daemon.HealthStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if len(plugin.All()) == 0 {
			writeText(w, http.StatusServiceUnavailable, "no plugins registered")
			return
		}
		if health().Status == "starting" {
			writeText(w, http.StatusServiceUnavailable, "first scan pending")
			return
		}
		writeText(w, http.StatusOK, "ok")
	}
}

func handleHealth(health func() daemon.HealthStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(health()); err != nil {
			log.Error().Err(err).Msg("encode health")
		}
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
