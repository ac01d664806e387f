package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/connprobe/internal/api"
	"github.com/torosent/connprobe/internal/changefeed"
	"github.com/torosent/connprobe/internal/config"
	"github.com/torosent/connprobe/internal/export"
	"github.com/torosent/connprobe/internal/health"
	"github.com/torosent/connprobe/internal/logging"
	"github.com/torosent/connprobe/internal/metrics"
	"github.com/torosent/connprobe/internal/output"
	"github.com/torosent/connprobe/internal/probe"
	"github.com/torosent/connprobe/internal/runner"
	"github.com/torosent/connprobe/internal/telemetry"
	"github.com/torosent/connprobe/internal/threshold"
	"github.com/torosent/connprobe/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return a.run(ctx, os.Stdout, os.Stderr)
}

// app holds the wired components of one connprobe process.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	provider  *tracing.Provider
	engine    *telemetry.Engine
	sub       *telemetry.Subscription
	prober    probe.Prober
	collector *metrics.Collector
	checker   *health.Checker
	feed      *changefeed.Subscriber
	handler   *api.Handler
	runner    *runner.Runner
	evaluator *threshold.Evaluator
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:       cfg,
		logger:    logger,
		provider:  tracing.New(),
		engine:    telemetry.NewEngine(cfg.RuntimeVersion),
		collector: metrics.NewCollector(),
		checker:   health.NewChecker(3*cfg.Probe.Interval+cfg.Probe.Timeout, health.DefaultMaxFailures),
		evaluator: threshold.NewEvaluator(thresholds),
	}
	a.sub = telemetry.NewSubscription(a.engine, a.provider.TracerProvider(), cfg.DrainTimeout)

	prober, err := probe.New(cfg.Probe, a.provider.Tracers())
	if err != nil {
		_ = a.provider.Shutdown(context.Background())
		return nil, fmt.Errorf("create %s probe: %w", cfg.Probe.Kind, err)
	}
	a.prober = prober

	if cfg.ChangeFeed.Enabled() {
		feed, err := changefeed.NewSubscriber(cfg.ChangeFeed.URL, cfg.ChangeFeed.Subject, logger)
		if err != nil {
			_ = prober.Close()
			_ = a.provider.Shutdown(context.Background())
			return nil, fmt.Errorf("connect changefeed: %w", err)
		}
		a.feed = feed
	}

	deps := api.Deps{
		Telemetry:      a.engine,
		Probe:          a.collector,
		Health:         a.checker,
		Metrics:        export.Handler(export.NewRegistry(export.NewCollector(a.engine, a.collector))),
		StreamInterval: cfg.StreamInterval,
		Logger:         logger,
	}
	if a.feed != nil {
		deps.ChangeFeed = a.feed
	}
	a.handler = api.New(deps)

	a.runner = runner.New(runner.Options{
		Interval: cfg.Probe.Interval,
		Timeout:  cfg.Probe.Timeout,
		Prober:   prober,
		Recorder: a.collector,
		Observer: a.checker,
		Logger:   logger,
	})
	return a, nil
}

// run serves the report endpoint and probes until ctx is done, then shuts
// everything down and writes the final report.
func (a *app) run(ctx context.Context, stdout, stderr io.Writer) error {
	ln, err := net.Listen("tcp", a.cfg.Listen)
	if err != nil {
		a.close(context.Background())
		return fmt.Errorf("listen on %s: %w", a.cfg.Listen, err)
	}

	if err := a.sub.Start(); err != nil {
		_ = ln.Close()
		a.close(context.Background())
		return err
	}
	a.collector.Start()
	if a.feed != nil {
		if err := a.feed.Start(); err != nil {
			_ = ln.Close()
			a.close(context.Background())
			return fmt.Errorf("subscribe changefeed: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := api.NewServer(a.cfg.Listen, a.handler)
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
		close(serveErr)
	}()
	a.logger.Info("serving telemetry", zap.String("addr", ln.Addr().String()))

	var progress *output.ProgressReporter
	if a.cfg.Progress {
		progress = output.NewProgressReporter(a.engine, a.collector, progressInterval, stderr)
		progress.Start()
	}

	a.runner.Run(ctx)

	if progress != nil {
		progress.Stop()
		fmt.Fprintln(stderr)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http server shutdown", zap.Error(err))
	}
	a.close(shutdownCtx)

	summary := a.summary()
	if err := output.Write(stdout, a.cfg.ReportFormat, summary); err != nil {
		return err
	}
	if a.cfg.ReportFile != "" {
		if err := output.WriteReportFile(shutdownCtx, a.cfg.ReportFile, a.cfg.ReportFormat, summary); err != nil {
			return fmt.Errorf("write report file: %w", err)
		}
		a.logger.Info("report written", zap.String("path", a.cfg.ReportFile))
	}

	if err := <-serveErr; err != nil {
		return fmt.Errorf("serve telemetry: %w", err)
	}
	if failed := threshold.Failed(summary.Thresholds); failed > 0 {
		return fmt.Errorf("%d of %d thresholds failed", failed, len(summary.Thresholds))
	}
	return nil
}

// close stops event delivery first so the final report sees no late samples.
func (a *app) close(ctx context.Context) {
	if err := a.sub.Stop(ctx); err != nil {
		a.logger.Warn("telemetry drain incomplete", zap.Error(err))
	}
	if err := a.prober.Close(); err != nil {
		a.logger.Warn("close probe", zap.Error(err), logging.ErrorType(err))
	}
	if a.feed != nil {
		a.feed.Close()
	}
	if err := a.provider.Shutdown(ctx); err != nil {
		a.logger.Warn("tracer provider shutdown", zap.Error(err))
	}
}

func (a *app) summary() output.Summary {
	stats := a.collector.Stats()
	report := a.engine.Report()
	return output.Summary{
		Telemetry:  report,
		Probe:      &stats,
		Thresholds: a.evaluator.Evaluate(report, &stats),
	}
}
