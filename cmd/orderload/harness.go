package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/tradeengine/orderload/internal/config"
	"github.com/tradeengine/orderload/internal/dispatch"
	"github.com/tradeengine/orderload/internal/feeder"
	"github.com/tradeengine/orderload/internal/httpclient"
	"github.com/tradeengine/orderload/internal/logging"
	"github.com/tradeengine/orderload/internal/metrics"
	"github.com/tradeengine/orderload/internal/order"
	"github.com/tradeengine/orderload/internal/output"
	"github.com/tradeengine/orderload/internal/runner"
	"github.com/tradeengine/orderload/internal/threshold"
	"github.com/tradeengine/orderload/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

// harness holds everything the load and rate commands share: the
// dispatcher chain, the order source, and the observers fed by the
// recorder.
type harness struct {
	cfg        *config.Config
	streams    streams
	log        *zap.Logger
	runID      string
	thresholds []threshold.Threshold
	tracing    *tracing.Provider
	source     runner.OrderSource
	submitter  runner.Submitter
	collector  *metrics.Collector
	recorder   *metrics.Recorder
	metricsSrv *http.Server
	progress   *output.ProgressReporter
}

// newHarness wires a run. clientPrefix names generated clients and conns
// sizes the per-host connection pool.
func newHarness(ctx context.Context, cfg *config.Config, s streams, clientPrefix string, conns int) (*harness, error) {
	log, err := logging.NewWithWriter(cfg.LogLevel, s.errOut)
	if err != nil {
		return nil, err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return nil, err
	}
	builder, err := httpclient.NewRequestBuilder(cfg)
	if err != nil {
		return nil, err
	}
	source, err := newOrderSource(cfg, s.in, clientPrefix)
	if err != nil {
		return nil, err
	}
	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	h := &harness{
		cfg:        cfg,
		streams:    s,
		log:        log,
		runID:      ulid.Make().String(),
		thresholds: thresholds,
		tracing:    tp,
		source:     source,
		collector:  metrics.NewCollector(),
	}

	opts := []dispatch.Option{dispatch.WithTracer(tp.Tracer(), tp.ShouldPropagate())}
	if cfg.ExpectStatus > 0 {
		opts = append(opts, dispatch.WithExpectStatus(cfg.ExpectStatus))
	}
	var sub runner.Submitter = dispatch.New(httpclient.NewClient(cfg.Timeout, conns), builder, opts...)
	if cfg.Retries > 0 {
		sub = runner.WithRetry(sub, newRetryPolicy(cfg.Retries))
	}
	if cfg.LogErrors {
		sub = runner.WithLogging(sub, logging.NewFailureLogger(log))
	}
	h.submitter = sub

	observers := []metrics.Observer{h.collector}
	if cfg.MetricsAddr != "" {
		exporter := metrics.NewExporter()
		srv, err := serveMetrics(cfg.MetricsAddr, exporter, log)
		if err != nil {
			_ = tp.Shutdown(context.Background())
			return nil, err
		}
		h.metricsSrv = srv
		observers = append(observers, exporter)
	}
	h.recorder = metrics.NewRecorder(observers...)
	return h, nil
}

func newOrderSource(cfg *config.Config, stdin io.Reader, clientPrefix string) (runner.OrderSource, error) {
	if cfg.OrdersFile != "" {
		f, err := feeder.Open(cfg.OrdersFile, stdin)
		if err != nil {
			return nil, err
		}
		return f.At, nil
	}
	gen := order.NewSeededGenerator(resolveSeed(cfg.Seed),
		order.WithClientPrefix(clientPrefix),
		order.WithInstrument(cfg.Instrument),
	)
	return gen.Generate, nil
}

func serveMetrics(addr string, exporter *metrics.Exporter, log *zap.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen for metrics on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return srv, nil
}

// start marks the beginning of the measured run.
func (h *harness) start(fields ...zap.Field) {
	h.collector.Start()
	if h.cfg.Progress {
		h.progress = output.NewProgressReporter(h.collector, progressInterval, h.streams.errOut)
		h.progress.Start()
	}
	fields = append(fields,
		zap.String("run_id", h.runID),
		zap.String("target", h.cfg.Target.URL()),
	)
	h.log.Info("run started", fields...)
}

// finish reports the run and turns its outcome into the command's error.
// An interrupted run still reports what completed before failing.
func (h *harness) finish(res runner.Result, elapsed time.Duration, runErr error) error {
	defer h.close()
	if h.progress != nil {
		h.progress.Stop()
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}

	report, err := metrics.Summarize(res.Samples)
	noData := errors.Is(err, metrics.ErrNoSamples)
	if err != nil && !noData {
		return err
	}
	report.RunID = h.runID
	report.Dropped = res.Dropped
	report.Abandoned = res.Abandoned
	report = report.WithDuration(elapsed)

	results := threshold.NewEvaluator(h.thresholds).Evaluate(report)
	if err := h.print(report, results, noData); err != nil {
		return err
	}

	h.log.Info("run finished",
		zap.String("run_id", h.runID),
		zap.Int("completed", report.Count),
		zap.Int("failures", report.Failures),
		zap.Int64("dropped", res.Dropped),
		zap.Int64("abandoned", res.Abandoned),
		zap.Int("peak_in_flight", res.PeakInFlight),
		zap.Duration("elapsed", elapsed),
	)

	if runErr != nil {
		return fmt.Errorf("run interrupted: %w", runErr)
	}
	if !threshold.AllPassed(results) {
		return errThresholdsFailed
	}
	return nil
}

func (h *harness) print(report metrics.Report, results []threshold.Result, noData bool) error {
	out := h.streams.out
	switch {
	case h.cfg.JSONOutput:
		return output.PrintJSONReport(out, output.NewDocument(report, results))
	case h.cfg.YAMLOutput:
		return output.PrintYAMLReport(out, output.NewDocument(report, results))
	case noData:
		output.PrintNoData(out, report.Dropped, report.Abandoned)
	default:
		output.PrintReport(out, report)
	}
	output.PrintThresholds(out, results)
	return nil
}

func (h *harness) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := h.tracing.Shutdown(ctx); err != nil {
		h.log.Warn("tracing shutdown", zap.Error(err))
	}
	if h.metricsSrv != nil {
		_ = h.metricsSrv.Shutdown(ctx)
	}
	_ = h.log.Sync()
}
