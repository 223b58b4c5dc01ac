package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tradeengine/orderload/internal/config"
	"github.com/tradeengine/orderload/internal/runner"
)

func newRateCmd(s streams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rate [host] [port]",
		Short: "Open loop: submit orders at a fixed arrival rate for a fixed duration",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, config.ModeOpenLoop, args)
			if err != nil {
				return err
			}
			return runRate(cmd.Context(), cfg, s)
		},
	}
	config.RegisterFlags(cmd, config.ModeOpenLoop)
	return cmd
}

func runRate(parent context.Context, cfg *config.Config, s streams) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conns := cfg.MaxCallers
	if conns < cfg.PreAllocatedCallers {
		conns = cfg.PreAllocatedCallers
	}
	h, err := newHarness(ctx, cfg, s, "rate-client-", conns)
	if err != nil {
		return err
	}

	prefix := ""
	if cfg.RunScopedKeys {
		prefix = h.runID + "-"
	}
	loop := runner.OpenLoop{
		Rate:                cfg.Rate,
		Duration:            cfg.Duration,
		PreAllocatedCallers: cfg.PreAllocatedCallers,
		MaxCallers:          cfg.MaxCallers,
		Backlog:             cfg.Backlog,
		Arrival:             cfg.Arrival.Model,
		Stages:              cfg.LoadPatterns,
		GracefulStop:        cfg.GracefulStop,
		Source:              h.source,
		Submitter:           h.submitter,
		KeyPrefix:           prefix,
		Recorder:            h.recorder,
		Seed:                resolveSeed(cfg.Seed),
	}

	h.start(
		zap.String("mode", string(cfg.Mode)),
		zap.Int("rate", cfg.Rate),
		zap.Duration("duration", cfg.Duration),
		zap.Int("pre_allocated_callers", cfg.PreAllocatedCallers),
		zap.Int("max_callers", cfg.MaxCallers),
		zap.String("backlog", string(cfg.Backlog)),
	)
	began := time.Now()
	res, runErr := loop.Run(ctx)
	return h.finish(res, time.Since(began), runErr)
}
