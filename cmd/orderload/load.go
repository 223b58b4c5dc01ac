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

func newLoadCmd(s streams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load [host] [port] [totalOrders] [concurrency]",
		Short: "Closed loop: submit a fixed number of orders at bounded concurrency",
		Args:  cobra.MaximumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, config.ModeClosedLoop, args)
			if err != nil {
				return err
			}
			return runLoad(cmd.Context(), cfg, s)
		},
	}
	config.RegisterFlags(cmd, config.ModeClosedLoop)
	return cmd
}

func runLoad(parent context.Context, cfg *config.Config, s streams) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := newHarness(ctx, cfg, s, "load-client-", cfg.Concurrency)
	if err != nil {
		return err
	}

	callerID := cfg.KeyPrefix
	if cfg.RunScopedKeys {
		callerID = h.runID + "-" + callerID
	}
	loop := runner.ClosedLoop{
		Total:       cfg.Total,
		Concurrency: cfg.Concurrency,
		Source:      h.source,
		Submitter:   h.submitter,
		CallerID:    callerID,
		Recorder:    h.recorder,
	}

	h.start(
		zap.String("mode", string(cfg.Mode)),
		zap.Int("total", cfg.Total),
		zap.Int("concurrency", cfg.Concurrency),
	)
	began := time.Now()
	res, runErr := loop.Run(ctx)
	return h.finish(res, time.Since(began), runErr)
}
