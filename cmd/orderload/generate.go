package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tradeengine/orderload/internal/config"
	"github.com/tradeengine/orderload/internal/order"
)

func newGenerateCmd(s streams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate [count]",
		Short: "Write generated orders to stdout as NDJSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, config.ModeGenerate, args)
			if err != nil {
				return err
			}
			gen := order.NewSeededGenerator(resolveSeed(cfg.Seed), order.WithInstrument(cfg.Instrument))
			return order.WriteNDJSON(s.out, gen, cfg.Count)
		},
	}
	config.RegisterFlags(cmd, config.ModeGenerate)
	return cmd
}

// resolveSeed maps the zero seed to a time-based one.
func resolveSeed(seed int64) int64 {
	if seed == 0 {
		return time.Now().UnixNano()
	}
	return seed
}
