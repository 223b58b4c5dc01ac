// Command orderload generates synthetic orders and drives them against an
// order-intake service, reporting end-to-end latency percentiles.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tradeengine/orderload/internal/config"
)

var version = "0.1.0"

// errThresholdsFailed signals a completed run whose thresholds did not pass.
var errThresholdsFailed = errors.New("one or more thresholds failed")

// streams carries the process stdio so commands can be tested in-process.
type streams struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

func main() {
	if err := newRootCmd(streams{in: os.Stdin, out: os.Stdout, errOut: os.Stderr}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(s streams) *cobra.Command {
	root := &cobra.Command{
		Use:     "orderload",
		Short:   "Synthetic order load generator and latency harness",
		Version: version,
		Long: `orderload submits synthetic orders to an order-intake service through
POST /orders and reports end-to-end latency percentiles.

  generate  write orders as NDJSON fixtures
  load      closed loop: a fixed number of orders at bounded concurrency
  rate      open loop: a fixed arrival rate for a fixed duration`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetIn(s.in)
	root.SetOut(s.out)
	root.SetErr(s.errOut)
	root.AddCommand(newGenerateCmd(s), newLoadCmd(s), newRateCmd(s))
	return root
}

// loadConfig resolves and validates the configuration for mode from the
// command's parsed flags and positional arguments.
func loadConfig(cmd *cobra.Command, mode config.Mode, args []string) (*config.Config, error) {
	cfg, err := config.NewLoader().Load(mode, cmd.Flags(), args)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
