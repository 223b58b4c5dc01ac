package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Defaults taken from the reference scripts the harness replaces.
const (
	DefaultHost                = "localhost"
	DefaultPort                = 8080
	DefaultCount               = 1000
	DefaultTotal               = 1000
	DefaultConcurrency         = 20
	DefaultRate                = 2000
	DefaultDuration            = 30 * time.Second
	DefaultPreAllocatedCallers = 500
	DefaultMaxCallers          = 2000
	DefaultGracefulStop        = 30 * time.Second
	DefaultKeyPrefix           = "load"
)

// RegisterFlags registers the flags for the given mode on a cobra command.
func RegisterFlags(cmd *cobra.Command, mode Mode) {
	configureFlags(cmd.Flags(), mode)
}

// newFlagCommand creates a cobra command with the flags for mode configured.
func newFlagCommand(mode Mode) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "orderload " + string(mode),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags(), mode)
	return cmd
}

func configureFlags(flags *pflag.FlagSet, mode Mode) {
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Int64("seed", 0, "Seed for the order generator (0 picks a time-based seed)")
	flags.String("instrument", "", "Instrument for generated orders (default BTC-USD)")

	if mode == ModeGenerate {
		return
	}

	// Target and request flags
	flags.String("scheme", "http", "Target scheme (http or https)")
	flags.String("path", "/orders", "Order intake path")
	flags.String("api-key", "", "Value sent in the X-API-Key header")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.Duration("timeout", 30*time.Second, "Per-request timeout")
	flags.Int("retries", 0, "Retries per order, reusing its idempotency key")
	flags.Int("expect-status", 0, "Only this status counts as success (0 accepts any 2xx)")
	flags.Bool("run-scoped-keys", false, "Prefix idempotency keys with the run ID")
	flags.String("orders", "", "Replay NDJSON orders from this file ('-' for stdin) instead of generating")

	switch mode {
	case ModeClosedLoop:
		flags.IntP("total", "n", DefaultTotal, "Orders to dispatch (the total positional takes precedence)")
		flags.IntP("concurrency", "c", DefaultConcurrency, "Orders in flight at once (the concurrency positional takes precedence)")
		flags.String("key-prefix", DefaultKeyPrefix, "Caller ID used in idempotency keys")
	case ModeOpenLoop:
		flags.IntP("rate", "r", DefaultRate, "Order arrivals per second")
		flags.DurationP("duration", "d", DefaultDuration, "How long to schedule arrivals")
		flags.Int("pre-allocated-callers", DefaultPreAllocatedCallers, "Callers created before the run starts")
		flags.Int("max-callers", DefaultMaxCallers, "Upper bound on callers (0 means pre-allocated only)")
		flags.String("backlog", string(BacklogDrop), "What to do with an arrival when no caller is free (drop or queue)")
		flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model (uniform or poisson)")
		flags.Duration("graceful-stop", DefaultGracefulStop, "How long in-flight orders may finish after the run ends")
	}

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted report")
	flags.Bool("yaml-output", false, "Emit YAML formatted report")
	flags.Bool("log-errors", false, "Log each failed order to stderr")
	flags.Bool("progress", false, "Print a live progress line to stderr")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	flags.StringSlice("threshold", nil, "Pass/fail thresholds (repeatable, e.g. 'order_latency:p99 < 250')")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for trace export")
	flags.String("tracing-protocol", "grpc", "OTLP protocol (grpc or http)")
	flags.String("tracing-service-name", "orderload", "Service name reported in spans")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", false, "Inject W3C trace context into order requests")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of submissions to sample")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file. Flags not registered for the mode are skipped.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	changed := func(name string) bool {
		return fs.Lookup(name) != nil && fs.Changed(name)
	}

	if changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}
	if changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = val
	}
	if changed("instrument") {
		val, err := fs.GetString("instrument")
		if err != nil {
			return err
		}
		cfg.Instrument = strings.TrimSpace(val)
	}
	if changed("scheme") {
		val, err := fs.GetString("scheme")
		if err != nil {
			return err
		}
		cfg.Target.Scheme = strings.ToLower(strings.TrimSpace(val))
	}
	if changed("path") {
		val, err := fs.GetString("path")
		if err != nil {
			return err
		}
		cfg.Target.Path = strings.TrimSpace(val)
	}
	if changed("api-key") {
		val, err := fs.GetString("api-key")
		if err != nil {
			return err
		}
		cfg.APIKey = val
	}
	if changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if changed("retries") {
		val, err := fs.GetInt("retries")
		if err != nil {
			return err
		}
		cfg.Retries = val
	}
	if changed("expect-status") {
		val, err := fs.GetInt("expect-status")
		if err != nil {
			return err
		}
		cfg.ExpectStatus = val
	}
	if changed("run-scoped-keys") {
		val, err := fs.GetBool("run-scoped-keys")
		if err != nil {
			return err
		}
		cfg.RunScopedKeys = val
	}
	if changed("orders") {
		val, err := fs.GetString("orders")
		if err != nil {
			return err
		}
		cfg.OrdersFile = strings.TrimSpace(val)
	}
	if changed("key-prefix") {
		val, err := fs.GetString("key-prefix")
		if err != nil {
			return err
		}
		cfg.KeyPrefix = strings.TrimSpace(val)
	}
	if changed("total") {
		val, err := fs.GetInt("total")
		if err != nil {
			return err
		}
		cfg.Total = val
	}
	if changed("concurrency") {
		val, err := fs.GetInt("concurrency")
		if err != nil {
			return err
		}
		cfg.Concurrency = val
	}
	if changed("rate") {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}
	if changed("pre-allocated-callers") {
		val, err := fs.GetInt("pre-allocated-callers")
		if err != nil {
			return err
		}
		cfg.PreAllocatedCallers = val
	}
	if changed("max-callers") {
		val, err := fs.GetInt("max-callers")
		if err != nil {
			return err
		}
		cfg.MaxCallers = val
	}
	if changed("backlog") {
		val, err := fs.GetString("backlog")
		if err != nil {
			return err
		}
		cfg.Backlog = BacklogPolicy(strings.ToLower(strings.TrimSpace(val)))
	}
	if changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if changed("graceful-stop") {
		val, err := fs.GetDuration("graceful-stop")
		if err != nil {
			return err
		}
		cfg.GracefulStop = val
	}
	if changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if changed("yaml-output") {
		val, err := fs.GetBool("yaml-output")
		if err != nil {
			return err
		}
		cfg.YAMLOutput = val
	}
	if changed("log-errors") {
		val, err := fs.GetBool("log-errors")
		if err != nil {
			return err
		}
		cfg.LogErrors = val
	}
	if changed("progress") {
		val, err := fs.GetBool("progress")
		if err != nil {
			return err
		}
		cfg.Progress = val
	}
	if changed("metrics-addr") {
		val, err := fs.GetString("metrics-addr")
		if err != nil {
			return err
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}
	if changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	if changed("header") {
		vals, err := fs.GetStringSlice("header")
		if err != nil {
			return err
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	if changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		cfg.Tracing.ServiceName = strings.TrimSpace(val)
	}
	if changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = val
	}
	if changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	return nil
}
