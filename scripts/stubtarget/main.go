// Command stubtarget is a stand-in order-intake service for exercising
// orderload locally. It accepts POST /orders, honors Idempotency-Key
// replays, and can inject latency, failures, an API-key check, and a
// global rate limit.
package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/tradeengine/orderload/internal/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("stubtarget", pflag.ContinueOnError)
	port := fs.Int("port", 8080, "Listening port")
	cfg := stubConfig{}
	fs.StringVar(&cfg.APIKey, "api-key", "", "Require this X-API-Key value (empty disables the check)")
	fs.IntVar(&cfg.RateLimit, "rate-limit", 0, "Orders accepted per second before answering 429 (0 disables)")
	fs.DurationVar(&cfg.Latency, "latency", 0, "Artificial processing delay per order")
	fs.Float64Var(&cfg.FailRate, "fail-rate", 0, "Fraction of orders answered with 503")
	level := fs.String("log-level", "info", "Log level")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *port <= 0 || *port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if cfg.FailRate < 0 || cfg.FailRate > 1 {
		return fmt.Errorf("fail-rate must be between 0 and 1")
	}

	log, err := logging.New(*level)
	if err != nil {
		return err
	}
	defer log.Sync()

	addr := net.JoinHostPort("", strconv.Itoa(*port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           newStub(cfg, log).routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("stub order target listening", zap.String("addr", addr))
	return srv.ListenAndServe()
}
