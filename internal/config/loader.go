package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Parse parses raw arguments for mode on a fresh flag set and loads the
// resulting Config. Positional arguments follow the flag rules of Load.
func (l Loader) Parse(mode Mode, args []string) (*Config, error) {
	cmd := newFlagCommand(mode)
	fs := cmd.Flags()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}
	if helpFlag := fs.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}
	return l.Load(mode, fs, fs.Args())
}

// Load builds a Config for mode from an already parsed flag set and the
// positional arguments:
//
//	generate [count]
//	load     [host] [port] [total] [concurrency]
//	rate     [host] [port]
//
// Precedence, lowest first: built-in defaults, config file, flags, positionals.
func (Loader) Load(mode Mode, fs *pflag.FlagSet, args []string) (*Config, error) {
	cfg := defaults(mode)

	configPath := ""
	if f := fs.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}
	if configPath != "" {
		cfgViper := viper.New()
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
		if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
			return nil, err
		}
		cfg.ConfigFile = configPath
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		return nil, err
	}
	if err := applyPositionals(cfg, args); err != nil {
		return nil, err
	}

	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	if cfg.Backlog == "" {
		cfg.Backlog = BacklogDrop
	}
	if cfg.Arrival.Model == "" {
		cfg.Arrival.Model = ArrivalModelUniform
	}
	return cfg, nil
}

func defaults(mode Mode) *Config {
	return &Config{
		Mode: mode,
		Target: TargetConfig{
			Scheme: "http",
			Host:   DefaultHost,
			Port:   DefaultPort,
			Path:   "/orders",
		},
		Headers:             map[string]string{},
		Timeout:             30 * time.Second,
		KeyPrefix:           DefaultKeyPrefix,
		Count:               DefaultCount,
		Total:               DefaultTotal,
		Concurrency:         DefaultConcurrency,
		Rate:                DefaultRate,
		Duration:            DefaultDuration,
		PreAllocatedCallers: DefaultPreAllocatedCallers,
		MaxCallers:          DefaultMaxCallers,
		Backlog:             BacklogDrop,
		GracefulStop:        DefaultGracefulStop,
		Arrival:             ArrivalConfig{Model: ArrivalModelUniform},
		LogLevel:            "info",
		Tracing: TracingConfig{
			Protocol:    "grpc",
			ServiceName: "orderload",
			SampleRate:  1.0,
		},
	}
}

func applyPositionals(cfg *Config, args []string) error {
	var names []string
	switch cfg.Mode {
	case ModeGenerate:
		names = []string{"count"}
	case ModeClosedLoop:
		names = []string{"host", "port", "total", "concurrency"}
	case ModeOpenLoop:
		names = []string{"host", "port"}
	default:
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	if len(args) > len(names) {
		return fmt.Errorf("%s: expected at most %d arguments, got %d", cfg.Mode, len(names), len(args))
	}

	for i, arg := range args {
		name := names[i]
		if name == "host" {
			cfg.Target.Host = strings.TrimSpace(arg)
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			return fmt.Errorf("%s must be an integer: %q", name, arg)
		}
		switch name {
		case "count":
			cfg.Count = n
		case "port":
			cfg.Target.Port = n
		case "total":
			cfg.Total = n
		case "concurrency":
			cfg.Concurrency = n
		}
	}
	return nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "target"); ok {
		if err := applyTarget(&cfg.Target, raw); err != nil {
			return fmt.Errorf("target: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "host"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("host: %w", err)
		}
		cfg.Target.Host = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "port"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		cfg.Target.Port = val
	}

	if raw, ok := lookupSetting(settings, "apikey", "api_key", "api-key"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("apiKey: %w", err)
		}
		cfg.APIKey = val
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			cfg.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	durations := []struct {
		dst  *time.Duration
		keys []string
	}{
		{&cfg.Timeout, []string{"timeout"}},
		{&cfg.Duration, []string{"duration"}},
		{&cfg.GracefulStop, []string{"gracefulstop", "graceful_stop", "graceful-stop"}},
	}
	for _, d := range durations {
		if raw, ok := lookupSetting(settings, d.keys...); ok {
			val, err := asDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", d.keys[0], err)
			}
			*d.dst = val
		}
	}

	ints := []struct {
		dst  *int
		keys []string
	}{
		{&cfg.Retries, []string{"retries"}},
		{&cfg.ExpectStatus, []string{"expectstatus", "expect_status", "expect-status"}},
		{&cfg.Count, []string{"count"}},
		{&cfg.Total, []string{"total"}},
		{&cfg.Concurrency, []string{"concurrency"}},
		{&cfg.Rate, []string{"rate"}},
		{&cfg.PreAllocatedCallers, []string{"preallocatedcallers", "pre_allocated_callers", "pre-allocated-callers"}},
		{&cfg.MaxCallers, []string{"maxcallers", "max_callers", "max-callers"}},
	}
	for _, i := range ints {
		if raw, ok := lookupSetting(settings, i.keys...); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", i.keys[0], err)
			}
			*i.dst = val
		}
	}

	bools := []struct {
		dst  *bool
		keys []string
	}{
		{&cfg.RunScopedKeys, []string{"runscopedkeys", "run_scoped_keys", "run-scoped-keys"}},
		{&cfg.JSONOutput, []string{"jsonoutput", "json_output", "json-output"}},
		{&cfg.YAMLOutput, []string{"yamloutput", "yaml_output", "yaml-output"}},
		{&cfg.LogErrors, []string{"logerrors", "log_errors", "log-errors"}},
		{&cfg.Progress, []string{"progress"}},
	}
	for _, b := range bools {
		if raw, ok := lookupSetting(settings, b.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", b.keys[0], err)
			}
			*b.dst = val
		}
	}

	strs := []struct {
		dst  *string
		keys []string
	}{
		{&cfg.Instrument, []string{"instrument"}},
		{&cfg.KeyPrefix, []string{"keyprefix", "key_prefix", "key-prefix"}},
		{&cfg.OrdersFile, []string{"orders", "ordersfile", "orders_file"}},
		{&cfg.LogLevel, []string{"loglevel", "log_level", "log-level"}},
		{&cfg.MetricsAddr, []string{"metricsaddr", "metrics_addr", "metrics-addr"}},
	}
	for _, s := range strs {
		if raw, ok := lookupSetting(settings, s.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = strings.TrimSpace(val)
		}
	}

	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt64(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed = val
	}

	if raw, ok := lookupSetting(settings, "backlog"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("backlog: %w", err)
		}
		cfg.Backlog = BacklogPolicy(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "loadpatterns", "load_patterns", "load-patterns"); ok {
		patterns, err := parseLoadPatterns(raw)
		if err != nil {
			return fmt.Errorf("loadPatterns: %w", err)
		}
		cfg.LoadPatterns = patterns
	}

	if raw, ok := lookupSetting(settings, "arrival", "arrivalmodel", "arrival_model", "arrival-model"); ok {
		arrival, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
		if arrival.Model != "" {
			cfg.Arrival = arrival
		}
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracing(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

// applyTarget accepts either a map with scheme/host/port/path or a
// "host:port" string.
func applyTarget(t *TargetConfig, value interface{}) error {
	if s, ok := value.(string); ok {
		host, port, found := strings.Cut(strings.TrimSpace(s), ":")
		t.Host = host
		if found {
			p, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("port: %w", err)
			}
			t.Port = p
		}
		return nil
	}

	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(entry, "scheme"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("scheme: %w", err)
		}
		t.Scheme = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "host"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("host: %w", err)
		}
		t.Host = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "port"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		t.Port = val
	}
	if raw, ok := lookupSetting(entry, "path"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("path: %w", err)
		}
		t.Path = strings.TrimSpace(val)
	}
	return nil
}

func applyTracing(t *TracingConfig, value interface{}) error {
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		t.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		t.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = val
	}
	if raw, ok := lookupSetting(entry, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = val
	}
	if raw, ok := lookupSetting(entry, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	return nil
}

func parseLoadPatterns(value interface{}) ([]LoadPattern, error) {
	if value == nil {
		return nil, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	patterns := make([]LoadPattern, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		pattern, err := buildLoadPattern(entry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		patterns = append(patterns, pattern)
	}
	return patterns, nil
}

func buildLoadPattern(settings map[string]interface{}) (LoadPattern, error) {
	var pattern LoadPattern
	if raw, ok := lookupSetting(settings, "name"); ok {
		val, err := asString(raw)
		if err != nil {
			return LoadPattern{}, fmt.Errorf("name: %w", err)
		}
		pattern.Name = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return LoadPattern{}, fmt.Errorf("type: %w", err)
		}
		pattern.Type = LoadPatternType(strings.ToLower(strings.TrimSpace(val)))
	}
	rates := []struct {
		dst   *int
		label string
		keys  []string
	}{
		{&pattern.FromRPS, "from_rps", []string{"fromrps", "from_rps", "from-rps"}},
		{&pattern.ToRPS, "to_rps", []string{"torps", "to_rps", "to-rps"}},
		{&pattern.RPS, "rps", []string{"rps"}},
	}
	for _, r := range rates {
		if raw, ok := lookupSetting(settings, r.keys...); ok {
			val, err := asInt(raw)
			if err != nil {
				return LoadPattern{}, fmt.Errorf("%s: %w", r.label, err)
			}
			*r.dst = val
		}
	}
	if raw, ok := lookupSetting(settings, "duration"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return LoadPattern{}, fmt.Errorf("duration: %w", err)
		}
		pattern.Duration = dur
	}
	if raw, ok := lookupSetting(settings, "steps"); ok {
		steps, err := parseLoadSteps(raw)
		if err != nil {
			return LoadPattern{}, fmt.Errorf("steps: %w", err)
		}
		pattern.Steps = steps
	}
	return pattern, nil
}

func parseLoadSteps(value interface{}) ([]LoadStep, error) {
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	steps := make([]LoadStep, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		var step LoadStep
		if raw, ok := lookupSetting(entry, "rps"); ok {
			val, err := asInt(raw)
			if err != nil {
				return nil, fmt.Errorf("index %d rps: %w", idx, err)
			}
			step.RPS = val
		}
		if raw, ok := lookupSetting(entry, "duration"); ok {
			dur, err := asDuration(raw)
			if err != nil {
				return nil, fmt.Errorf("index %d duration: %w", idx, err)
			}
			step.Duration = dur
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseArrival(value interface{}) (ArrivalConfig, error) {
	if value == nil {
		return ArrivalConfig{}, nil
	}
	if s, ok := value.(string); ok {
		return ArrivalConfig{Model: ArrivalModel(strings.ToLower(strings.TrimSpace(s)))}, nil
	}
	entry, err := toStringKeyMap(value)
	if err != nil {
		return ArrivalConfig{}, err
	}
	raw, ok := lookupSetting(entry, "model")
	if !ok {
		return ArrivalConfig{}, fmt.Errorf("model field is required")
	}
	val, err := asString(raw)
	if err != nil {
		return ArrivalConfig{}, fmt.Errorf("model: %w", err)
	}
	return ArrivalConfig{Model: ArrivalModel(strings.ToLower(strings.TrimSpace(val)))}, nil
}
