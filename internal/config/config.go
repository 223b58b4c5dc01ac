package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Mode selects which driver a Config is loaded for.
type Mode string

const (
	ModeGenerate   Mode = "generate"
	ModeClosedLoop Mode = "load"
	ModeOpenLoop   Mode = "rate"
)

type Config struct {
	Mode          Mode              `mapstructure:"-"`
	Target        TargetConfig      `mapstructure:"target"`
	APIKey        string            `mapstructure:"api_key"`
	Headers       map[string]string `mapstructure:"headers"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	Retries       int               `mapstructure:"retries"`
	ExpectStatus  int               `mapstructure:"expect_status"`
	Seed          int64             `mapstructure:"seed"`
	Instrument    string            `mapstructure:"instrument"`
	KeyPrefix     string            `mapstructure:"key_prefix"`
	RunScopedKeys bool              `mapstructure:"run_scoped_keys"`
	OrdersFile    string            `mapstructure:"orders"`

	// Fixture generation.
	Count int `mapstructure:"count"`

	// Closed loop.
	Total       int `mapstructure:"total"`
	Concurrency int `mapstructure:"concurrency"`

	// Open loop.
	Rate                int           `mapstructure:"rate"`
	Duration            time.Duration `mapstructure:"duration"`
	PreAllocatedCallers int           `mapstructure:"pre_allocated_callers"`
	MaxCallers          int           `mapstructure:"max_callers"`
	Backlog             BacklogPolicy `mapstructure:"backlog"`
	GracefulStop        time.Duration `mapstructure:"graceful_stop"`
	Arrival             ArrivalConfig `mapstructure:"arrival"`
	LoadPatterns        []LoadPattern `mapstructure:"load_patterns"`

	JSONOutput  bool          `mapstructure:"json_output"`
	YAMLOutput  bool          `mapstructure:"yaml_output"`
	LogErrors   bool          `mapstructure:"log_errors"`
	LogLevel    string        `mapstructure:"log_level"`
	Progress    bool          `mapstructure:"progress"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
	Thresholds  []string      `mapstructure:"thresholds"`
	Tracing     TracingConfig `mapstructure:"tracing"`
	ConfigFile  string        `mapstructure:"-"`
}

// TargetConfig locates the order-intake endpoint.
type TargetConfig struct {
	Scheme string `mapstructure:"scheme"`
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Path   string `mapstructure:"path"`
}

// URL renders the full endpoint URL.
func (t TargetConfig) URL() string {
	scheme := t.Scheme
	if scheme == "" {
		scheme = "http"
	}
	path := t.Path
	if path == "" {
		path = "/orders"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(t.Host, strconv.Itoa(t.Port)),
		Path:   path,
	}
	return u.String()
}

// BacklogPolicy decides what happens to an open-loop arrival when every
// caller is busy and no more may be spawned.
type BacklogPolicy string

const (
	BacklogDrop  BacklogPolicy = "drop"
	BacklogQueue BacklogPolicy = "queue"
)

type LoadPatternType string

const (
	LoadPatternTypeRamp  LoadPatternType = "ramp"
	LoadPatternTypeStep  LoadPatternType = "step"
	LoadPatternTypeSpike LoadPatternType = "spike"
)

type LoadPattern struct {
	Name     string          `mapstructure:"name"`
	Type     LoadPatternType `mapstructure:"type"`
	FromRPS  int             `mapstructure:"from_rps"`
	ToRPS    int             `mapstructure:"to_rps"`
	Duration time.Duration   `mapstructure:"duration"`
	Steps    []LoadStep      `mapstructure:"steps"`
	RPS      int             `mapstructure:"rps"`
}

type LoadStep struct {
	RPS      int           `mapstructure:"rps"`
	Duration time.Duration `mapstructure:"duration"`
}

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model"`
}

// TracingConfig configures OpenTelemetry export for order submissions.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   bool    `mapstructure:"propagate"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// Enabled reports whether spans should be produced at all.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || t.Propagate
}

// ShouldPropagate reports whether W3C trace headers are sent to the target.
func (t TracingConfig) ShouldPropagate() bool {
	return t.Propagate
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if c.Mode == ModeGenerate {
		if c.Count < 0 {
			issues = append(issues, "count must be >= 0")
		}
		if len(issues) > 0 {
			return ValidationError{issues: issues}
		}
		return nil
	}

	issues = append(issues, validateTarget(c.Target)...)

	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.Retries < 0 {
		issues = append(issues, "retries must be >= 0")
	}
	if c.ExpectStatus != 0 && (c.ExpectStatus < 100 || c.ExpectStatus > 599) {
		issues = append(issues, fmt.Sprintf("expect_status %d is not an HTTP status code", c.ExpectStatus))
	}
	if c.JSONOutput && c.YAMLOutput {
		issues = append(issues, "json-output and yaml-output are mutually exclusive")
	}
	if strings.TrimSpace(c.KeyPrefix) == "" && c.Mode == ModeClosedLoop {
		issues = append(issues, "key_prefix must not be empty")
	}
	for key, value := range c.Headers {
		if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "\r\n") || strings.ContainsAny(value, "\r\n") {
			issues = append(issues, fmt.Sprintf("invalid header %q", key))
		}
	}

	switch c.Mode {
	case ModeClosedLoop:
		if c.Total < 0 {
			issues = append(issues, "total must be >= 0")
		}
		if c.Concurrency < 1 {
			issues = append(issues, "concurrency must be >= 1")
		}
	case ModeOpenLoop:
		if c.Rate <= 0 && len(c.LoadPatterns) == 0 {
			issues = append(issues, "rate must be > 0")
		}
		if c.Duration <= 0 && len(c.LoadPatterns) == 0 {
			issues = append(issues, "duration must be > 0")
		}
		if c.PreAllocatedCallers < 1 {
			issues = append(issues, "pre_allocated_callers must be >= 1")
		}
		if c.MaxCallers != 0 && c.MaxCallers < c.PreAllocatedCallers {
			issues = append(issues, "max_callers must be >= pre_allocated_callers")
		}
		if c.GracefulStop < 0 {
			issues = append(issues, "graceful_stop must be >= 0")
		}
		switch c.Backlog {
		case "", BacklogDrop, BacklogQueue:
		default:
			issues = append(issues, fmt.Sprintf("backlog policy %q is not supported (use drop or queue)", c.Backlog))
		}
		issues = append(issues, validateArrivalConfig(c.Arrival)...)
		issues = append(issues, validateLoadPatterns(c.LoadPatterns)...)
	default:
		issues = append(issues, fmt.Sprintf("unknown mode %q", c.Mode))
	}

	if p := strings.ToLower(c.Tracing.Protocol); p != "" && p != "grpc" && p != "http" {
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", c.Tracing.Protocol))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, "tracing: sample_rate must be between 0.0 and 1.0")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTarget(t TargetConfig) []string {
	var issues []string
	if strings.TrimSpace(t.Host) == "" {
		issues = append(issues, "target host is required")
	}
	if t.Port < 1 || t.Port > 65535 {
		issues = append(issues, fmt.Sprintf("target port %d out of range", t.Port))
	}
	switch strings.ToLower(t.Scheme) {
	case "", "http", "https":
	default:
		issues = append(issues, fmt.Sprintf("target scheme %q is not supported", t.Scheme))
	}
	return issues
}

func validateArrivalConfig(arr ArrivalConfig) []string {
	model := arr.Model
	if model == "" {
		model = ArrivalModelUniform
	}
	switch model {
	case ArrivalModelUniform, ArrivalModelPoisson:
		return nil
	default:
		return []string{fmt.Sprintf("arrival model %q is not supported", model)}
	}
}

func validateLoadPatterns(patterns []LoadPattern) []string {
	var issues []string
	for idx, pattern := range patterns {
		typeLabel := strings.TrimSpace(string(pattern.Type))
		if typeLabel == "" {
			issues = append(issues, fmt.Sprintf("loadPatterns[%d]: type is required", idx))
			continue
		}
		switch LoadPatternType(strings.ToLower(typeLabel)) {
		case LoadPatternTypeRamp:
			if pattern.Duration <= 0 {
				issues = append(issues, fmt.Sprintf("loadPatterns[%d]: duration must be > 0 for ramp", idx))
			}
			if pattern.FromRPS < 0 || pattern.ToRPS < 0 {
				issues = append(issues, fmt.Sprintf("loadPatterns[%d]: from_rps and to_rps must be >= 0", idx))
			}
		case LoadPatternTypeStep:
			if len(pattern.Steps) == 0 {
				issues = append(issues, fmt.Sprintf("loadPatterns[%d]: steps are required for step pattern", idx))
			}
			for stepIdx, step := range pattern.Steps {
				if step.RPS < 0 {
					issues = append(issues, fmt.Sprintf("loadPatterns[%d].steps[%d]: rps must be >= 0", idx, stepIdx))
				}
				if step.Duration <= 0 {
					issues = append(issues, fmt.Sprintf("loadPatterns[%d].steps[%d]: duration must be > 0", idx, stepIdx))
				}
			}
		case LoadPatternTypeSpike:
			if pattern.RPS <= 0 {
				issues = append(issues, fmt.Sprintf("loadPatterns[%d]: rps must be > 0 for spike", idx))
			}
			if pattern.Duration <= 0 {
				issues = append(issues, fmt.Sprintf("loadPatterns[%d]: duration must be > 0 for spike", idx))
			}
		default:
			issues = append(issues, fmt.Sprintf("loadPatterns[%d]: unsupported type %q", idx, pattern.Type))
		}
	}
	return issues
}
