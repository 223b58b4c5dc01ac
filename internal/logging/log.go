// Package logging builds the zap loggers used for diagnostics. Logs go to
// stderr so stdout stays reserved for reports and generated orders.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tradeengine/orderload/internal/metrics"
)

// New returns a JSON logger at level writing to stderr.
func New(level string) (*zap.Logger, error) {
	return NewWithWriter(level, os.Stderr)
}

// NewWithWriter returns a JSON logger at level writing to w.
func NewWithWriter(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(w), lvl)
	return zap.New(core), nil
}

// ParseLevel maps a level name to a zap level. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", level)
	}
	return lvl, nil
}

// FailureLogger writes one warning per failed submission.
type FailureLogger struct {
	log *zap.Logger
}

// NewFailureLogger wraps log. A nil log discards everything.
func NewFailureLogger(log *zap.Logger) *FailureLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &FailureLogger{log: log}
}

// LogFailure records the idempotency key, status, latency, and cause of a
// failed sample.
func (l *FailureLogger) LogFailure(key string, s metrics.Sample) {
	fields := []zap.Field{
		zap.String("idempotency_key", key),
		zap.Duration("latency", s.Latency),
	}
	if s.StatusCode > 0 {
		fields = append(fields, zap.Int("status_code", s.StatusCode))
	}
	if s.Err != nil {
		fields = append(fields, zap.Error(s.Err))
	}
	l.log.Warn("order submission failed", fields...)
}
