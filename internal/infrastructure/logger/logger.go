// Package logger builds the zap loggers of the gateway and carries request,
// sender and event identifiers through contexts, gin and GORM.
package logger

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultTimeFormat is used when Config.TimeFormat is empty.
const DefaultTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config selects level, encoding and destination.
type Config struct {
	Level string
	// Format is "json" or "console".
	Format string
	// Output is "stdout", "stderr" or a file path opened for append.
	Output     string
	TimeFormat string
}

// New builds a logger from cfg. Entries are also written to every tee core,
// which apply their own level filtering.
func New(cfg *Config, tee ...zapcore.Core) (*zap.Logger, error) {
	sink, err := openSink(cfg.Output)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(newEncoder(cfg), sink, ParseLevel(cfg.Level))
	if len(tee) > 0 {
		core = zapcore.NewTee(append([]zapcore.Core{core}, tee...)...)
	}
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// ParseLevel accepts zap level names in any case plus "warning". Unknown
// names mean info.
func ParseLevel(s string) zapcore.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return zapcore.WarnLevel
	}
	lvl, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func newEncoder(cfg *Config) zapcore.Encoder {
	layout := cfg.TimeFormat
	if layout == "" {
		layout = DefaultTimeFormat
	}
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "time"
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(layout)
	ec.EncodeDuration = zapcore.MillisDurationEncoder

	if cfg.Format == "console" {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

func openSink(output string) (zapcore.WriteSyncer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}
	f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open %s: %w", output, err)
	}
	return zapcore.AddSync(f), nil
}

// Sync flushes buffered entries. Terminals reject fsync with EINVAL or
// ENOTTY, which is not a lost entry.
func Sync(l *zap.Logger) error {
	err := l.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

// Classes of rejected deliveries, written as the event_class field.
const (
	ClassSecurity   = "security"
	ClassValidation = "validation"
)

// Security logs a delivery rejected by signature or replay checks.
func Security(l *zap.Logger, msg string, fields ...zap.Field) {
	l.Warn(msg, append(fields, zap.String("event_class", ClassSecurity))...)
}

// Validation logs a delivery rejected for its content.
func Validation(l *zap.Logger, msg string, fields ...zap.Field) {
	l.Info(msg, append(fields, zap.String("event_class", ClassValidation))...)
}
