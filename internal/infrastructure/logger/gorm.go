package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// maxLoggedParam is the longest byte or string parameter written into a
// logged statement. Longer values are replaced by their size so raw webhook
// bodies never reach the log.
const maxLoggedParam = 64

// StoreLogger adapts zap to GORM's logger. Statements are logged at debug,
// slow statements at warn and failures at error, each tagged with the
// request and event IDs carried by the context.
type StoreLogger struct {
	log              *zap.Logger
	level            gormlogger.LogLevel
	slow             time.Duration
	logNotFound      bool
	placeholdersOnly bool
}

// StoreLoggerOption configures a StoreLogger.
type StoreLoggerOption func(*StoreLogger)

// WithSlowThreshold sets the duration above which a statement is slow.
// Zero disables slow statement logging.
func WithSlowThreshold(d time.Duration) StoreLoggerOption {
	return func(l *StoreLogger) { l.slow = d }
}

// WithRecordNotFound logs gorm.ErrRecordNotFound as an error. Lookups of
// unknown event IDs are routine, so it is off by default.
func WithRecordNotFound(enabled bool) StoreLoggerOption {
	return func(l *StoreLogger) { l.logNotFound = enabled }
}

// WithPlaceholders logs statements with ? placeholders and no values.
func WithPlaceholders(enabled bool) StoreLoggerOption {
	return func(l *StoreLogger) { l.placeholdersOnly = enabled }
}

var (
	_ gormlogger.Interface = (*StoreLogger)(nil)
	_ gorm.ParamsFilter    = (*StoreLogger)(nil)
)

// NewGormLogger creates the store logger under the "store" name.
func NewGormLogger(log *zap.Logger, level gormlogger.LogLevel, opts ...StoreLoggerOption) *StoreLogger {
	if log == nil {
		log = zap.NewNop()
	}
	l := &StoreLogger{
		log:   log.Named("store"),
		level: level,
		slow:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogMode returns a copy at level.
func (l *StoreLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *StoreLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.log.Info(fmt.Sprintf(msg, data...), ContextFields(ctx)...)
	}
}

func (l *StoreLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(fmt.Sprintf(msg, data...), ContextFields(ctx)...)
	}
}

func (l *StoreLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.log.Error(fmt.Sprintf(msg, data...), ContextFields(ctx)...)
	}
}

// ParamsFilter shortens oversized values before GORM renders the statement.
func (l *StoreLogger) ParamsFilter(_ context.Context, sql string, params ...any) (string, []any) {
	if l.placeholdersOnly {
		return sql, nil
	}
	out := make([]any, len(params))
	for i, p := range params {
		switch v := p.(type) {
		case []byte:
			if len(v) > maxLoggedParam {
				p = fmt.Sprintf("<%d bytes>", len(v))
			}
		case string:
			if len(v) > maxLoggedParam {
				p = v[:maxLoggedParam] + "..."
			}
		}
		out[i] = p
	}
	return sql, out
}

// Trace logs one executed statement.
func (l *StoreLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	slow := l.slow > 0 && elapsed > l.slow

	switch {
	case err != nil && l.level >= gormlogger.Error:
		if errors.Is(err, gormlogger.ErrRecordNotFound) && !l.logNotFound {
			return
		}
		l.log.Error("Statement failed", l.fields(ctx, elapsed, fc, zap.Error(err))...)
	case slow && l.level >= gormlogger.Warn:
		l.log.Warn("Slow statement", l.fields(ctx, elapsed, fc, zap.Duration("threshold", l.slow))...)
	case l.level >= gormlogger.Info:
		l.log.Debug("Statement", l.fields(ctx, elapsed, fc)...)
	}
}

func (l *StoreLogger) fields(ctx context.Context, elapsed time.Duration, fc func() (string, int64), extra ...zap.Field) []zap.Field {
	sql, rows := fc()
	fields := append(ContextFields(ctx),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
		zap.Duration("elapsed", elapsed),
	)
	return append(fields, extra...)
}

// ContextFields returns the request, event and trace IDs found in ctx.
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if id := RequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := EventID(ctx); id != "" {
		fields = append(fields, zap.String("event_id", id))
	}
	if id := TraceID(ctx); id != "" {
		fields = append(fields, zap.String("trace_id", id))
	}
	return fields
}

// MapGormLogLevel maps the service log level onto GORM's. Statements are
// only traced when the service runs at debug.
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "debug":
		return gormlogger.Info
	case "error", "fatal":
		return gormlogger.Error
	default:
		return gormlogger.Warn
	}
}
