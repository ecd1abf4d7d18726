package logger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func newObservedStoreLogger(level gormlogger.LogLevel, opts ...StoreLoggerOption) (*StoreLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(zapcore.DebugLevel)
	return NewGormLogger(zap.New(core), level, opts...), recorded
}

func statement(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestStoreLogger_Defaults(t *testing.T) {
	l := NewGormLogger(nil, gormlogger.Warn)

	assert.Equal(t, 200*time.Millisecond, l.slow)
	assert.False(t, l.logNotFound)
	assert.False(t, l.placeholdersOnly)
}

func TestStoreLogger_LogModeCopies(t *testing.T) {
	l := NewGormLogger(zap.NewNop(), gormlogger.Info)

	quiet, ok := l.LogMode(gormlogger.Silent).(*StoreLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Silent, quiet.level)
	assert.Equal(t, gormlogger.Info, l.level)
}

func TestStoreLogger_Messages(t *testing.T) {
	l, recorded := newObservedStoreLogger(gormlogger.Warn)
	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")

	l.Info(ctx, "dropped %d", 1)
	l.Warn(ctx, "pool at %d%%", 90)
	l.Error(ctx, "lost %s", "connection")

	logs := recorded.All()
	require.Len(t, logs, 2)
	assert.Equal(t, "pool at 90%", logs[0].Message)
	assert.Equal(t, "req-1", logs[0].ContextMap()["request_id"])
	assert.Equal(t, zapcore.ErrorLevel, logs[1].Level)
	assert.Equal(t, "store", logs[1].LoggerName)
}

func TestStoreLogger_Trace(t *testing.T) {
	tests := []struct {
		name    string
		level   gormlogger.LogLevel
		opts    []StoreLoggerOption
		begin   time.Duration
		err     error
		wantMsg string
		wantLvl zapcore.Level
	}{
		{"failure", gormlogger.Error, nil, 0, errors.New("deadlock detected"), "Statement failed", zapcore.ErrorLevel},
		{"slow", gormlogger.Warn, []StoreLoggerOption{WithSlowThreshold(time.Millisecond)}, 50 * time.Millisecond, nil, "Slow statement", zapcore.WarnLevel},
		{"ordinary at info", gormlogger.Info, nil, 0, nil, "Statement", zapcore.DebugLevel},
		{"not found when enabled", gormlogger.Error, []StoreLoggerOption{WithRecordNotFound(true)}, 0, gormlogger.ErrRecordNotFound, "Statement failed", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, recorded := newObservedStoreLogger(tt.level, tt.opts...)

			l.Trace(context.Background(), time.Now().Add(-tt.begin), statement("SELECT 1", 1), tt.err)

			logs := recorded.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.wantMsg, logs[0].Message)
			assert.Equal(t, tt.wantLvl, logs[0].Level)
			assert.Equal(t, "SELECT 1", logs[0].ContextMap()["sql"])
		})
	}
}

func TestStoreLogger_TraceSuppressed(t *testing.T) {
	tests := []struct {
		name  string
		level gormlogger.LogLevel
		err   error
	}{
		{"silent", gormlogger.Silent, errors.New("boom")},
		{"ordinary at warn", gormlogger.Warn, nil},
		{"not found by default", gormlogger.Error, gormlogger.ErrRecordNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, recorded := newObservedStoreLogger(tt.level)
			l.Trace(context.Background(), time.Now(), statement("SELECT 1", 0), tt.err)
			assert.Empty(t, recorded.All())
		})
	}
}

func TestStoreLogger_TraceCarriesEventID(t *testing.T) {
	l, recorded := newObservedStoreLogger(gormlogger.Info)
	ctx, _ := WithEventID(context.Background(), zap.NewNop(), "evt-9")

	l.Trace(ctx, time.Now(), statement("UPDATE webhook_events SET status = 'processing'", 1), nil)

	require.Len(t, recorded.All(), 1)
	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "evt-9", fields["event_id"])
	assert.EqualValues(t, 1, fields["rows"])
}

func TestStoreLogger_ParamsFilter(t *testing.T) {
	body := []byte(strings.Repeat("x", 500))

	t.Run("shortens large values", func(t *testing.T) {
		l := NewGormLogger(zap.NewNop(), gormlogger.Info)
		sql, params := l.ParamsFilter(context.Background(), "INSERT ...", "trendyol", body, strings.Repeat("y", 100), 3)

		assert.Equal(t, "INSERT ...", sql)
		require.Len(t, params, 4)
		assert.Equal(t, "trendyol", params[0])
		assert.Equal(t, "<500 bytes>", params[1])
		assert.Len(t, params[2], maxLoggedParam+3)
		assert.Equal(t, 3, params[3])
	})

	t.Run("placeholders only", func(t *testing.T) {
		l := NewGormLogger(zap.NewNop(), gormlogger.Info, WithPlaceholders(true))
		_, params := l.ParamsFilter(context.Background(), "INSERT ...", body)
		assert.Nil(t, params)
	})
}

func TestMapGormLogLevel(t *testing.T) {
	tests := map[string]gormlogger.LogLevel{
		"silent":  gormlogger.Silent,
		"debug":   gormlogger.Info,
		"info":    gormlogger.Warn,
		"warn":    gormlogger.Warn,
		"error":   gormlogger.Error,
		"fatal":   gormlogger.Error,
		"unknown": gormlogger.Warn,
	}
	for in, want := range tests {
		assert.Equal(t, want, MapGormLogLevel(in), in)
	}
}
