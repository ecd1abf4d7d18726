package telemetry

import (
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.uber.org/zap/zapcore"
)

// ZapCore returns a core that forwards entries at or above min to the OTLP
// log pipeline. Tee it with the console core. It is a no-op core while log
// export is off.
func (p *Providers) ZapCore(min zapcore.Level) zapcore.Core {
	if p == nil || p.logs == nil {
		return zapcore.NewNopCore()
	}
	return &minLevelCore{
		Core: otelzap.NewCore(p.cfg.ServiceName, otelzap.WithLoggerProvider(p.logs)),
		min:  min,
	}
}

// minLevelCore drops entries below min. otelzap accepts every level on
// its own.
type minLevelCore struct {
	zapcore.Core
	min zapcore.Level
}

func (c *minLevelCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && c.Core.Enabled(lvl)
}

func (c *minLevelCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if e.Level < c.min {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *minLevelCore) With(fields []zapcore.Field) zapcore.Core {
	return &minLevelCore{Core: c.Core.With(fields), min: c.min}
}
