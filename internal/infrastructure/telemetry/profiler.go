package telemetry

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// Profile label keys. Values must stay low cardinality, so never an event
// or request id.
const (
	LabelHandler = "handler"
	LabelSender  = "sender"
	LabelRoute   = "route"
)

// maxLabelValue caps profile label values.
const maxLabelValue = 128

// ProfilerConfig configures continuous profiling with Pyroscope.
type ProfilerConfig struct {
	Enabled         bool
	ServerAddress   string
	ApplicationName string
	// Tags are attached to every profile next to hostname and pod.
	Tags map[string]string
	// ProfileTypes defaults to CPU, allocations, in-use heap and goroutines.
	ProfileTypes []pyroscope.ProfileType
}

var defaultProfileTypes = []pyroscope.ProfileType{
	pyroscope.ProfileCPU,
	pyroscope.ProfileAllocSpace,
	pyroscope.ProfileInuseSpace,
	pyroscope.ProfileGoroutines,
}

// Profiler is a running Pyroscope session. The zero value, returned when
// profiling is off, does nothing.
type Profiler struct {
	session *pyroscope.Profiler
	log     *zap.Logger
	stop    sync.Once
}

// StartProfiler starts uploading profiles when cfg.Enabled.
func StartProfiler(cfg ProfilerConfig, log *zap.Logger) (*Profiler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.Enabled {
		return &Profiler{log: log}, nil
	}
	switch {
	case cfg.ServerAddress == "":
		return nil, errors.New("profiler: server address is required")
	case cfg.ApplicationName == "":
		return nil, errors.New("profiler: application name is required")
	}

	types := cfg.ProfileTypes
	if len(types) == 0 {
		types = defaultProfileTypes
	}
	tags := map[string]string{}
	for k, v := range cfg.Tags {
		tags[k] = v
	}
	if h, err := os.Hostname(); err == nil {
		tags["hostname"] = h
	}
	if pod := os.Getenv("POD_NAME"); pod != "" {
		tags["pod"] = pod
	}

	session, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Logger:          pyroscopeLogger{log.Named("pyroscope").Sugar()},
		Tags:            tags,
		ProfileTypes:    types,
	})
	if err != nil {
		return nil, err
	}
	log.Info("Profiler started",
		zap.String("server_address", cfg.ServerAddress),
		zap.String("application", cfg.ApplicationName),
	)
	return &Profiler{session: session, log: log}, nil
}

// Running reports whether profiles are being uploaded.
func (p *Profiler) Running() bool {
	return p != nil && p.session != nil
}

// Stop flushes and ends the session. Later calls return nil.
func (p *Profiler) Stop() error {
	if !p.Running() {
		return nil
	}
	var err error
	p.stop.Do(func() {
		err = p.session.Stop()
		p.log.Info("Profiler stopped", zap.Error(err))
	})
	return err
}

// Labeled runs fn with pprof labels built from key/value pairs. Pairs with
// an empty key or value are dropped, long values truncated.
func Labeled(ctx context.Context, fn func(context.Context), kv ...string) {
	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		k, v := kv[i], kv[i+1]
		if k == "" || v == "" {
			continue
		}
		if len(v) > maxLabelValue {
			v = v[:maxLabelValue]
		}
		pairs = append(pairs, k, v)
	}
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

type pyroscopeLogger struct{ s *zap.SugaredLogger }

func (l pyroscopeLogger) Infof(format string, args ...any)  { l.s.Debugf(format, args...) }
func (l pyroscopeLogger) Debugf(format string, args ...any) { l.s.Debugf(format, args...) }
func (l pyroscopeLogger) Errorf(format string, args ...any) { l.s.Errorf(format, args...) }
