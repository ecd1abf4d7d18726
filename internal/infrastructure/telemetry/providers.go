// Package telemetry wires the OpenTelemetry SDK, Prometheus and Pyroscope
// into the gateway and defines the instruments of the ingestion pipeline.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// ServiceVersion is reported on every exported resource.
const ServiceVersion = "1.0.0"

const (
	defaultMetricInterval  = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ExportConfig selects the exported signals and the OTLP collector they
// share. Signals that are off keep the global no-op implementation.
type ExportConfig struct {
	Traces  bool
	Metrics bool
	Logs    bool

	CollectorEndpoint string
	Insecure          bool
	ServiceName       string
	Environment       string

	// SamplingRatio applies to root spans. Child spans follow their parent.
	SamplingRatio  float64
	MetricInterval time.Duration
}

// Providers owns the SDK providers of one process.
type Providers struct {
	cfg    ExportConfig
	traces *sdktrace.TracerProvider
	meters *sdkmetric.MeterProvider
	logs   *sdklog.LoggerProvider
}

// Setup builds the providers enabled in cfg and installs them globally.
// The W3C trace context propagator is installed even with tracing off so
// inbound trace headers still reach downstream calls.
func Setup(ctx context.Context, cfg ExportConfig) (*Providers, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p := &Providers{cfg: cfg}
	if !cfg.Traces && !cfg.Metrics && !cfg.Logs {
		return p, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}
	if err := p.build(ctx, res); err != nil {
		_ = p.Shutdown(context.Background())
		return nil, err
	}
	return p, nil
}

func (p *Providers) build(ctx context.Context, res *resource.Resource) error {
	cfg := p.cfg
	if cfg.Traces {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.CollectorEndpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return fmt.Errorf("telemetry: trace exporter: %w", err)
		}
		p.traces = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRatio))),
		)
		otel.SetTracerProvider(p.traces)
	}

	if cfg.Metrics {
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.CollectorEndpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return fmt.Errorf("telemetry: metric exporter: %w", err)
		}
		interval := cfg.MetricInterval
		if interval <= 0 {
			interval = defaultMetricInterval
		}
		p.meters = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
		)
		otel.SetMeterProvider(p.meters)
	}

	if cfg.Logs {
		opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.CollectorEndpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploggrpc.WithInsecure())
		}
		exp, err := otlploggrpc.New(ctx, opts...)
		if err != nil {
			return fmt.Errorf("telemetry: log exporter: %w", err)
		}
		p.logs = sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		)
		global.SetLoggerProvider(p.logs)
	}
	return nil
}

func newResource(cfg ExportConfig) (*resource.Resource, error) {
	kvs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(ServiceVersion),
	}
	if cfg.Environment != "" {
		kvs = append(kvs, semconv.DeploymentEnvironmentName(cfg.Environment))
	}
	// Schemaless so the merge never conflicts with the SDK's schema URL.
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(kvs...))
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}
	return res, nil
}

// Signals names the exported signals, for logging.
func (p *Providers) Signals() []string {
	var out []string
	if p.traces != nil {
		out = append(out, "traces")
	}
	if p.meters != nil {
		out = append(out, "metrics")
	}
	if p.logs != nil {
		out = append(out, "logs")
	}
	return out
}

// Meter returns a meter of the exporting provider, or of the global one
// when metrics are off.
func (p *Providers) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if p.meters == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return p.meters.Meter(name, opts...)
}

// EnableSpanProfiles tags CPU samples with the active span ID so Pyroscope
// profiles link to traces. It reports false when tracing is off.
func (p *Providers) EnableSpanProfiles() bool {
	if p.traces == nil {
		return false
	}
	otel.SetTracerProvider(otelpyroscope.NewTracerProvider(p.traces))
	return true
}

// ForceFlush exports everything buffered so far.
func (p *Providers) ForceFlush(ctx context.Context) error {
	var errs []error
	if p.traces != nil {
		errs = append(errs, p.traces.ForceFlush(ctx))
	}
	if p.meters != nil {
		errs = append(errs, p.meters.ForceFlush(ctx))
	}
	if p.logs != nil {
		errs = append(errs, p.logs.ForceFlush(ctx))
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops every provider. Logs go last so shutdown
// messages of the other providers are still exported.
func (p *Providers) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
	defer cancel()

	var errs []error
	if p.traces != nil {
		if err := p.traces.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
		p.traces = nil
	}
	if p.meters != nil {
		if err := p.meters.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
		p.meters = nil
	}
	if p.logs != nil {
		if err := p.logs.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logger provider: %w", err))
		}
		p.logs = nil
	}
	return errors.Join(errs...)
}
