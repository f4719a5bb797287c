// Package telemetry installs the OpenTelemetry providers for reviewd.
//
// Metrics publish through the prometheus registry that backs the
// daemon's /metrics listener, so instrument values are always
// scrapeable. Trace export over OTLP is optional and enabled by
// configuring a collector endpoint.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"
)

// Config holds telemetry settings.
type Config struct {
	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`

	// TraceEndpoint is an OTLP gRPC collector address such as
	// "localhost:4317". Empty disables trace export.
	TraceEndpoint string `koanf:"trace_endpoint"`

	// Insecure dials the trace collector without TLS.
	Insecure bool `koanf:"insecure"`

	// SamplingRate is the trace sampling ratio in [0,1].
	SamplingRate float64 `koanf:"sampling_rate"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DefaultConfig returns telemetry defaults. Trace export is off until
// a collector endpoint is configured.
func DefaultConfig() Config {
	return Config{
		ServiceName:     "reviewd",
		ServiceVersion:  "dev",
		SamplingRate:    1.0,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate must be between 0 and 1, got %f", c.SamplingRate)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	return nil
}

// Option configures provider construction.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
}

// WithRegisterer overrides the prometheus registerer the metric
// exporter publishes to. The default registerer serves /metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// Telemetry owns the installed trace and metric providers and their
// graceful shutdown.
type Telemetry struct {
	cfg    Config
	logger *zap.Logger

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// New builds the providers and installs them as the otel globals, so
// every otel.Tracer and otel.Meter call in the process records through
// them. A failed trace exporter degrades to metrics-only rather than
// failing startup.
func New(ctx context.Context, cfg Config, logger *zap.Logger, opts ...Option) (*Telemetry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	t := &Telemetry{
		cfg:    cfg,
		logger: logger.Named("telemetry"),
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(o.registerer))
	if err != nil {
		return nil, fmt.Errorf("create prometheus metric exporter: %w", err)
	}
	t.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(t.meterProvider)

	if cfg.TraceEndpoint != "" {
		if err := t.initTraces(ctx, res); err != nil {
			t.logger.Warn("trace export unavailable, continuing with metrics only",
				zap.String("endpoint", cfg.TraceEndpoint),
				zap.Error(err),
			)
		}
	}

	return t, nil
}

func (t *Telemetry) initTraces(ctx context.Context, res *resource.Resource) error {
	traceOpts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(t.cfg.TraceEndpoint),
	}
	if t.cfg.Insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return fmt.Errorf("create trace exporter: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case t.cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case t.cfg.SamplingRate <= 0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(t.cfg.SamplingRate)
	}

	t.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(t.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return nil
}

// Shutdown flushes pending telemetry and stops the providers. The
// configured timeout applies when the context has no deadline.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
