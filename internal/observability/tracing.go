// Package observability exports gateway spans over OTLP. The tracing
// module installs a global tracer provider; when no collector endpoint is
// configured the module stays passive and span creation is a no-op.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/livecap/livecap/internal/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Module{})
}

var (
	_ core.Configurable = (*Module)(nil)
	_ core.Provisioner  = (*Module)(nil)
	_ core.Starter      = (*Module)(nil)
	_ core.Stopper      = (*Module)(nil)
)

// Config controls trace export.
type Config struct {
	// Endpoint is the OTLP/HTTP collector host:port. Empty disables export.
	Endpoint string `yaml:"endpoint"`

	// Insecure uses plain HTTP to the collector.
	Insecure bool `yaml:"insecure"`

	// SampleRatio samples a fraction of traces. Zero means sample
	// everything.
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName overrides the reported service.name.
	ServiceName string `yaml:"service_name"`
}

func (c *Config) defaults() {
	if c.ServiceName == "" {
		c.ServiceName = "livecap"
	}
}

// Module owns the tracer provider lifecycle.
type Module struct {
	config   Config
	logger   *slog.Logger
	provider *sdktrace.TracerProvider
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "observability.tracing",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return fmt.Errorf("tracing: decode config: %w", err)
	}
	m.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.config.defaults()
	m.logger = ctx.Logger
	return nil
}

// Start implements core.Starter. The exporter dials lazily, so start is
// fast even when the collector is down.
func (m *Module) Start() error {
	if m.config.Endpoint == "" {
		m.logger.Debug("tracing disabled, no collector endpoint configured")
		return nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(m.config.Endpoint)}
	if m.config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("tracing: create exporter: %w", err)
	}

	res, err := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(m.config.ServiceName),
	))
	if err != nil {
		return fmt.Errorf("tracing: build resource: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if m.config.SampleRatio > 0 && m.config.SampleRatio < 1 {
		sampler = sdktrace.TraceIDRatioBased(m.config.SampleRatio)
	}

	m.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(m.provider)

	m.logger.Info("tracing enabled", "endpoint", m.config.Endpoint)
	return nil
}

// Stop implements core.Stopper. Flushes pending spans.
func (m *Module) Stop(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}

	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.provider.Shutdown(flushCtx)
}
