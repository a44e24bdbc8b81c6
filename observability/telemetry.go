package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/httpreq/component"
)

// TelemetryConfig selects which OpenTelemetry providers are installed.
type TelemetryConfig struct {
	Tracing bool         `mapstructure:"tracing" yaml:"tracing"`
	Metrics bool         `mapstructure:"metrics" yaml:"metrics"`
	Tracer  TracerConfig `mapstructure:"tracer" yaml:"tracer"`
	Meter   MeterConfig  `mapstructure:"meter" yaml:"meter"`
}

// DefaultTelemetryConfig enables both providers against a local collector.
func DefaultTelemetryConfig(serviceName string) TelemetryConfig {
	return TelemetryConfig{
		Tracing: true,
		Metrics: true,
		Tracer:  DefaultTracerConfig(serviceName),
		Meter:   DefaultMeterConfig(serviceName),
	}
}

// Telemetry owns the tracer and meter providers and implements
// component.Component so it can be started before the transport.
type Telemetry struct {
	cfg TelemetryConfig

	mu sync.Mutex
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

var (
	_ component.Component   = (*Telemetry)(nil)
	_ component.Describable = (*Telemetry)(nil)
)

// NewTelemetry creates an unstarted Telemetry component.
func NewTelemetry(cfg TelemetryConfig) *Telemetry {
	return &Telemetry{cfg: cfg}
}

// Name implements component.Component.
func (t *Telemetry) Name() string { return "telemetry" }

// Start installs the configured global providers.
func (t *Telemetry) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cfg.Tracing && t.tp == nil {
		tp, err := InitTracer(ctx, t.cfg.Tracer)
		if err != nil {
			return err
		}
		t.tp = tp
	}
	if t.cfg.Metrics && t.mp == nil {
		mp, err := InitMeter(ctx, t.cfg.Meter)
		if err != nil {
			return err
		}
		t.mp = mp
	}
	return nil
}

// Stop flushes and shuts down the installed providers.
func (t *Telemetry) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
		}
		t.tp = nil
	}
	if t.mp != nil {
		if err := t.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter shutdown: %w", err))
		}
		t.mp = nil
	}
	return errors.Join(errs...)
}

// Health reports degraded when an enabled provider is not running.
func (t *Telemetry) Health(_ context.Context) component.Health {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := component.Health{Name: t.Name(), Status: component.StatusHealthy}
	if (t.cfg.Tracing && t.tp == nil) || (t.cfg.Metrics && t.mp == nil) {
		h.Status = component.StatusDegraded
		h.Message = "providers not started"
	}
	return h
}

// Describe implements component.Describable.
func (t *Telemetry) Describe() component.Description {
	return component.Description{
		Name:    "OpenTelemetry",
		Type:    "telemetry",
		Details: fmt.Sprintf("tracing=%t metrics=%t endpoint=%s", t.cfg.Tracing, t.cfg.Metrics, t.cfg.Tracer.Endpoint),
	}
}
