package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/httpreq/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	ServiceName    string        `mapstructure:"service_name" yaml:"service_name"`
	ServiceVersion string        `mapstructure:"service_version" yaml:"service_version"`
	Environment    string        `mapstructure:"environment" yaml:"environment"`
	Endpoint       string        `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure       bool          `mapstructure:"insecure" yaml:"insecure"`
	Interval       time.Duration `mapstructure:"interval" yaml:"interval"`
}

// DefaultMeterConfig returns defaults for a local collector.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter installs a global meter provider exporting over OTLP/HTTP.
// The returned provider must be shut down on exit.
func InitMeter(ctx context.Context, config MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns the httpreq meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(InstrumentationName)
}

// Metric names recorded by TransportMetrics.
const (
	MetricRequests = "httpreq.client.requests"
	MetricAttempts = "httpreq.client.attempts"
	MetricRetries  = "httpreq.client.retries"
	MetricDuration = "httpreq.client.duration"
	MetricErrors   = "httpreq.client.errors"
)

// TransportMetrics holds the instruments updated by the retrying transport.
// A nil *TransportMetrics is valid and records nothing.
type TransportMetrics struct {
	requests metric.Int64Counter
	attempts metric.Int64Counter
	retries  metric.Int64Counter
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewTransportMetrics creates the transport instruments on meter.
func NewTransportMetrics(meter metric.Meter) (*TransportMetrics, error) {
	requests, err := meter.Int64Counter(MetricRequests,
		metric.WithDescription("Completed logical requests, retries included"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricRequests, err)
	}

	attempts, err := meter.Int64Counter(MetricAttempts,
		metric.WithDescription("Individual attempts put on the wire"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricAttempts, err)
	}

	retries, err := meter.Int64Counter(MetricRetries,
		metric.WithDescription("Retries scheduled by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricRetries, err)
	}

	duration, err := meter.Float64Histogram(MetricDuration,
		metric.WithDescription("Duration of logical requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricDuration, err)
	}

	errs, err := meter.Int64Counter(MetricErrors,
		metric.WithDescription("Terminal request failures by error code"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricErrors, err)
	}

	return &TransportMetrics{
		requests: requests,
		attempts: attempts,
		retries:  retries,
		duration: duration,
		errors:   errs,
	}, nil
}

// RecordAttempt counts one attempt of method.
func (m *TransportMetrics) RecordAttempt(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrHTTPMethod, method)))
}

// RecordRetry counts a scheduled retry. reason is "status", "connect" or "read".
func (m *TransportMetrics) RecordRetry(ctx context.Context, method, reason string) {
	if m == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrRetryReason, reason),
	))
}

// RecordRequest records a finished logical request. status is 0 when no
// response was received.
func (m *TransportMetrics) RecordRequest(ctx context.Context, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPStatusCode, strconv.Itoa(status)),
	)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
	))
}

// RecordError counts a terminal failure by its error code.
func (m *TransportMetrics) RecordError(ctx context.Context, method, code string) {
	if m == nil {
		return
	}
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrErrorCode, code),
	))
}
