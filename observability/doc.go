// Package observability wires OpenTelemetry tracing and metrics for httpreq.
//
// Providers are installed globally so that the transport, which only talks
// to otel.Tracer and otel.Meter, picks them up without extra plumbing:
//
//	tel := observability.NewTelemetry(observability.DefaultTelemetryConfig("sync-job"))
//	if err := tel.Start(ctx); err != nil { ... }
//	defer tel.Stop(ctx)
//
// The transport records its attempts, retries, durations and terminal
// errors through TransportMetrics, and wraps each Do call in an
// "http.request" client span.
package observability
