// Package component defines the lifecycle interfaces shared by httpreq's
// long-lived pieces (the HTTP transport and the telemetry providers) and a
// Registry that starts them in order and stops them in reverse.
package component
