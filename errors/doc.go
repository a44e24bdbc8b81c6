// Package errors provides the structured error type returned by httpreq.
// It carries machine-readable codes, retryable detection and the
// underlying cause so callers can use errors.Is / errors.As.
package errors
