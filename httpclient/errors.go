package httpclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/kbukum/httpreq/resilience"
)

// ErrorCode classifies transport errors.
type ErrorCode int

const (
	// ErrCodeTimeout indicates a connect, handshake, response-header or body
	// read timeout.
	ErrCodeTimeout ErrorCode = iota
	// ErrCodeConnection indicates a connection failure (refused, reset, DNS).
	ErrCodeConnection
	// ErrCodeTLS indicates a certificate or handshake failure.
	ErrCodeTLS
	// ErrCodeRetriesExhausted indicates the retry budget was spent on
	// retryable statuses.
	ErrCodeRetriesExhausted
	// ErrCodeCanceled indicates the caller's context was canceled.
	ErrCodeCanceled
	// ErrCodeRequest indicates a request that could not be sent at all.
	ErrCodeRequest
)

// String returns the error code name.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeTimeout:
		return "timeout"
	case ErrCodeConnection:
		return "connection"
	case ErrCodeTLS:
		return "tls"
	case ErrCodeRetriesExhausted:
		return "retries_exhausted"
	case ErrCodeCanceled:
		return "canceled"
	case ErrCodeRequest:
		return "request"
	default:
		return "unknown"
	}
}

// Error is a classified transport error.
type Error struct {
	// StatusCode is the last response status, 0 when no response was received.
	StatusCode int
	// Code classifies the error.
	Code ErrorCode
	// Message describes the error.
	Message string
	// Retryable reports whether the failure was of a retryable kind.
	Retryable bool
	// Retries is the number of retries performed before giving up.
	Retries int
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("httpclient: %s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("httpclient: %s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(err error) *Error {
	return &Error{Code: ErrCodeTimeout, Message: err.Error(), Retryable: true, Err: err}
}

// NewConnectionError creates a connection error.
func NewConnectionError(err error) *Error {
	return &Error{Code: ErrCodeConnection, Message: err.Error(), Retryable: true, Err: err}
}

// NewTLSError creates a TLS error.
func NewTLSError(err error) *Error {
	return &Error{Code: ErrCodeTLS, Message: err.Error(), Err: err}
}

// NewRequestError creates an error for a request that could not be sent.
func NewRequestError(err error) *Error {
	return &Error{Code: ErrCodeRequest, Message: err.Error(), Err: err}
}

// NewRetriesExhaustedError reports a status retry budget spent on status.
func NewRetriesExhaustedError(status, retries int) *Error {
	return &Error{
		StatusCode: status,
		Code:       ErrCodeRetriesExhausted,
		Message:    fmt.Sprintf("max retries (%d) exceeded with status %d", retries, status),
		Retryable:  true,
		Retries:    retries,
	}
}

// classify maps an error returned by http.Client.Do to a classified
// *Error and the retry category it falls in. Failures before the request
// was written are connect failures; everything after is a read failure.
func classify(err error) (*Error, resilience.Category) {
	if errors.Is(err, errBodyStalled) {
		return NewTimeoutError(err), resilience.CategoryRead
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Code: ErrCodeCanceled, Message: err.Error(), Err: err}, resilience.CategoryNone
	}

	var (
		certErr     *tls.CertificateVerificationError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
		recordErr   tls.RecordHeaderError
	)
	if errors.As(err, &certErr) || errors.As(err, &unknownAuth) || errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr) || errors.As(err, &recordErr) {
		return NewTLSError(err), resilience.CategoryNone
	}

	connect := isDialError(err)

	var timeout interface{ Timeout() bool }
	if (errors.As(err, &timeout) && timeout.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		if connect {
			return NewTimeoutError(err), resilience.CategoryConnect
		}
		return NewTimeoutError(err), resilience.CategoryRead
	}

	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED), errors.As(err, &dnsErr), connect:
		return NewConnectionError(err), resilience.CategoryConnect
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return NewConnectionError(err), resilience.CategoryRead
	}
	return NewRequestError(err), resilience.CategoryNone
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && (opErr.Op == "dial" || opErr.Op == "proxyconnect")
}

func codeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return -1
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool { return codeOf(err) == ErrCodeTimeout }

// IsConnection checks if an error is a connection error.
func IsConnection(err error) bool { return codeOf(err) == ErrCodeConnection }

// IsTLS checks if an error is a TLS error.
func IsTLS(err error) bool { return codeOf(err) == ErrCodeTLS }

// IsRetriesExhausted checks if the retry budget was spent on statuses.
func IsRetriesExhausted(err error) bool { return codeOf(err) == ErrCodeRetriesExhausted }

// IsRetryable checks if an error is of a retryable kind.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
