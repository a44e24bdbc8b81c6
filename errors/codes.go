package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Configuration errors (raised before any network activity)
const (
	// ErrCodeInvalidMethod indicates an unsupported HTTP method was assigned.
	ErrCodeInvalidMethod ErrorCode = "INVALID_METHOD"
	// ErrCodeInvalidInput indicates the input is invalid.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeMissingField indicates a required field is missing.
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"
	// ErrCodeInvalidRequest indicates the accumulated request state cannot be assembled.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
)

// Send errors
const (
	// ErrCodeAuthorizationFailed indicates the authorizer could not produce headers.
	ErrCodeAuthorizationFailed ErrorCode = "AUTHORIZATION_FAILED"
	// ErrCodeRequestFailed indicates the transport failed terminally.
	ErrCodeRequestFailed ErrorCode = "REQUEST_FAILED"
	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeConnectionFailed indicates a failed connection to the remote host.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
)

// Internal errors
const (
	// ErrCodeInternal indicates an unexpected internal failure.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeTimeout:          true,
	ErrCodeConnectionFailed: true,
	ErrCodeRequestFailed:    false,
	ErrCodeInternal:         false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
