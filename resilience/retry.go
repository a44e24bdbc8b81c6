package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// Category classifies the outcome of one attempt for retry purposes.
type Category int

const (
	// CategoryNone marks an outcome that is final: a success, a status
	// outside the retry set, or an error that must not be replayed.
	CategoryNone Category = iota
	// CategoryConnect marks a failure before the request reached the
	// server. Safe to retry for any method.
	CategoryConnect
	// CategoryRead marks a failure after the request was sent.
	CategoryRead
	// CategoryStatus marks a response whose status is in the retry set.
	CategoryStatus
)

func (c Category) String() string {
	switch c {
	case CategoryConnect:
		return "connect"
	case CategoryRead:
		return "read"
	case CategoryStatus:
		return "status"
	default:
		return "none"
	}
}

// DefaultRetryMethods are the idempotent methods eligible for read and
// status retries.
var DefaultRetryMethods = []string{"DELETE", "GET", "HEAD", "OPTIONS", "PUT", "TRACE"}

// DefaultRetryStatusCodes are the statuses retried by default.
var DefaultRetryStatusCodes = []int{500, 502, 504}

// RetryPolicy decides whether and when an attempt is retried.
type RetryPolicy struct {
	// MaxRetries bounds the number of retries after the first attempt.
	MaxRetries int
	// BackoffFactor scales the exponential delay, in seconds.
	BackoffFactor float64
	// MaxBackoff caps any single delay.
	MaxBackoff time.Duration
	// StatusCodes lists the response statuses that trigger a retry.
	StatusCodes []int
	// Methods lists the methods eligible for read and status retries.
	Methods []string
}

// DefaultRetryPolicy returns three retries with a 0.3 backoff factor on
// 500, 502 and 504.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		BackoffFactor: 0.3,
		MaxBackoff:    120 * time.Second,
		StatusCodes:   slices.Clone(DefaultRetryStatusCodes),
		Methods:       slices.Clone(DefaultRetryMethods),
	}
}

// IsRetryableStatus reports whether status is in the retry set.
func (p RetryPolicy) IsRetryableStatus(status int) bool {
	return slices.Contains(p.StatusCodes, status)
}

// IsRetryableMethod reports whether method may be replayed after the
// server has seen it.
func (p RetryPolicy) IsRetryableMethod(method string) bool {
	return slices.Contains(p.Methods, strings.ToUpper(method))
}

// ShouldRetry reports whether an outcome of category cat for method is
// eligible for a retry, ignoring the retry budget.
func (p RetryPolicy) ShouldRetry(method string, cat Category) bool {
	switch cat {
	case CategoryConnect:
		return true
	case CategoryRead, CategoryStatus:
		return p.IsRetryableMethod(method)
	default:
		return false
	}
}

// Backoff returns the delay before the given retry (1-based). The first
// retry is immediate; retry n waits BackoffFactor * 2^(n-2) seconds,
// capped at MaxBackoff. The default factor of 0.3 therefore waits 0, 0.3s
// and 0.6s; urllib3's get_backoff_time uses 2^(n-1) and would wait 0, 0.6s
// and 1.2s. The shorter schedule is the documented one and is kept.
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry <= 1 || p.BackoffFactor <= 0 {
		return 0
	}
	secs := p.BackoffFactor * math.Pow(2, float64(retry-2))
	d := time.Duration(secs * float64(time.Second))
	if p.MaxBackoff > 0 && (d > p.MaxBackoff || d < 0) {
		return p.MaxBackoff
	}
	return d
}

// ExhaustedError is returned when the retry budget is spent. Err is the
// last attempt's error, nil when the last attempt produced a retryable
// status.
type ExhaustedError struct {
	Category Category
	Retries  int
	Err      error
}

func (e *ExhaustedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("max retries exceeded after %d retries (%s): %v", e.Retries, e.Category, e.Err)
	}
	return fmt.Sprintf("max retries exceeded after %d retries (%s)", e.Retries, e.Category)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// RetryEvent describes a scheduled retry.
type RetryEvent struct {
	Method   string
	Retry    int
	Category Category
	Backoff  time.Duration
	Err      error
}

// Operation configures one call to Retry.
type Operation[T any] struct {
	// Method is the request method, used for method-restricted retries.
	Method string
	// Classify maps an attempt's result to a category.
	Classify func(T, error) Category
	// Discard releases a result that is about to be replaced by a retry.
	Discard func(T)
	// OnRetry is called before each backoff wait.
	OnRetry func(RetryEvent)
	// Wait sleeps for d or until ctx is done. Defaults to a timer wait.
	Wait func(ctx context.Context, d time.Duration) error
}

// Retry runs fn until it yields a final outcome or the policy's budget is
// spent. fn receives the zero-based attempt number.
//
// When the budget is spent on a retryable status, the last result is
// returned together with an *ExhaustedError. When it is spent on an error,
// the zero value is returned with an *ExhaustedError wrapping that error.
// Context cancellation between attempts returns ctx.Err().
func Retry[T any](ctx context.Context, p RetryPolicy, op Operation[T], fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	wait := op.Wait
	if wait == nil {
		wait = sleep
	}

	for attempt := 0; ; attempt++ {
		result, err := fn(ctx, attempt)

		cat := CategoryNone
		if op.Classify != nil {
			cat = op.Classify(result, err)
		}
		if !p.ShouldRetry(op.Method, cat) {
			return result, err
		}
		if attempt >= p.MaxRetries {
			if cat == CategoryStatus {
				return result, &ExhaustedError{Category: cat, Retries: attempt}
			}
			return zero, &ExhaustedError{Category: cat, Retries: attempt, Err: err}
		}

		retry := attempt + 1
		backoff := p.Backoff(retry)
		if op.OnRetry != nil {
			op.OnRetry(RetryEvent{Method: op.Method, Retry: retry, Category: cat, Backoff: backoff, Err: err})
		}
		if op.Discard != nil && err == nil {
			op.Discard(result)
		}
		if werr := wait(ctx, backoff); werr != nil {
			return zero, werr
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsExhausted reports whether err is or wraps an *ExhaustedError.
func IsExhausted(err error) bool {
	var e *ExhaustedError
	return errors.As(err, &e)
}
