package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRefused = errors.New("connection refused")

type recorder struct {
	waits  []time.Duration
	events []RetryEvent
}

func (r *recorder) wait(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func (r *recorder) onRetry(e RetryEvent) { r.events = append(r.events, e) }

func classifyStatus(p RetryPolicy) func(int, error) Category {
	return func(status int, err error) Category {
		switch {
		case errors.Is(err, errRefused):
			return CategoryConnect
		case err != nil:
			return CategoryRead
		case p.IsRetryableStatus(status):
			return CategoryStatus
		default:
			return CategoryNone
		}
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxRetries)
	assert.InDelta(t, 0.3, p.BackoffFactor, 1e-9)
	assert.Equal(t, []int{500, 502, 504}, p.StatusCodes)
	assert.True(t, p.IsRetryableStatus(502))
	assert.False(t, p.IsRetryableStatus(503))
	assert.True(t, p.IsRetryableMethod("get"))
	assert.False(t, p.IsRetryableMethod("POST"))
}

func TestBackoff(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, time.Duration(0), p.Backoff(1))
	assert.Equal(t, 300*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 600*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 1200*time.Millisecond, p.Backoff(4))

	p.MaxBackoff = time.Second
	assert.Equal(t, time.Second, p.Backoff(4))

	p.BackoffFactor = 0
	assert.Equal(t, time.Duration(0), p.Backoff(5))
}

func TestShouldRetry(t *testing.T) {
	p := DefaultRetryPolicy()
	tests := []struct {
		method string
		cat    Category
		want   bool
	}{
		{"POST", CategoryConnect, true},
		{"POST", CategoryRead, false},
		{"POST", CategoryStatus, false},
		{"GET", CategoryRead, true},
		{"PUT", CategoryStatus, true},
		{"GET", CategoryNone, false},
	}
	for _, tc := range tests {
		t.Run(tc.method+"/"+tc.cat.String(), func(t *testing.T) {
			assert.Equal(t, tc.want, p.ShouldRetry(tc.method, tc.cat))
		})
	}
}

func TestRetry_StatusThenSuccess(t *testing.T) {
	p := DefaultRetryPolicy()
	rec := &recorder{}
	statuses := []int{500, 500, 500, 200}
	var discarded []int

	got, err := Retry(context.Background(), p, Operation[int]{
		Method:   "GET",
		Classify: classifyStatus(p),
		Discard:  func(s int) { discarded = append(discarded, s) },
		OnRetry:  rec.onRetry,
		Wait:     rec.wait,
	}, func(_ context.Context, attempt int) (int, error) {
		return statuses[attempt], nil
	})

	require.NoError(t, err)
	assert.Equal(t, 200, got)
	assert.Len(t, rec.events, 3)
	assert.Equal(t, []int{500, 500, 500}, discarded)
	assert.Equal(t, []time.Duration{0, 300 * time.Millisecond, 600 * time.Millisecond}, rec.waits)
}

func TestRetry_StatusExhausted(t *testing.T) {
	p := DefaultRetryPolicy()
	rec := &recorder{}
	calls := 0

	got, err := Retry(context.Background(), p, Operation[int]{
		Method:   "GET",
		Classify: classifyStatus(p),
		Wait:     rec.wait,
	}, func(context.Context, int) (int, error) {
		calls++
		return 502, nil
	})

	require.Error(t, err)
	assert.Equal(t, 502, got, "last response is surfaced")
	assert.Equal(t, 4, calls)

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, CategoryStatus, ex.Category)
	assert.Equal(t, 3, ex.Retries)
	assert.True(t, IsExhausted(err))
}

func TestRetry_StatusOutsideSetNotRetried(t *testing.T) {
	p := DefaultRetryPolicy()
	calls := 0

	got, err := Retry(context.Background(), p, Operation[int]{
		Method:   "GET",
		Classify: classifyStatus(p),
	}, func(context.Context, int) (int, error) {
		calls++
		return 503, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 503, got)
	assert.Equal(t, 1, calls)
}

func TestRetry_PostNotRetriedOnStatus(t *testing.T) {
	p := DefaultRetryPolicy()
	calls := 0

	got, err := Retry(context.Background(), p, Operation[int]{
		Method:   "POST",
		Classify: classifyStatus(p),
	}, func(context.Context, int) (int, error) {
		calls++
		return 500, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 500, got)
	assert.Equal(t, 1, calls)
}

func TestRetry_ConnectErrorsRetriedForPost(t *testing.T) {
	p := DefaultRetryPolicy()
	rec := &recorder{}
	calls := 0

	_, err := Retry(context.Background(), p, Operation[int]{
		Method:   "POST",
		Classify: classifyStatus(p),
		Wait:     rec.wait,
	}, func(context.Context, int) (int, error) {
		calls++
		return 0, errRefused
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.ErrorIs(t, err, errRefused)

	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, CategoryConnect, ex.Category)
}

func TestRetry_ZeroRetries(t *testing.T) {
	p := DefaultRetryPolicy()
	p.MaxRetries = 0
	calls := 0

	_, err := Retry(context.Background(), p, Operation[int]{
		Method:   "GET",
		Classify: classifyStatus(p),
	}, func(context.Context, int) (int, error) {
		calls++
		return 500, nil
	})

	assert.True(t, IsExhausted(err))
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelledBetweenAttempts(t *testing.T) {
	p := DefaultRetryPolicy()
	p.BackoffFactor = 10
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := Retry(ctx, p, Operation[int]{
		Method:   "GET",
		Classify: classifyStatus(p),
		OnRetry: func(e RetryEvent) {
			if e.Retry == 2 {
				cancel()
			}
		},
	}, func(context.Context, int) (int, error) {
		calls++
		return 500, nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, calls)
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "connect", CategoryConnect.String())
	assert.Equal(t, "read", CategoryRead.String())
	assert.Equal(t, "status", CategoryStatus.String())
	assert.Equal(t, "none", CategoryNone.String())
}
