package httpclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/kbukum/httpreq/logger"
	"github.com/kbukum/httpreq/observability"
)

// testTransport bundles a Transport with the observers tests assert on.
type testTransport struct {
	*Transport
	reader *sdkmetric.ManualReader

	mu    sync.Mutex
	waits []time.Duration
}

func newTestTransport(t *testing.T, cfg Config) *testTransport {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	metrics, err := observability.NewTransportMetrics(mp.Meter(observability.InstrumentationName))
	require.NoError(t, err)

	tr, err := NewTransport(cfg, WithLogger(logger.NewNop()), WithMetrics(metrics))
	require.NoError(t, err)
	t.Cleanup(tr.CloseIdleConnections)

	tt := &testTransport{Transport: tr, reader: reader}
	tr.wait = tt.recordWait
	return tt
}

func (tt *testTransport) recordWait(ctx context.Context, d time.Duration) error {
	tt.mu.Lock()
	tt.waits = append(tt.waits, d)
	tt.mu.Unlock()
	return ctx.Err()
}

func (tt *testTransport) recordedWaits() []time.Duration {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return append([]time.Duration(nil), tt.waits...)
}

func (tt *testTransport) counter(t *testing.T, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, tt.reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}
