package runner

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wsramp/internal/echo"
)

// newGaugedEchoServer exposes the echo server itself so tests can watch its
// active-connection gauge.
func newGaugedEchoServer(t *testing.T, cfg echo.Config) (*echo.Server, *httptest.Server) {
	t.Helper()
	es := echo.New(cfg, testLogger())
	ts := httptest.NewServer(es)
	t.Cleanup(ts.Close)
	return es, ts
}

func TestCumulative_PoolGrowsAcrossBatches(t *testing.T) {
	es, ts := newGaugedEchoServer(t, echo.Config{})
	cfg := configFor(t, ts)

	coord := NewCumulativeCoordinator(cfg, testLogger())
	ctx := context.Background()

	br1, err := coord.RunBatch(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, 2, br1.Connections)
	require.Equal(t, 2, br1.TotalConnections)
	require.Equal(t, 2, br1.Successful)
	require.InDelta(t, 100.0, br1.SuccessRate, 0.001)

	// The first batch's connections are still open when the second starts.
	require.Equal(t, int64(2), es.Active())

	br2, err := coord.RunBatch(ctx, 2, 3)
	require.NoError(t, err)
	require.Equal(t, 3, br2.Connections)
	require.Equal(t, 5, br2.TotalConnections)
	require.Equal(t, 3, br2.Successful)
	require.Equal(t, 5, coord.Total())
	require.Equal(t, int64(5), es.Active())
}

func TestCumulative_ShutdownDrainsEveryWorker(t *testing.T) {
	es, ts := newGaugedEchoServer(t, echo.Config{})
	cfg := configFor(t, ts)

	coord := NewCumulativeCoordinator(cfg, testLogger())
	ctx := context.Background()

	_, err := coord.RunBatch(ctx, 1, 2)
	require.NoError(t, err)
	_, err = coord.RunBatch(ctx, 2, 2)
	require.NoError(t, err)

	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	finals := coord.Shutdown(drainCtx)

	require.Len(t, finals, 4)
	for i, r := range finals {
		require.Equal(t, i+1, r.ID, "identifiers are globally unique and ordered")
		require.True(t, r.Success)
		require.NotEmpty(t, r.ResponseTimes)
	}

	require.Eventually(t, func() bool { return es.Active() == 0 },
		2*time.Second, 20*time.Millisecond, "all connections released")
}

func TestCumulative_FailuresBeyondServerCap(t *testing.T) {
	_, ts := newGaugedEchoServer(t, echo.Config{MaxConns: 2})
	cfg := configFor(t, ts)

	coord := NewCumulativeCoordinator(cfg, testLogger())
	ctx := context.Background()

	br1, err := coord.RunBatch(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, 2, br1.Successful)
	require.Equal(t, 0, br1.Failed)

	// The next two connections land over the cap and never see their
	// handshake echo.
	br2, err := coord.RunBatch(ctx, 2, 2)
	require.NoError(t, err)
	require.Equal(t, 2, br2.Connections)
	require.Equal(t, 4, br2.TotalConnections)
	require.Equal(t, 0, br2.Successful)
	require.Equal(t, 2, br2.Failed)
	require.InDelta(t, 0.0, br2.SuccessRate, 0.001)
	require.Len(t, br2.Results, 2)
	for _, r := range br2.Results {
		require.Equal(t, FailureHandshakeTimeout, r.Failure)
	}

	// Only the first batch's workers remain to drain.
	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	finals := coord.Shutdown(drainCtx)
	require.Len(t, finals, 2)
	for _, r := range finals {
		require.True(t, r.Success)
	}
}
