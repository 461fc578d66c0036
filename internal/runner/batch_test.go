package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wsramp/internal/echo"
)

func TestCoordinator_AllSuccessful(t *testing.T) {
	srv := newEchoServer(t, echo.Config{})
	cfg := configFor(t, srv)

	coord := NewCoordinator(cfg, testLogger())
	br, err := coord.RunBatch(context.Background(), 1, 4)
	require.NoError(t, err)

	require.Equal(t, 1, br.Batch)
	require.Equal(t, 4, br.Connections)
	require.Equal(t, 4, br.TotalConnections)
	require.Equal(t, 4, br.Successful)
	require.Equal(t, 0, br.Failed)
	require.Equal(t, br.Connections, br.Successful+br.Failed)
	require.InDelta(t, 100.0, br.SuccessRate, 0.001)
	require.Len(t, br.Results, 4)
	require.GreaterOrEqual(t, br.Duration, cfg.HoldDuration)

	// Latency aggregates come from real samples.
	require.Greater(t, br.MaxResponse, time.Duration(0))
	require.True(t, br.MinResponse <= br.AvgResponse && br.AvgResponse <= br.MaxResponse)
}

func TestCoordinator_PartialFailure(t *testing.T) {
	// The server echoes at most two connections; the rest time out on the
	// handshake.
	srv := newEchoServer(t, echo.Config{MaxConns: 2})
	cfg := configFor(t, srv)

	coord := NewCoordinator(cfg, testLogger())
	br, err := coord.RunBatch(context.Background(), 1, 4)
	require.NoError(t, err)

	require.Equal(t, 4, br.Connections)
	require.Equal(t, 2, br.Successful)
	require.Equal(t, 2, br.Failed)
	require.InDelta(t, 50.0, br.SuccessRate, 0.001)
	require.GreaterOrEqual(t, br.SuccessRate, 0.0)
	require.LessOrEqual(t, br.SuccessRate, 100.0)

	// A failing worker never aborts its batch: every worker is reported.
	require.Len(t, br.Results, 4)
	for _, r := range br.Results {
		if !r.Success {
			require.Equal(t, FailureHandshakeTimeout, r.Failure)
			require.NotEmpty(t, r.Error)
		}
	}
}

func TestCoordinator_StaggeredLaunch(t *testing.T) {
	srv := newEchoServer(t, echo.Config{})
	cfg := configFor(t, srv)
	cfg.ConnectionDelay = 60 * time.Millisecond

	coord := NewCoordinator(cfg, testLogger())
	start := time.Now()
	br, err := coord.RunBatch(context.Background(), 1, 3)
	require.NoError(t, err)

	// Two inter-launch delays (none after the last), then the hold.
	minDur := 2*cfg.ConnectionDelay + cfg.HoldDuration
	require.GreaterOrEqual(t, time.Since(start), minDur)
	require.Equal(t, 3, br.Successful)
}

func TestCoordinator_ResultsOrderedByID(t *testing.T) {
	srv := newEchoServer(t, echo.Config{})
	cfg := configFor(t, srv)

	coord := NewCoordinator(cfg, testLogger())
	br, err := coord.RunBatch(context.Background(), 2, 5)
	require.NoError(t, err)

	require.Len(t, br.Results, 5)
	for i, r := range br.Results {
		require.Equal(t, i+1, r.ID)
		require.Equal(t, 2, r.Batch)
	}
}

func TestCoordinator_ContextCancelledMidHold(t *testing.T) {
	srv := newEchoServer(t, echo.Config{})
	cfg := configFor(t, srv)
	cfg.HoldDuration = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	coord := NewCoordinator(cfg, testLogger())
	start := time.Now()
	br, err := coord.RunBatch(ctx, 1, 3)

	// Cancellation surfaces, but the partial batch still covers every
	// launched worker.
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 3, br.Connections)
	require.Equal(t, br.Connections, br.Successful+br.Failed)
	require.Less(t, time.Since(start), 3*time.Second)
}
