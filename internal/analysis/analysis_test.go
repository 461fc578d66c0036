package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"

	"wsramp/internal/runner"
)

func batch(n, total int, rate float64) runner.BatchResult {
	return runner.BatchResult{
		Batch:            n,
		Connections:      total,
		TotalConnections: total,
		SuccessRate:      rate,
	}
}

func TestClassify_Ceiling(t *testing.T) {
	history := []runner.BatchResult{
		batch(1, 4, 100),
		batch(2, 6, 95),
		batch(3, 8, 92),
		batch(4, 10, 60),
	}

	rep := Classify(history, 90, 2)
	require.Equal(t, VerdictCeiling, rep.Verdict)
	require.Equal(t, 8, rep.Ceiling)
	require.Equal(t, 8, rep.MaxStable.TotalConnections)
	require.Equal(t, 10, rep.MinUnstable.TotalConnections)
	require.Contains(t, rep.Summary(), "8")
}

func TestClassify_OpenRange(t *testing.T) {
	// A non-monotonic history: stable at 8 but the smallest unstable count is
	// 20, leaving a gap wider than the increment.
	history := []runner.BatchResult{
		batch(1, 8, 100),
		batch(2, 20, 40),
	}

	rep := Classify(history, 90, 2)
	require.Equal(t, VerdictOpenRange, rep.Verdict)
	require.Equal(t, 8, rep.RangeLow)
	require.Equal(t, 20, rep.RangeHigh)
	require.Contains(t, rep.Summary(), "between 8 and 20")
}

func TestClassify_AllStable(t *testing.T) {
	history := []runner.BatchResult{
		batch(1, 2, 100),
		batch(2, 4, 100),
		batch(3, 6, 90), // inclusive threshold: exactly 90 is stable
	}

	rep := Classify(history, 90, 2)
	require.Equal(t, VerdictAllStable, rep.Verdict)
	require.Equal(t, 6, rep.HighestStable)
	require.Nil(t, rep.MinUnstable)
}

func TestClassify_AllUnstable(t *testing.T) {
	history := []runner.BatchResult{
		batch(1, 2, 50),
		batch(2, 4, 30),
	}

	rep := Classify(history, 90, 2)
	require.Equal(t, VerdictAllUnstable, rep.Verdict)
	require.Equal(t, 2, rep.LowestTested)
	require.Nil(t, rep.MaxStable)
}

func TestClassify_NoData(t *testing.T) {
	rep := Classify(nil, 90, 2)
	require.Equal(t, VerdictNoData, rep.Verdict)
	require.Equal(t, "no batch data to analyze", rep.Summary())
}

func TestClassify_GapExactlyOneIncrementIsCeiling(t *testing.T) {
	history := []runner.BatchResult{
		batch(1, 8, 100),
		batch(2, 10, 10),
	}

	rep := Classify(history, 90, 2)
	require.Equal(t, VerdictCeiling, rep.Verdict)
	require.Equal(t, 8, rep.Ceiling)
}

func TestVerdictString(t *testing.T) {
	require.Equal(t, "ceiling", VerdictCeiling.String())
	require.Equal(t, "open range", VerdictOpenRange.String())
	require.Equal(t, "no data", VerdictNoData.String())
}
