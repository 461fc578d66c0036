// Package analysis classifies a finished run's batch history into a
// connection-capacity verdict. It is pure: it consumes the ordered history
// and produces a report, nothing else.
package analysis

import (
	"fmt"

	"wsramp/internal/runner"
)

// Verdict is the analyzer's overall conclusion.
type Verdict int

const (
	// VerdictNoData means the run produced no batches at all.
	VerdictNoData Verdict = iota
	// VerdictCeiling means stable and unstable counts are adjacent within
	// one increment, pinning a practical ceiling.
	VerdictCeiling
	// VerdictOpenRange means the boundary lies somewhere inside a gap wider
	// than one increment; a finer-grained retest is needed.
	VerdictOpenRange
	// VerdictAllStable means every tested count was stable; the ceiling was
	// not reached.
	VerdictAllStable
	// VerdictAllUnstable means even the smallest tested count failed the
	// threshold.
	VerdictAllUnstable
)

func (v Verdict) String() string {
	switch v {
	case VerdictCeiling:
		return "ceiling"
	case VerdictOpenRange:
		return "open range"
	case VerdictAllStable:
		return "stable, ceiling unknown"
	case VerdictAllUnstable:
		return "unstable from the start"
	default:
		return "no data"
	}
}

// Report carries the verdict plus the batches that anchored it.
type Report struct {
	Verdict   Verdict `json:"verdict"`
	Threshold float64 `json:"threshold"`

	Ceiling   int `json:"ceiling,omitempty"`    // VerdictCeiling
	RangeLow  int `json:"range_low,omitempty"`  // VerdictOpenRange
	RangeHigh int `json:"range_high,omitempty"` // VerdictOpenRange

	HighestStable int `json:"highest_stable,omitempty"` // VerdictAllStable
	LowestTested  int `json:"lowest_tested,omitempty"`  // VerdictAllUnstable

	MaxStable   *runner.BatchResult `json:"max_stable,omitempty"`
	MinUnstable *runner.BatchResult `json:"min_unstable,omitempty"`
}

// Classify partitions the history by the threshold and derives the verdict.
// Connection counts are compared on the cumulative total, which equals the
// per-batch count in independent mode.
func Classify(history []runner.BatchResult, threshold float64, increment int) Report {
	rep := Report{Verdict: VerdictNoData, Threshold: threshold}
	if len(history) == 0 {
		return rep
	}

	var maxStable, minUnstable *runner.BatchResult
	for i := range history {
		b := &history[i]
		if b.Stable(threshold) {
			if maxStable == nil || b.TotalConnections > maxStable.TotalConnections {
				maxStable = b
			}
		} else {
			if minUnstable == nil || b.TotalConnections < minUnstable.TotalConnections {
				minUnstable = b
			}
		}
	}
	rep.MaxStable = maxStable
	rep.MinUnstable = minUnstable

	switch {
	case maxStable != nil && minUnstable != nil:
		if minUnstable.TotalConnections-maxStable.TotalConnections <= increment {
			rep.Verdict = VerdictCeiling
			rep.Ceiling = maxStable.TotalConnections
		} else {
			rep.Verdict = VerdictOpenRange
			rep.RangeLow = maxStable.TotalConnections
			rep.RangeHigh = minUnstable.TotalConnections
		}
	case maxStable != nil:
		rep.Verdict = VerdictAllStable
		rep.HighestStable = maxStable.TotalConnections
	default:
		rep.Verdict = VerdictAllUnstable
		rep.LowestTested = minUnstable.TotalConnections
	}
	return rep
}

// Summary renders the verdict as one human-readable sentence.
func (r Report) Summary() string {
	switch r.Verdict {
	case VerdictCeiling:
		return fmt.Sprintf(
			"the path sustains about %d concurrent connections; stability deteriorated at %d",
			r.Ceiling, r.MinUnstable.TotalConnections)
	case VerdictOpenRange:
		return fmt.Sprintf(
			"the capacity boundary lies between %d and %d connections; retest that range with a smaller increment",
			r.RangeLow, r.RangeHigh)
	case VerdictAllStable:
		return fmt.Sprintf(
			"stable through %d connections; the ceiling was not reached",
			r.HighestStable)
	case VerdictAllUnstable:
		return fmt.Sprintf(
			"even the smallest tested count (%d connections) was unstable",
			r.LowestTested)
	default:
		return "no batch data to analyze"
	}
}
