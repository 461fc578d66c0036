package runner

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// Coordinator runs independent fixed-duration batches: every batch opens a
// fresh set of connections, holds them, and tears them all down before the
// next batch starts.
type Coordinator struct {
	cfg Config
	log *slog.Logger
}

func NewCoordinator(cfg Config, log *slog.Logger) *Coordinator {
	return &Coordinator{cfg: cfg.withDefaults(), log: log}
}

// RunBatch launches target workers under one shared termination signal,
// holds them for the configured duration, then signals and collects every
// worker's result. A non-nil error means the run context was cancelled; the
// partial BatchResult still covers every worker launched by then.
func (c *Coordinator) RunBatch(ctx context.Context, batch, target int) (BatchResult, error) {
	start := time.Now()
	sig := NewTerminationSignal()
	defer sig.Set()

	c.log.Info("starting batch",
		"batch", batch, "connections", target, "hold", c.cfg.HoldDuration)

	results := make(chan ConnectionResult, target)
	launched := 0
	for i := 0; i < target; i++ {
		w := newWorker(c.cfg, i+1, batch, sig, c.log)
		go func() { results <- w.Run(ctx) }()
		launched++
		// Stagger between launches, not after the last.
		if c.cfg.ConnectionDelay > 0 && i < target-1 {
			if err := sleepCtx(ctx, c.cfg.ConnectionDelay); err != nil {
				return c.collect(ctx, batch, launched, sig, results, start), err
			}
		}
	}

	// The hold timer starts only once every worker is launched.
	if err := sleepCtx(ctx, c.cfg.HoldDuration); err != nil {
		return c.collect(ctx, batch, launched, sig, results, start), err
	}

	c.log.Info("batch hold complete, closing connections", "batch", batch)
	return c.collect(ctx, batch, launched, sig, results, start), nil
}

// collect sets the signal and waits for every launched worker. The wait is
// bounded by the workers' own timeouts, so no extra deadline is needed.
func (c *Coordinator) collect(ctx context.Context, batch, launched int, sig *TerminationSignal, results chan ConnectionResult, start time.Time) BatchResult {
	sig.Set()
	gathered := make([]ConnectionResult, 0, launched)
	for len(gathered) < launched {
		gathered = append(gathered, <-results)
	}
	br := aggregate(batch, launched, launched, gathered, time.Since(start))
	c.log.Info("batch finished",
		"batch", batch,
		"successful", br.Successful,
		"failed", br.Failed,
		"success_rate", br.SuccessRate,
		"avg_response", br.AvgResponse.Round(time.Millisecond))
	return br
}

// aggregate folds worker results into one immutable BatchResult. Latency
// statistics cover the samples of successful connections only, matching how
// the batch-level numbers are interpreted downstream.
func aggregate(batch, attempted, total int, results []ConnectionResult, dur time.Duration) BatchResult {
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })

	var samples []time.Duration
	successful := 0
	for _, r := range results {
		if r.Success {
			successful++
			samples = append(samples, r.ResponseTimes...)
		}
	}
	failed := len(results) - successful

	rate := 0.0
	if attempted > 0 {
		rate = float64(successful) / float64(attempted) * 100
	}

	avg, min, max := summarize(samples)
	return BatchResult{
		Batch:            batch,
		Connections:      attempted,
		TotalConnections: total,
		Successful:       successful,
		Failed:           failed,
		SuccessRate:      rate,
		AvgResponse:      avg,
		MinResponse:      min,
		MaxResponse:      max,
		Duration:         dur,
		Results:          results,
	}
}

// sleepCtx waits d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
