package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"wsramp/internal/stats"
)

// batchRunner abstracts the two admission disciplines so the progression
// loop stays identical for both.
type batchRunner interface {
	RunBatch(ctx context.Context, batch, n int) (BatchResult, error)
}

// Controller advances the target connection count across batches, applies
// the stop rule, and assembles the final run report.
type Controller struct {
	cfg     Config
	log     *slog.Logger
	stats   *stats.Stats
	updates SnapshotChan

	// batch lets tests substitute the admission discipline; nil means the
	// coordinator matching cfg.Cumulative.
	batch batchRunner

	mu        sync.Mutex
	phase     Phase
	state     *RunState
	lastBatch *BatchResult
	started   time.Time
}

// NewController validates the configuration and prepares a run. An invalid
// target or plan is the only fatal condition; it is rejected here, before
// any batch starts.
func NewController(cfg Config, log *slog.Logger, updates SnapshotChan) (*Controller, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if log == nil {
		log = slog.Default()
	}
	if updates == nil {
		// Avoid nil sends if no UI is attached
		updates = make(SnapshotChan, 10)
	}
	return &Controller{
		cfg:     cfg,
		log:     log.With("run", cfg.RunID),
		stats:   stats.NewStats(),
		updates: updates,
	}, nil
}

// Config returns the effective configuration, defaults applied.
func (c *Controller) Config() Config { return c.cfg }

// Stats exposes the run-wide aggregates for live consumers.
func (c *Controller) Stats() *stats.Stats { return c.stats }

// Run executes the progression loop until the stop rule fires, the maximum
// is exhausted, or the context is cancelled. Results gathered up to a stop
// point are always retained in the report.
func (c *Controller) Run(ctx context.Context) (*RunReport, error) {
	c.mu.Lock()
	c.started = time.Now()
	state := &RunState{Batch: 1, Target: c.cfg.StartConnections}
	c.state = state
	c.mu.Unlock()

	tickCtx, stopTicks := context.WithCancel(ctx)
	defer stopTicks()
	c.startTickLoop(tickCtx, 200*time.Millisecond)

	var cum *CumulativeCoordinator
	br := c.batch
	if br == nil {
		if c.cfg.Cumulative {
			cum = NewCumulativeCoordinator(c.cfg, c.log)
			br = cum
		} else {
			br = NewCoordinator(c.cfg, c.log)
		}
	}

	c.log.Info("starting run",
		"url", c.cfg.URL(),
		"start", c.cfg.StartConnections,
		"max", c.cfg.MaxConnections,
		"increment", c.cfg.Increment,
		"cumulative", c.cfg.Cumulative)

	var runErr error
	var last *BatchResult
	for state.Target <= c.cfg.MaxConnections {
		n := state.Target
		if c.cfg.Cumulative {
			// Only the increment is new; batch 1 opens the start count.
			if state.Batch == 1 {
				n = c.cfg.StartConnections
			} else {
				n = c.cfg.Increment
			}
		}

		c.setPhase(PhaseLaunching, last)
		res, err := br.RunBatch(ctx, state.Batch, n)
		// The tick loop reads state concurrently; mutate under the lock.
		c.mu.Lock()
		if res.Connections > 0 {
			state.History = append(state.History, res)
		}
		state.Total = res.TotalConnections
		c.mu.Unlock()
		if res.Connections > 0 {
			c.record(res)
		}
		if err != nil {
			runErr = err
			c.log.Warn("run interrupted", "batch", state.Batch, "err", err)
			break
		}

		last = &state.History[len(state.History)-1]
		c.setPhase(PhaseCollecting, last)

		if res.Stable(c.cfg.StabilityThreshold) {
			state.LastStable = last
		} else if state.LastStable != nil {
			// Regression after proven stability: stop here. No batch at a
			// larger count is attempted.
			c.log.Warn("stability threshold breached, stopping run",
				"batch", state.Batch,
				"success_rate", res.SuccessRate,
				"threshold", c.cfg.StabilityThreshold,
				"last_stable_batch", state.LastStable.Batch,
				"last_stable_connections", state.LastStable.TotalConnections)
			break
		} else {
			// A single early failure is not conclusive; keep testing until
			// the configured maximum.
			c.log.Warn("unstable batch with no stable baseline, continuing",
				"batch", state.Batch, "success_rate", res.SuccessRate)
		}

		c.mu.Lock()
		state.Batch++
		state.Target += c.cfg.Increment
		c.mu.Unlock()
		if state.Target <= c.cfg.MaxConnections {
			c.setPhase(PhasePaused, last)
			if err := sleepCtx(ctx, c.cfg.BatchPause); err != nil {
				runErr = err
				break
			}
		}
	}

	var released []ConnectionResult
	if cum != nil && cum.Total() > 0 {
		c.setPhase(PhaseReleasing, last)
		// Bounded by the worker cancellation contract, plus slack for the
		// result plumbing itself.
		bound := c.cfg.CheckInterval + c.cfg.KeepaliveTimeout + 5*time.Second
		shCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bound)
		released = cum.Shutdown(shCtx)
		cancel()
		for _, r := range released {
			c.stats.AddConnection(r.Success)
			if r.ConnectTime > 0 {
				c.stats.RecordConnect(r.ConnectTime)
			}
			for _, rt := range r.ResponseTimes {
				c.stats.RecordResponse(rt)
			}
		}
	}

	c.setPhase(PhaseDone, last)
	report := &RunReport{
		RunID:      c.cfg.RunID,
		URL:        c.cfg.URL(),
		Config:     c.cfg,
		Started:    c.started,
		Duration:   time.Since(c.started),
		History:    state.History,
		LastStable: state.LastStable,
		Latency:    c.stats.Summarize(),
		Released:   released,
	}
	c.log.Info("run finished",
		"batches", len(report.History),
		"duration", report.Duration.Round(time.Millisecond))
	c.sendUpdate(true)
	return report, runErr
}

// record folds a batch's gathered results into the run-wide stats. Worker
// results never cross goroutine boundaries on their own; only the
// controller aggregates them.
func (c *Controller) record(br BatchResult) {
	for _, r := range br.Results {
		c.stats.AddConnection(r.Success)
		if r.ConnectTime > 0 {
			c.stats.RecordConnect(r.ConnectTime)
		}
		for _, rt := range r.ResponseTimes {
			c.stats.RecordResponse(rt)
		}
	}
}

func (c *Controller) setPhase(p Phase, last *BatchResult) {
	c.mu.Lock()
	c.phase = p
	c.lastBatch = last
	c.mu.Unlock()
	c.sendUpdate(p == PhaseDone)
}

// startTickLoop pushes periodic snapshots for live displays.
func (c *Controller) startTickLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.sendUpdate(false)
			}
		}
	}()
}

func (c *Controller) sendUpdate(done bool) {
	c.mu.Lock()
	s := Snapshot{
		Phase:   c.phase,
		Elapsed: time.Since(c.started),
		Done:    done,
	}
	if c.state != nil {
		s.Batch = c.state.Batch
		s.Target = c.state.Target
		s.Total = c.state.Total
		s.Batches = len(c.state.History)
	}
	s.LastBatch = c.lastBatch
	c.mu.Unlock()

	sum := c.stats.Summarize()
	s.Attempted = sum.Attempted
	s.Successful = sum.Successful
	s.Failed = sum.Failed
	s.AvgResponseMs = sum.AvgMs
	s.P90ResponseMs = sum.P90Ms
	s.P99ResponseMs = sum.P99Ms

	// Non-blocking send; the UI acts as backpressure.
	select {
	case c.updates <- s:
	default:
	}
}
