package runner

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// CumulativeCoordinator grows one shared connection pool across batches:
// prior batches' connections stay open (their signals unset) while each new
// batch adds increment-many workers on top. Every batch owns its own
// termination signal; all still-unset signals are set together at run end by
// Shutdown, which also drains the surviving workers' final results.
type CumulativeCoordinator struct {
	cfg Config
	log *slog.Logger

	total   int
	batches []*cumulativeBatch
}

type cumulativeBatch struct {
	sig      *TerminationSignal
	results  chan ConnectionResult
	launched int
	// drained counts final results already consumed at batch collection
	// time (early failures); Shutdown reads the rest.
	drained int
}

func NewCumulativeCoordinator(cfg Config, log *slog.Logger) *CumulativeCoordinator {
	return &CumulativeCoordinator{cfg: cfg.withDefaults(), log: log}
}

// Total returns the cumulative number of connections launched so far.
func (c *CumulativeCoordinator) Total() int { return c.total }

// RunBatch opens increment new connections with globally unique identifiers,
// holds them alongside every previously opened connection, then scores the
// new connections only: workers that already failed count against the batch,
// workers still holding count as successful. No signal is set here.
func (c *CumulativeCoordinator) RunBatch(ctx context.Context, batch, increment int) (BatchResult, error) {
	start := time.Now()

	cb := &cumulativeBatch{
		sig:     NewTerminationSignal(),
		results: make(chan ConnectionResult, increment),
	}
	c.batches = append(c.batches, cb)

	established := make(chan Established, increment)
	base := c.total
	c.total += increment

	c.log.Info("starting cumulative batch",
		"batch", batch, "new_connections", increment, "total", c.total)

	for i := 0; i < increment; i++ {
		w := newWorker(c.cfg, base+i+1, batch, cb.sig, c.log)
		w.onEstablished = func(e Established) { established <- e }
		go func() { cb.results <- w.Run(ctx) }()
		cb.launched++
		if c.cfg.ConnectionDelay > 0 && i < increment-1 {
			if err := sleepCtx(ctx, c.cfg.ConnectionDelay); err != nil {
				return c.score(batch, cb, established, start), err
			}
		}
	}

	if err := sleepCtx(ctx, c.cfg.HoldDuration); err != nil {
		return c.score(batch, cb, established, start), err
	}
	return c.score(batch, cb, established, start), nil
}

// score waits until every launched worker of the batch has declared itself,
// either with an admission notice or an early failure, then builds the
// BatchResult. Admission is bounded by the connect and handshake timeouts;
// anything undeclared past that grace window counts as failed.
func (c *CumulativeCoordinator) score(batch int, cb *cumulativeBatch, established chan Established, start time.Time) BatchResult {
	grace := time.NewTimer(c.cfg.DialTimeout + c.cfg.HandshakeTimeout)
	defer grace.Stop()

	admitted := make(map[int]Established, cb.launched)
	failedIDs := make(map[int]bool)
	var failures []ConnectionResult
	declared := make(map[int]bool, cb.launched)

	undeclared := 0
	for undeclared == 0 && len(declared) < cb.launched {
		select {
		case e := <-established:
			admitted[e.ID] = e
			declared[e.ID] = true
		case r := <-cb.results:
			failedIDs[r.ID] = true
			declared[r.ID] = true
			failures = append(failures, r)
			cb.drained++
		case <-grace.C:
			// Workers stuck past every admission bound count as failed;
			// their final results surface at shutdown.
			undeclared = cb.launched - len(declared)
			c.log.Warn("admission grace window elapsed",
				"batch", batch, "undeclared", undeclared)
		}
	}

	// A worker that was admitted and then failed during this hold is a
	// failure; drop its admission sample.
	var samples []time.Duration
	for id, e := range admitted {
		if failedIDs[id] {
			continue
		}
		samples = append(samples, e.FirstResponse)
	}

	successful := cb.launched - len(failedIDs) - undeclared
	rate := 0.0
	if cb.launched > 0 {
		rate = float64(successful) / float64(cb.launched) * 100
	}

	sort.Slice(failures, func(i, j int) bool { return failures[i].ID < failures[j].ID })
	avg, min, max := summarize(samples)

	br := BatchResult{
		Batch:            batch,
		Connections:      cb.launched,
		TotalConnections: c.total,
		Successful:       successful,
		Failed:           len(failedIDs) + undeclared,
		SuccessRate:      rate,
		AvgResponse:      avg,
		MinResponse:      min,
		MaxResponse:      max,
		Duration:         time.Since(start),
		Results:          failures,
	}
	c.log.Info("cumulative batch scored",
		"batch", batch,
		"new_connections", cb.launched,
		"total", c.total,
		"successful", br.Successful,
		"failed", br.Failed,
		"success_rate", br.SuccessRate)
	return br
}

// Shutdown sets every still-unset signal and drains the final result of
// every worker not yet collected. The drain is bounded by the workers'
// cancellation contract: one check interval plus one in-flight timeout.
func (c *CumulativeCoordinator) Shutdown(ctx context.Context) []ConnectionResult {
	c.log.Info("releasing all connections", "total", c.total)
	for _, cb := range c.batches {
		cb.sig.Set()
	}

	var finals []ConnectionResult
	for _, cb := range c.batches {
		for i := cb.drained; i < cb.launched; i++ {
			select {
			case r := <-cb.results:
				finals = append(finals, r)
			case <-ctx.Done():
				return finals
			}
		}
	}
	sort.Slice(finals, func(i, j int) bool { return finals[i].ID < finals[j].ID })
	return finals
}
