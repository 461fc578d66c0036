package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// Worker drives one connection's lifecycle: connect, handshake echo, keepalive
// hold, teardown. Run always produces exactly one ConnectionResult and never
// panics past its own boundary; every wait it performs is bounded.
type Worker struct {
	id    int
	batch int
	cfg   Config
	sig   *TerminationSignal
	log   *slog.Logger

	// onEstablished, when set, is called once after the handshake echo
	// succeeds, while the worker keeps holding. Used by the cumulative
	// coordinator to score admission without closing the connection.
	onEstablished func(Established)
}

func newWorker(cfg Config, id, batch int, sig *TerminationSignal, log *slog.Logger) *Worker {
	return &Worker{
		id:    id,
		batch: batch,
		cfg:   cfg,
		sig:   sig,
		log:   log,
	}
}

// Run executes the full lifecycle and blocks until the connection terminates.
func (w *Worker) Run(ctx context.Context) ConnectionResult {
	start := time.Now()
	res := ConnectionResult{ID: w.id, Batch: w.batch}

	// Connecting
	dialCtx, cancel := context.WithTimeout(ctx, w.cfg.DialTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: w.cfg.DialTimeout}
	conn, resp, err := dialer.DialContext(dialCtx, w.cfg.URL(), nil)
	if err != nil {
		kind := FailureConnect
		if ctx.Err() != nil {
			kind = FailureCancelled
		}
		return w.fail(res, start, kind, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	res.ConnectTime = time.Since(start)
	w.log.Debug("connected",
		"batch", w.batch, "conn", w.id, "connect", res.ConnectTime.Round(time.Millisecond))

	// Handshaking: the identification echo becomes the first latency sample.
	hello := fmt.Sprintf("wsramp %s conn %d", w.cfg.RunID, w.id)
	rtt, err := w.echo(conn, hello, w.cfg.HandshakeTimeout)
	if err != nil {
		return w.fail(res, start, classifyEchoError(err, FailureHandshakeTimeout), err)
	}
	res.ResponseTimes = append(res.ResponseTimes, rtt)
	w.log.Debug("handshake echo",
		"batch", w.batch, "conn", w.id, "rtt", rtt.Round(time.Millisecond))

	if w.onEstablished != nil {
		w.onEstablished(Established{
			ID:            w.id,
			Batch:         w.batch,
			ConnectTime:   res.ConnectTime,
			FirstResponse: rtt,
		})
	}

	// Holding: probe, then wait for the signal or the check interval.
	keepalive := fmt.Sprintf("keepalive-%d", w.id)
	for !w.sig.IsSet() && ctx.Err() == nil {
		rtt, err := w.echo(conn, keepalive, w.cfg.KeepaliveTimeout)
		if err != nil {
			return w.fail(res, start, classifyEchoError(err, FailureKeepaliveTimeout), err)
		}
		res.ResponseTimes = append(res.ResponseTimes, rtt)

		select {
		case <-w.sig.Done():
		case <-ctx.Done():
			// Run cancellation winds the connection down like the signal.
		case <-time.After(w.cfg.CheckInterval):
		}
	}

	// Completed
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	res.Success = true
	res.Duration = time.Since(start)
	res.AvgResponse, res.MinResponse, res.MaxResponse = summarize(res.ResponseTimes)
	w.log.Debug("completed",
		"batch", w.batch, "conn", w.id, "samples", len(res.ResponseTimes))
	return res
}

// echo sends one payload and waits for its mirror within timeout.
func (w *Worker) echo(conn *websocket.Conn, payload string, timeout time.Duration) (time.Duration, error) {
	start := time.Now()
	deadline := start.Add(timeout)

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return 0, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		return 0, err
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return 0, err
	}
	if string(msg) != payload {
		return 0, fmt.Errorf("%w: sent %q, got %q", errUnexpectedPayload, payload, string(msg))
	}
	return time.Since(start), nil
}

func (w *Worker) fail(res ConnectionResult, start time.Time, kind FailureKind, err error) ConnectionResult {
	res.Success = false
	res.Failure = kind
	res.Error = err.Error()
	res.Duration = time.Since(start)
	// Samples collected before the failure are preserved.
	res.AvgResponse, res.MinResponse, res.MaxResponse = summarize(res.ResponseTimes)

	lvl := slog.LevelWarn
	if kind == FailureCancelled {
		lvl = slog.LevelDebug
	}
	w.log.Log(context.Background(), lvl, "connection failed",
		"batch", w.batch, "conn", w.id, "kind", string(kind), "err", err)
	return res
}

// summarize derives avg/min/max from a sample set; all zero when empty.
func summarize(samples []time.Duration) (avg, min, max time.Duration) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	min, max = samples[0], samples[0]
	var sum time.Duration
	for _, s := range samples {
		sum += s
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return sum / time.Duration(len(samples)), min, max
}
