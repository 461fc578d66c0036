package runner

import (
	"fmt"
	"time"

	"wsramp/internal/stats"
)

// Defaults for the protocol timing knobs. Zero-valued Config fields fall
// back to these.
const (
	DefaultDialTimeout      = 10 * time.Second
	DefaultHandshakeTimeout = 3 * time.Second
	DefaultKeepaliveTimeout = 2 * time.Second
	DefaultCheckInterval    = 1 * time.Second
	DefaultBatchPause       = 1 * time.Second
	DefaultThreshold        = 90.0
)

// Config describes one progressive connection test run.
type Config struct {
	Scheme string // "ws" or "wss"
	Host   string
	Port   int
	Path   string

	StartConnections int
	MaxConnections   int
	Increment        int

	HoldDuration    time.Duration // how long a batch stays open once fully launched
	ConnectionDelay time.Duration // stagger between individual connection launches

	StabilityThreshold float64 // minimum success rate (%) for a stable batch
	Cumulative         bool    // keep prior batches' connections open
	Verbose            bool

	// Timing knobs, zero means default.
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	KeepaliveTimeout time.Duration
	CheckInterval    time.Duration
	BatchPause       time.Duration

	// RunID tags handshake payloads and the final report. Assigned by the
	// controller when empty.
	RunID string
}

// URL assembles the dial target.
func (c Config) URL() string {
	return fmt.Sprintf("%s://%s:%d%s", c.Scheme, c.Host, c.Port, c.Path)
}

// Validate rejects an unconstructable target or test plan. This is the only
// fatal condition of a run; everything after it is reported as data.
func (c Config) Validate() error {
	if c.Scheme != "ws" && c.Scheme != "wss" {
		return fmt.Errorf("scheme must be ws or wss, got %q", c.Scheme)
	}
	if c.Host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Path == "" || c.Path[0] != '/' {
		return fmt.Errorf("path %q must start with /", c.Path)
	}
	if c.StartConnections < 1 {
		return fmt.Errorf("start connections must be >= 1, got %d", c.StartConnections)
	}
	if c.MaxConnections < c.StartConnections {
		return fmt.Errorf("max connections %d below start %d", c.MaxConnections, c.StartConnections)
	}
	if c.Increment < 1 {
		return fmt.Errorf("increment must be >= 1, got %d", c.Increment)
	}
	if c.HoldDuration <= 0 {
		return fmt.Errorf("hold duration must be positive, got %v", c.HoldDuration)
	}
	if c.StabilityThreshold < 0 || c.StabilityThreshold > 100 {
		return fmt.Errorf("stability threshold %.1f out of [0,100]", c.StabilityThreshold)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.KeepaliveTimeout == 0 {
		c.KeepaliveTimeout = DefaultKeepaliveTimeout
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = DefaultCheckInterval
	}
	if c.BatchPause == 0 {
		c.BatchPause = DefaultBatchPause
	}
	if c.StabilityThreshold == 0 {
		c.StabilityThreshold = DefaultThreshold
	}
	return c
}

// ConnectionResult is the single, immutable outcome of one connection's
// lifecycle. Error is set iff Success is false.
type ConnectionResult struct {
	ID      int  `json:"id"`
	Batch   int  `json:"batch"`
	Success bool `json:"success"`

	Duration    time.Duration `json:"duration"`
	ConnectTime time.Duration `json:"connect_time"`

	ResponseTimes []time.Duration `json:"response_times,omitempty"`
	AvgResponse   time.Duration   `json:"avg_response"`
	MinResponse   time.Duration   `json:"min_response"`
	MaxResponse   time.Duration   `json:"max_response"`

	Failure FailureKind `json:"failure,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Established is the admission notice a cumulative-mode worker emits once its
// handshake echo completes, while it keeps holding the connection open.
type Established struct {
	ID            int
	Batch         int
	ConnectTime   time.Duration
	FirstResponse time.Duration
}

// BatchResult summarizes one scheduling round. Appended once to the run
// history and never mutated afterwards.
type BatchResult struct {
	Batch       int `json:"batch"`
	Connections int `json:"connections"` // attempted this batch (new connections in cumulative mode)
	// TotalConnections is the cumulative open total after this batch. Equals
	// Connections in independent mode.
	TotalConnections int `json:"total_connections"`

	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`

	AvgResponse time.Duration `json:"avg_response"`
	MinResponse time.Duration `json:"min_response"`
	MaxResponse time.Duration `json:"max_response"`

	Duration time.Duration `json:"duration"`

	// Results holds every worker outcome gathered by batch collection time.
	// In cumulative mode only failed connections have finished by then; the
	// survivors' results are drained at run-end shutdown.
	Results []ConnectionResult `json:"results,omitempty"`
}

// Stable reports whether the batch met the given success-rate threshold.
// The comparison is inclusive.
func (b BatchResult) Stable(threshold float64) bool {
	return b.SuccessRate >= threshold
}

// RunState tracks the controller's progress through a run.
type RunState struct {
	Batch      int           // current batch number, 1-based
	Target     int           // current target connection count
	Total      int           // cumulative open total (cumulative mode)
	LastStable *BatchResult  // most recent batch at or above the threshold, nil if none yet
	History    []BatchResult // ordered, append-only
}

// RunReport is the full output of a run, handed to the presentation layer.
type RunReport struct {
	RunID    string        `json:"run_id"`
	URL      string        `json:"url"`
	Config   Config        `json:"config"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`

	History    []BatchResult `json:"history"`
	LastStable *BatchResult  `json:"last_stable,omitempty"`
	Latency    stats.Summary `json:"latency"`

	// Final results of connections released at run-end shutdown
	// (cumulative mode only).
	Released []ConnectionResult `json:"released,omitempty"`
}

// Phase labels the controller's position inside a batch, for live displays.
type Phase string

const (
	PhaseLaunching  Phase = "launching"
	PhaseHolding    Phase = "holding"
	PhaseCollecting Phase = "collecting"
	PhasePaused     Phase = "paused"
	PhaseReleasing  Phase = "releasing"
	PhaseDone       Phase = "done"
)

// Snapshot is pushed over the updates channel while a run progresses.
type Snapshot struct {
	Batch  int
	Target int
	Total  int
	Phase  Phase

	LastBatch *BatchResult
	Batches   int

	Attempted  uint64
	Successful uint64
	Failed     uint64

	AvgResponseMs float64
	P90ResponseMs float64
	P99ResponseMs float64

	Elapsed time.Duration
	Done    bool
}

// SnapshotChan carries run snapshots to a UI. Sends are non-blocking; a slow
// consumer just misses frames.
type SnapshotChan chan Snapshot
