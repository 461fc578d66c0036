package stats

import (
	"sync/atomic"
	"time"
)

// Stats holds run-wide aggregated connection metrics. Counters are atomic;
// latency data lives in hdr histograms at microsecond resolution.
type Stats struct {
	Attempted  uint64
	Successful uint64
	Failed     uint64

	// Echo round trips across all connections
	Response *SafeHistogram
	// Time to open a connection
	Connect *SafeHistogram
}

func NewStats() *Stats {
	return &Stats{
		Response: NewSafeHistogram(),
		Connect:  NewSafeHistogram(),
	}
}

// AddConnection counts one finished connection attempt.
func (s *Stats) AddConnection(success bool) {
	atomic.AddUint64(&s.Attempted, 1)
	if success {
		atomic.AddUint64(&s.Successful, 1)
	} else {
		atomic.AddUint64(&s.Failed, 1)
	}
}

// RecordResponse records one echo round trip.
func (s *Stats) RecordResponse(d time.Duration) {
	s.Response.RecordValue(int64(d / time.Microsecond))
}

// RecordConnect records one connection-establishment time.
func (s *Stats) RecordConnect(d time.Duration) {
	s.Connect.RecordValue(int64(d / time.Microsecond))
}

func (s *Stats) SuccessRate() float64 {
	attempts := atomic.LoadUint64(&s.Attempted)
	if attempts == 0 {
		return 0
	}
	ok := atomic.LoadUint64(&s.Successful)
	return (float64(ok) / float64(attempts)) * 100
}

func (s *Stats) AvgResponseMs() float64 {
	return s.Response.Mean() / 1000.0
}

func (s *Stats) P50ResponseMs() float64 {
	return float64(s.Response.ValueAtQuantile(50)) / 1000.0
}

func (s *Stats) P90ResponseMs() float64 {
	return float64(s.Response.ValueAtQuantile(90)) / 1000.0
}

func (s *Stats) P99ResponseMs() float64 {
	return float64(s.Response.ValueAtQuantile(99)) / 1000.0
}

// Summary is a cheap copy of the aggregate numbers for reports and UIs.
type Summary struct {
	Attempted  uint64  `json:"attempted"`
	Successful uint64  `json:"successful"`
	Failed     uint64  `json:"failed"`
	Samples    int64   `json:"samples"`
	AvgMs      float64 `json:"avg_ms"`
	P50Ms      float64 `json:"p50_ms"`
	P90Ms      float64 `json:"p90_ms"`
	P99Ms      float64 `json:"p99_ms"`
	MaxMs      float64 `json:"max_ms"`
	ConnectMs  float64 `json:"connect_avg_ms"`
}

func (s *Stats) Summarize() Summary {
	return Summary{
		Attempted:  atomic.LoadUint64(&s.Attempted),
		Successful: atomic.LoadUint64(&s.Successful),
		Failed:     atomic.LoadUint64(&s.Failed),
		Samples:    s.Response.TotalCount(),
		AvgMs:      s.AvgResponseMs(),
		P50Ms:      s.P50ResponseMs(),
		P90Ms:      s.P90ResponseMs(),
		P99Ms:      s.P99ResponseMs(),
		MaxMs:      float64(s.Response.Max()) / 1000.0,
		ConnectMs:  s.Connect.Mean() / 1000.0,
	}
}
