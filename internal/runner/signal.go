package runner

import "sync"

// TerminationSignal tells the workers of one batch to wind down. It
// transitions Unset -> Set exactly once and never reverses; workers observe
// it cooperatively via Done or IsSet. Backed by a closed channel so the
// broadcast is race-free without any shared polled state.
type TerminationSignal struct {
	once sync.Once
	ch   chan struct{}
}

func NewTerminationSignal() *TerminationSignal {
	return &TerminationSignal{ch: make(chan struct{})}
}

// Set broadcasts the signal. Safe to call more than once.
func (s *TerminationSignal) Set() {
	s.once.Do(func() { close(s.ch) })
}

// Done returns a channel closed when the signal is set.
func (s *TerminationSignal) Done() <-chan struct{} {
	return s.ch
}

// IsSet reports whether the signal has been set.
func (s *TerminationSignal) IsSet() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}
