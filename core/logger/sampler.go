package logger

import "sync/atomic"

// everyNSampler lets through the first of every n events. n <= 1 disables sampling.
type everyNSampler struct {
	n       atomic.Int64
	counter atomic.Uint64
}

func newEveryNSampler(n int) *everyNSampler {
	s := &everyNSampler{}
	s.Set(n)
	return s
}

// Set changes the sampling period and restarts the counter.
func (s *everyNSampler) Set(n int) {
	s.n.Store(int64(n))
	s.counter.Store(0)
}

// Allow reports whether the current event should pass sampling.
func (s *everyNSampler) Allow() bool {
	n := s.n.Load()
	if n <= 1 {
		return true
	}
	return (s.counter.Add(1)-1)%uint64(n) == 0
}
