package main

import (
	"context"
	"sync"
	"time"
)

// ExecutionSynchronizer tracks in-flight executions per benchmark so that the
// benchmark lifecycle is reported only after all of its executions stopped.
// With a non-zero pause it also keeps the given gap between the last finished
// execution and the next report, which lets metric collectors flush a window.
type ExecutionSynchronizer struct {
	pause time.Duration

	mu       sync.Mutex
	inflight map[*Benchmark]int
	idle     map[*Benchmark]chan struct{}
	lastDone time.Time
}

func NewExecutionSynchronizer(pause time.Duration) *ExecutionSynchronizer {
	return &ExecutionSynchronizer{
		pause:    pause,
		inflight: make(map[*Benchmark]int),
		idle:     make(map[*Benchmark]chan struct{}),
	}
}

// enter registers a running execution of benchmark. The returned function must
// be called exactly once when the execution stops.
func (s *ExecutionSynchronizer) enter(benchmark *Benchmark) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[benchmark] == 0 {
		s.idle[benchmark] = make(chan struct{})
	}
	s.inflight[benchmark]++

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.inflight[benchmark]--
			if s.inflight[benchmark] == 0 {
				close(s.idle[benchmark])
				delete(s.idle, benchmark)
				delete(s.inflight, benchmark)
			}
			s.lastDone = time.Now()
		})
	}
}

func (s *ExecutionSynchronizer) AwaitBeforeReport(ctx context.Context, benchmark *Benchmark) error {
	s.mu.Lock()
	idle := s.idle[benchmark]
	s.mu.Unlock()
	if idle != nil {
		Logger.Debugf("waiting for in-flight executions of benchmark %v", benchmark.UniqueName())
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.pause <= 0 {
		return nil
	}
	s.mu.Lock()
	wait := time.Until(s.lastDone.Add(s.pause))
	s.mu.Unlock()
	if wait <= 0 {
		return nil
	}
	Logger.Infof("pausing for %v before reporting benchmark %v", wait, benchmark.UniqueName())
	select {
	case <-time.NewTimer(wait).C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
