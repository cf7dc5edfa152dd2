package machine

import (
	"context"
	"sync"
	"time"
)

// scheduler runs machine tasks one at a time. A task holds mu while it runs
// and gives it up only inside sleep, so machine state has a single writer and
// the guard flags are consistent at every suspension point.
//
// Commands additionally pass through a FIFO: each one takes mu only after the
// command queued before it has taken mu, so they start in arrival order.
type scheduler struct {
	mu sync.Mutex
	wg sync.WaitGroup

	// lastStarted is closed once the most recently queued command holds mu.
	lastStarted chan struct{}
}

// sleep suspends the running task for d. The caller must hold mu; it holds mu
// again when sleep returns, whether the wait completed or ctx was cancelled.
func (s *scheduler) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Unlock()
	defer s.mu.Lock()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spawn starts fn as a detached task. fn runs with mu held.
func (s *scheduler) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		fn()
	}()
}

// ticket reserves the next place in the command queue. The caller must hold
// mu and must pass the ticket to acquire exactly once.
func (s *scheduler) ticket() (prev <-chan struct{}, started chan struct{}) {
	prev = s.lastStarted
	started = make(chan struct{})
	s.lastStarted = started
	return prev, started
}

// acquire waits until the previous command holds mu, then takes mu itself.
func (s *scheduler) acquire(prev <-chan struct{}, started chan struct{}) {
	if prev != nil {
		<-prev
	}
	s.mu.Lock()
	close(started)
}

// enqueue starts fn as a detached command task. The caller must hold mu.
func (s *scheduler) enqueue(fn func()) {
	prev, started := s.ticket()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acquire(prev, started)
		defer s.mu.Unlock()
		fn()
	}()
}
