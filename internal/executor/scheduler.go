package executor

import (
	"context"
	"sync"
	"time"

	"pulsehub/pkg/logger"

	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// Scheduler fires periodic callbacks on a fixed set of timer workers.
// A tick that finds every worker busy and the backlog full is dropped,
// the same way time.Ticker drops ticks for slow receivers.
type Scheduler struct {
	jobs chan func()

	mu      sync.Mutex
	closed  bool
	stop    chan struct{}
	timers  sync.WaitGroup
	workers sync.WaitGroup
}

func NewScheduler(workers int) *Scheduler {
	if workers <= 0 {
		workers = 4
	}
	s := &Scheduler{
		jobs: make(chan func(), workers*4),
		stop: make(chan struct{}),
	}
	s.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go s.work()
	}
	return s
}

func (s *Scheduler) work() {
	defer s.workers.Done()
	for job := range s.jobs {
		if r := panics.Try(job); r != nil {
			logger.Error("scheduled task panicked", zap.Error(r.AsError()))
		}
	}
}

// Every runs fn every interval until ctx is done or the scheduler stops.
func (s *Scheduler) Every(ctx context.Context, interval time.Duration, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStopped
	}

	s.timers.Add(1)
	go func() {
		defer s.timers.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				select {
				case s.jobs <- fn:
				default:
					logger.Debug("scheduler backlog full, tick dropped", zap.Duration("interval", interval))
				}
			}
		}
	}()
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stop)
	s.mu.Unlock()

	return waitCtx(ctx, func() {
		// timers are the only senders on jobs
		s.timers.Wait()
		close(s.jobs)
		s.workers.Wait()
	})
}
