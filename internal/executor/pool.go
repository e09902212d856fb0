package executor

import (
	"context"
	"errors"
	"sync"

	"pulsehub/pkg/logger"

	"github.com/eapache/queue"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

var ErrStopped = errors.New("executor stopped")

// Pool runs tasks on a fixed number of workers. Submission never blocks:
// tasks wait in an unbounded FIFO until a worker is free.
type Pool struct {
	name    string
	workers int

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  *queue.Queue
	closed bool

	wg sync.WaitGroup
}

func NewPool(name string, workers int) *Pool {
	if workers <= 0 {
		workers = 8
	}
	p := &Pool{
		name:    name,
		workers: workers,
		tasks:   queue.New(),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

func (p *Pool) Workers() int { return p.workers }

// Go enqueues task. It fails only after Stop.
func (p *Pool) Go(task func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrStopped
	}
	p.tasks.Add(task)
	p.cond.Signal()
	return nil
}

// Pending is the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks.Length()
}

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.tasks.Length() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.tasks.Length() == 0 {
			p.mu.Unlock()
			return
		}
		task := p.tasks.Remove().(func())
		p.mu.Unlock()

		if r := panics.Try(task); r != nil {
			logger.Error("task panicked", zap.String("pool", p.name), zap.Error(r.AsError()))
		}
	}
}

// Stop rejects new tasks and waits for queued ones to drain.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	return waitCtx(ctx, p.wg.Wait)
}

func waitCtx(ctx context.Context, wait func()) error {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
