package executor

import (
	"context"
	"sync"
	"sync/atomic"

	"pulsehub/pkg/logger"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"
)

// Elastic starts one goroutine per task. It is meant for work that spends
// most of its life blocked on someone else: forwarders, fetches, mirrors.
type Elastic struct {
	log     *zap.Logger
	running atomic.Int64

	// mu orders every wg.Go before Stop's Wait
	mu     sync.Mutex
	closed bool
	wg     conc.WaitGroup
}

func NewElastic(name string) *Elastic {
	return &Elastic{log: logger.Named("executor." + name)}
}

func (e *Elastic) Go(task func()) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrStopped
	}
	e.running.Add(1)
	e.wg.Go(func() {
		defer e.running.Add(-1)
		if r := panics.Try(task); r != nil {
			e.log.Error("task panicked", zap.Error(r.AsError()))
		}
	})
	return nil
}

// Running reports the number of tasks currently in flight.
func (e *Elastic) Running() int64 {
	return e.running.Load()
}

// Stop rejects new tasks and waits for in-flight ones. Tasks are expected to
// watch their own contexts; Stop does not interrupt them.
func (e *Elastic) Stop(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return waitCtx(ctx, e.wg.Wait)
}
