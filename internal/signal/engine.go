package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"
)

// Sample is one input to a Transducer, tagged with the time elapsed since
// the owning hub started.
type Sample[I any] struct {
	Value   I
	Elapsed time.Duration
}

// Transducer reduces a stream of samples. Step is only ever called from one
// goroutine at a time, so implementations keep their state in plain fields.
// Returning ErrHalt stops the transducer normally; any other error fails it.
// Outputs returned together with an error are applied before stopping.
type Transducer[I, O any] interface {
	Step(s Sample[I]) ([]O, error)
}

// Completion reports the outcome of one Update. produced is false when the
// transducer buffered the input without emitting. err is set when this input
// stopped the engine or the engine had already stopped.
type Completion[O any] func(v O, produced bool, err error)

// Executor is where an Engine drains its mailbox.
type Executor interface {
	Go(task func()) error
}

type update[I, O any] struct {
	in   Sample[I]
	done Completion[O]
}

type engineOptions struct {
	historySize int
	batchSize   int
}

type Option func(*engineOptions)

// WithHistory sets how many past changes discrete readers can catch up on.
func WithHistory(n int) Option {
	return func(o *engineOptions) { o.historySize = n }
}

// WithBatch caps how many updates one drain processes before yielding its
// worker back to the executor.
func WithBatch(n int) Option {
	return func(o *engineOptions) { o.batchSize = n }
}

// Engine serializes concurrent updates to a Transducer. Updates land in an
// unbounded FIFO mailbox; at most one drain task runs at a time, so the
// transducer state is only touched by whichever worker holds the drain.
type Engine[I, O any] struct {
	step  Transducer[I, O]
	cell  *Cell[O]
	exec  Executor
	batch int

	mu        sync.Mutex
	mailbox   *queue.Queue
	scheduled bool
	halted    error
}

func NewEngine[I, O any](t Transducer[I, O], exec Executor, opts ...Option) *Engine[I, O] {
	o := engineOptions{historySize: 256, batchSize: 64}
	for _, opt := range opts {
		opt(&o)
	}
	if o.batchSize <= 0 {
		o.batchSize = 64
	}
	return &Engine[I, O]{
		step:    t,
		cell:    NewCell[O](o.historySize),
		exec:    exec,
		batch:   o.batchSize,
		mailbox: queue.New(),
	}
}

func (e *Engine[I, O]) Cell() *Cell[O] {
	return e.cell
}

// Update enqueues in and returns immediately. done, if not nil, is called
// from the drain worker; callbacks run in submission order.
func (e *Engine[I, O]) Update(in Sample[I], done Completion[O]) {
	e.mu.Lock()
	// a halted engine with a drain still running queues behind the pending
	// updates so callbacks keep submission order
	if e.halted != nil && !e.scheduled {
		err := e.halted
		e.mu.Unlock()
		if done != nil {
			var zero O
			done(zero, false, err)
		}
		return
	}
	e.mailbox.Add(update[I, O]{in: in, done: done})
	start := !e.scheduled
	e.scheduled = true
	e.mu.Unlock()

	if start {
		e.schedule()
	}
}

// UpdateSync enqueues in and waits for its completion.
func (e *Engine[I, O]) UpdateSync(ctx context.Context, in Sample[I]) (O, bool, error) {
	type result struct {
		v        O
		produced bool
		err      error
	}
	ch := make(chan result, 1)
	e.Update(in, func(v O, produced bool, err error) {
		ch <- result{v, produced, err}
	})
	select {
	case r := <-ch:
		return r.v, r.produced, r.err
	case <-ctx.Done():
		var zero O
		return zero, false, ctx.Err()
	}
}

func (e *Engine[I, O]) schedule() {
	if err := e.exec.Go(e.drain); err != nil {
		// executor already shut down; keep the mailbox moving anyway
		go e.drain()
	}
}

func (e *Engine[I, O]) drain() {
	for i := 0; i < e.batch; i++ {
		e.mu.Lock()
		if e.mailbox.Length() == 0 {
			e.scheduled = false
			e.mu.Unlock()
			return
		}
		u := e.mailbox.Remove().(update[I, O])
		e.mu.Unlock()

		e.process(u)
	}
	// yield the worker, keep the scheduled flag
	e.schedule()
}

func (e *Engine[I, O]) process(u update[I, O]) {
	e.mu.Lock()
	halted := e.halted
	e.mu.Unlock()
	if halted != nil {
		if u.done != nil {
			var zero O
			u.done(zero, false, halted)
		}
		return
	}

	out, stepErr := e.apply(u.in)

	var v O
	produced := len(out) > 0
	if produced {
		v = out[len(out)-1]
		e.cell.set(v)
	}

	var term error
	if stepErr != nil {
		term = ErrClosed
		if !errors.Is(stepErr, ErrHalt) {
			term = stepErr
		}
	}

	if term != nil {
		// readers see the terminal state before the halting caller returns;
		// updates still queued fail in order on later iterations of drain
		e.halt(term)
	}

	if u.done != nil {
		u.done(v, produced, term)
	}
}

func (e *Engine[I, O]) apply(in Sample[I]) (out []O, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("transducer panicked: %v", r)
		}
	}()
	return e.step.Step(in)
}

// halt marks the engine and its cell terminal.
func (e *Engine[I, O]) halt(term error) {
	e.mu.Lock()
	e.halted = term
	e.mu.Unlock()

	if errors.Is(term, ErrClosed) {
		e.cell.terminate(nil)
	} else {
		e.cell.terminate(term)
	}
}
