package signal

import (
	"context"
	"errors"
	"sync/atomic"

	"pulsehub/internal/buffer"
)

var (
	// ErrHalt is returned by a Transducer to stop normally.
	ErrHalt = errors.New("transducer halted")
	// ErrClosed is what readers observe once a cell stopped without failure.
	ErrClosed = errors.New("signal closed")
	// ErrEmpty is returned by a continuous read before the first value.
	ErrEmpty = errors.New("signal has no value yet")
)

type State int

const (
	Open State = iota
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// snapshot is immutable once stored. changed is closed when a newer
// snapshot replaces it; terminal snapshots are never replaced.
type snapshot[O any] struct {
	seq     uint64
	value   O
	has     bool
	state   State
	err     error
	changed chan struct{}
}

func (s *snapshot[O]) terminalErr() error {
	if s.state == Failed {
		return s.err
	}
	return ErrClosed
}

// Cell holds the current value of a signal. It has exactly one writer, the
// owning Engine, and any number of readers. Continuous reads are a single
// atomic load; discrete readers hold a Cursor into the change history.
type Cell[O any] struct {
	cur     atomic.Pointer[snapshot[O]]
	history *buffer.RevisionBuffer[O]
	done    chan struct{}
}

func NewCell[O any](historySize int) *Cell[O] {
	c := &Cell[O]{
		history: buffer.NewRevisionBuffer[O](historySize),
		done:    make(chan struct{}),
	}
	c.cur.Store(&snapshot[O]{changed: make(chan struct{})})
	return c
}

// set publishes v. History is written before the snapshot so any reader that
// sees the new sequence also finds it in the ring.
func (c *Cell[O]) set(v O) {
	old := c.cur.Load()
	if old.state != Open {
		return
	}
	seq := old.seq + 1
	c.history.Add(seq, v)
	c.cur.Store(&snapshot[O]{
		seq:     seq,
		value:   v,
		has:     true,
		state:   Open,
		changed: make(chan struct{}),
	})
	close(old.changed)
}

// terminate moves the cell to Closed (err == nil) or Failed. The last value
// and its sequence are kept.
func (c *Cell[O]) terminate(err error) {
	old := c.cur.Load()
	if old.state != Open {
		return
	}
	next := &snapshot[O]{
		seq:     old.seq,
		value:   old.value,
		has:     old.has,
		state:   Closed,
		changed: make(chan struct{}),
	}
	if err != nil {
		next.state = Failed
		next.err = err
	}
	c.cur.Store(next)
	close(old.changed)
	close(c.done)
}

// Value is the continuous read. After a failure the last good value is
// returned together with the failure.
func (c *Cell[O]) Value() (O, error) {
	s := c.cur.Load()
	switch {
	case s.state == Failed:
		return s.value, s.err
	case !s.has && s.state == Closed:
		return s.value, ErrClosed
	case !s.has:
		return s.value, ErrEmpty
	}
	return s.value, nil
}

// Wait blocks until the cell holds a value and returns it. It returns
// ErrClosed if the cell closed without ever producing one.
func (c *Cell[O]) Wait(ctx context.Context) (O, error) {
	for {
		s := c.cur.Load()
		if s.state == Failed {
			return s.value, s.err
		}
		if s.has {
			return s.value, nil
		}
		if s.state == Closed {
			return s.value, ErrClosed
		}
		select {
		case <-s.changed:
		case <-ctx.Done():
			var zero O
			return zero, ctx.Err()
		}
	}
}

func (c *Cell[O]) State() State {
	return c.cur.Load().state
}

// Seq is the number of values set so far.
func (c *Cell[O]) Seq() uint64 {
	return c.cur.Load().seq
}

// Done is closed when the cell reaches a terminal state.
func (c *Cell[O]) Done() <-chan struct{} {
	return c.done
}

// Err is nil while the cell is open.
func (c *Cell[O]) Err() error {
	s := c.cur.Load()
	if s.state == Open {
		return nil
	}
	return s.terminalErr()
}

// Subscribe returns a cursor that yields every value set after this call.
func (c *Cell[O]) Subscribe() *Cursor[O] {
	return &Cursor[O]{cell: c, seq: c.cur.Load().seq}
}

// SubscribeFrom returns a cursor positioned just after seq, which lets a
// reader replay whatever the history still retains.
func (c *Cell[O]) SubscribeFrom(seq uint64) *Cursor[O] {
	return &Cursor[O]{cell: c, seq: seq}
}
