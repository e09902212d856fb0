package signal

import (
	"context"

	"pulsehub/internal/buffer"
)

// Cursor is one discrete reader of a Cell. Cursors are independent of each
// other and of the writer; a Cursor itself is not safe for concurrent use.
type Cursor[O any] struct {
	cell    *Cell[O]
	seq     uint64
	pending []buffer.Entry[O]
	dropped uint64
}

// Next returns the next change in order. When the cursor fell further behind
// than the history retains it resumes at the oldest retained change and counts
// the gap in Dropped. Once the cell is terminal and drained Next returns
// ErrClosed or the failure.
func (r *Cursor[O]) Next(ctx context.Context) (O, error) {
	for {
		if len(r.pending) > 0 {
			e := r.pending[0]
			r.pending = r.pending[1:]
			r.seq = e.Seq
			return e.Value, nil
		}

		s := r.cell.cur.Load()
		if s.seq > r.seq {
			entries, complete := r.cell.history.GetSince(r.seq)
			if len(entries) == 0 {
				r.seq = s.seq
				continue
			}
			if !complete {
				r.dropped += entries[0].Seq - r.seq - 1
			}
			r.pending = entries
			continue
		}

		if s.state != Open {
			var zero O
			return zero, s.terminalErr()
		}

		select {
		case <-s.changed:
		case <-ctx.Done():
			var zero O
			return zero, ctx.Err()
		}
	}
}

// Latest waits for at least one change past the cursor and returns the newest
// one, skipping everything in between.
func (r *Cursor[O]) Latest(ctx context.Context) (O, error) {
	for {
		if len(r.pending) > 0 {
			last := r.pending[len(r.pending)-1]
			r.dropped += uint64(len(r.pending) - 1)
			r.pending = nil
			r.seq = last.Seq
			return last.Value, nil
		}

		s := r.cell.cur.Load()
		if s.seq > r.seq {
			r.dropped += s.seq - r.seq - 1
			r.seq = s.seq
			return s.value, nil
		}

		if s.state != Open {
			var zero O
			return zero, s.terminalErr()
		}

		select {
		case <-s.changed:
		case <-ctx.Done():
			var zero O
			return zero, ctx.Err()
		}
	}
}

// Seq is the sequence of the last change returned.
func (r *Cursor[O]) Seq() uint64 {
	return r.seq
}

// Dropped counts changes this cursor never saw.
func (r *Cursor[O]) Dropped() uint64 {
	return r.dropped
}
