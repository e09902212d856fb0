package signal

import "time"

// Func adapts a plain function to a Transducer.
type Func[I, O any] func(s Sample[I]) ([]O, error)

func (f Func[I, O]) Step(s Sample[I]) ([]O, error) {
	return f(s)
}

// Identity emits every input unchanged.
func Identity[T any]() Transducer[T, T] {
	return Func[T, T](func(s Sample[T]) ([]T, error) {
		return []T{s.Value}, nil
	})
}

// Map emits f of every input.
func Map[I, O any](f func(I) O) Transducer[I, O] {
	return Func[I, O](func(s Sample[I]) ([]O, error) {
		return []O{f(s.Value)}, nil
	})
}

type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

type counter[T Number] struct {
	total T
}

func (c *counter[T]) Step(s Sample[T]) ([]T, error) {
	c.total += s.Value
	return []T{c.total}, nil
}

// Counter emits the running sum of its inputs.
func Counter[T Number]() Transducer[T, T] {
	return &counter[T]{}
}

type window[I, O any] struct {
	width  time.Duration
	reduce func([]I) O
	start  time.Duration
	open   bool
	items  []I
}

func (w *window[I, O]) Step(s Sample[I]) ([]O, error) {
	if !w.open {
		w.open = true
		w.start = s.Elapsed
	}
	var out []O
	if s.Elapsed-w.start >= w.width {
		out = []O{w.reduce(w.items)}
		// reduce may keep its argument
		w.items = nil
		// realign on the window grid so skipped windows stay skipped
		w.start += (s.Elapsed - w.start) / w.width * w.width
	}
	w.items = append(w.items, s.Value)
	return out, nil
}

// Window groups inputs into tumbling windows of width, measured on the
// samples' elapsed time, and emits reduce of a window once the first input
// of a later window arrives. Inputs inside an open window emit nothing.
func Window[I, O any](width time.Duration, reduce func([]I) O) Transducer[I, O] {
	if width <= 0 {
		width = time.Second
	}
	return &window[I, O]{width: width, reduce: reduce}
}

// Rate emits the per-second rate of the summed inputs of each window.
func Rate[T Number](width time.Duration) Transducer[T, float64] {
	if width <= 0 {
		width = time.Second
	}
	return Window[T, float64](width, func(items []T) float64 {
		var sum float64
		for _, v := range items {
			sum += float64(v)
		}
		return sum / width.Seconds()
	})
}

// Mean emits the average of each window.
func Mean[T Number](width time.Duration) Transducer[T, float64] {
	return Window[T, float64](width, func(items []T) float64 {
		if len(items) == 0 {
			return 0
		}
		var sum float64
		for _, v := range items {
			sum += float64(v)
		}
		return sum / float64(len(items))
	})
}

type haltAfter[I, O any] struct {
	inner Transducer[I, O]
	left  int
	err   error
}

func (h *haltAfter[I, O]) Step(s Sample[I]) ([]O, error) {
	out, err := h.inner.Step(s)
	if err != nil {
		return out, err
	}
	h.left--
	if h.left <= 0 {
		return out, h.err
	}
	return out, nil
}

// HaltAfter wraps inner and stops it with err after n inputs. A nil err
// halts normally.
func HaltAfter[I, O any](n int, inner Transducer[I, O], err error) Transducer[I, O] {
	if err == nil {
		err = ErrHalt
	}
	return &haltAfter[I, O]{inner: inner, left: n, err: err}
}
