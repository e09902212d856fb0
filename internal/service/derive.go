package service

import (
	"context"
	"fmt"
	"time"

	"pulsehub/internal/signal"
	"pulsehub/pkg/constraints"
	"pulsehub/pkg/logger"

	"go.uber.org/zap"
)

// Reader is the capability a derived metric uses to look at other topics.
type Reader interface {
	LatestAny(ctx context.Context, ref Ref) (Datapoint, error)
}

// Read returns the latest value of key through r, typed as the key says.
func Read[O any](ctx context.Context, r Reader, key Key[O]) (O, error) {
	var zero O
	dp, err := r.LatestAny(ctx, key.Ref())
	if err != nil {
		return zero, err
	}
	v, ok := dp.Value.(O)
	if !ok {
		return zero, fmt.Errorf("%w: %s holds %T", ErrTypeMismatch, key.Ref(), dp.Value)
	}
	return v, nil
}

// Computation produces one value of a derived metric.
type Computation[O any] func(ctx context.Context, r Reader) (O, error)

// Derive registers an identity topic and recomputes fn into it on every
// tick. Each recomputation runs on its own; consecutive equal results are
// all published. Derive returns immediately; the topic stops being fed once
// ctx is done or ticks is closed.
func Derive[T, O any](ctx context.Context, h *Hub, label string, units constraints.Units, ticks <-chan T, fn Computation[O]) Key[O] {
	key, pub := NewTopic(h, label, units, signal.Identity[O]())

	recompute := func() {
		v, err := fn(ctx, h)
		if err != nil {
			logger.Warn("derived metric not recomputed", zap.String("label", label), zap.Error(err))
			return
		}
		pub.Publish(v)
	}

	err := h.rt.IO.Go(func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ticks:
				if !ok {
					return
				}
				if err := h.rt.IO.Go(recompute); err != nil {
					return
				}
			}
		}
	})
	if err != nil {
		logger.Warn("derived metric not started", zap.String("label", label), zap.Error(err))
	}
	return key
}

// Every returns a tick source driven by the hub's timer workers.
func Every(ctx context.Context, h *Hub, interval time.Duration) <-chan time.Time {
	ticks := make(chan time.Time, 1)
	err := h.rt.Timers.Every(ctx, interval, func() {
		select {
		case ticks <- time.Now():
		default:
		}
	})
	if err != nil {
		logger.Warn("tick source not started", zap.Duration("interval", interval), zap.Error(err))
	}
	return ticks
}

// DeriveEvery is Derive driven by Every.
func DeriveEvery[O any](ctx context.Context, h *Hub, label string, units constraints.Units, interval time.Duration, fn Computation[O]) Key[O] {
	return Derive(ctx, h, label, units, Every(ctx, h, interval), fn)
}
