package service

import (
	"context"
	"errors"
	"time"

	"pulsehub/internal/signal"
	"pulsehub/pkg/logger"

	"go.uber.org/zap"
)

// Publisher feeds raw inputs into one topic. Every input is tagged with the
// time elapsed since the hub started.
type Publisher[I, O any] struct {
	hub   *Hub
	topic *topic[I, O]
}

func (p *Publisher[I, O]) Key() Key[O] {
	return p.topic.key
}

// Publish enqueues v and returns without waiting.
func (p *Publisher[I, O]) Publish(v I) {
	p.PublishFunc(v, nil)
}

// PublishFunc enqueues v; done runs once the engine processed it.
func (p *Publisher[I, O]) PublishFunc(v I, done signal.Completion[O]) {
	start := time.Now()
	in := signal.Sample[I]{Value: v, Elapsed: p.hub.Elapsed()}
	p.hub.observer.RecordPublish()

	p.topic.engine.Update(in, func(out O, produced bool, err error) {
		p.hub.observer.ObserveUpdateLatency(time.Since(start).Seconds())
		if err != nil {
			p.noteTermination(err)
		}
		if done != nil {
			done(out, produced, err)
		}
	})
}

// PublishSync enqueues v and waits until the engine processed it.
func (p *Publisher[I, O]) PublishSync(ctx context.Context, v I) (O, bool, error) {
	type result struct {
		out      O
		produced bool
		err      error
	}
	ch := make(chan result, 1)
	p.PublishFunc(v, func(out O, produced bool, err error) {
		ch <- result{out, produced, err}
	})
	select {
	case r := <-ch:
		return r.out, r.produced, r.err
	case <-ctx.Done():
		var zero O
		return zero, false, ctx.Err()
	}
}

func (p *Publisher[I, O]) noteTermination(err error) {
	p.topic.ended.Do(func() {
		failed := !errors.Is(err, signal.ErrClosed)
		p.hub.observer.TopicTerminated(failed)
		if failed {
			logger.Warn("topic failed",
				zap.String("label", p.topic.key.Label()),
				zap.String("id", p.topic.key.ref.ID.String()),
				zap.Error(err))
			return
		}
		logger.Info("topic closed", zap.String("label", p.topic.key.Label()))
	})
}
