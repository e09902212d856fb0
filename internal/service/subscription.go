package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pulsehub/internal/signal"
	"pulsehub/pkg/logger"

	"go.uber.org/zap"
)

var ErrSubscriptionClosed = errors.New("subscription closed")

// EndReason records why a forwarder stopped.
type EndReason int

const (
	// Cancelled means the subscription was closed by its consumer.
	Cancelled EndReason = iota
	// Completed means the source topic closed normally.
	Completed
	// Failed means the source topic failed.
	Failed
)

func (r EndReason) String() string {
	switch r {
	case Cancelled:
		return "cancelled"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Subscription merges the changes of every topic whose label starts with a
// prefix, including topics registered while it runs. Nothing happens until
// the output is first read; Close tears everything down and the
// subscription cannot be restarted.
//
// There is no per-subscriber queue: a forwarder blocked on a slow consumer
// only delivers the newest value of its topic once unblocked.
type Subscription struct {
	hub    *Hub
	prefix string

	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc
	out    chan Datapoint
	done   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool

	mu   sync.Mutex
	ends map[Ref]EndReason
}

// Subscribe returns an idle subscription to every topic whose label has the
// given prefix. The empty prefix matches everything.
func (h *Hub) Subscribe(prefix string) *Subscription {
	return &Subscription{
		hub:    h,
		prefix: prefix,
		out:    make(chan Datapoint),
		done:   make(chan struct{}),
		ends:   make(map[Ref]EndReason),
	}
}

func (s *Subscription) Prefix() string {
	return s.prefix
}

func (s *Subscription) start() {
	s.once.Do(func() {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.hub.observer.IncSubscriptions()

		s.wg.Add(1)
		if err := s.hub.rt.IO.Go(s.watch); err != nil {
			s.wg.Done()
			s.cancel()
		}
		go func() {
			s.wg.Wait()
			s.hub.observer.DecSubscriptions()
			close(s.out)
			close(s.done)
		}()
	})
}

// C activates the subscription and returns its output. The channel is
// closed once the subscription has torn down.
func (s *Subscription) C() <-chan Datapoint {
	s.start()
	return s.out
}

// Recv activates the subscription and waits for the next datapoint.
func (s *Subscription) Recv(ctx context.Context) (Datapoint, error) {
	s.start()
	select {
	case dp, ok := <-s.out:
		if !ok {
			return Datapoint{}, ErrSubscriptionClosed
		}
		return dp, nil
	case <-s.ctx.Done():
		return Datapoint{}, ErrSubscriptionClosed
	case <-ctx.Done():
		return Datapoint{}, ctx.Err()
	}
}

// Close stops the key watcher and every forwarder. It does not wait for
// them; use Done for that.
func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	started := true
	s.once.Do(func() {
		// never started: leave it permanently closed
		started = false
		s.ctx, s.cancel = context.WithCancel(context.Background())
		close(s.out)
		close(s.done)
	})
	if started {
		s.hub.diagnostic("killing producers for prefix: " + s.prefix)
	}
	s.cancel()
}

// Done is closed when the watcher and all forwarders have exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Ends reports how each forwarder that already stopped ended.
func (s *Subscription) Ends() map[Ref]EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Ref]EndReason, len(s.ends))
	for k, v := range s.ends {
		out[k] = v
	}
	return out
}

func (s *Subscription) watch() {
	defer s.wg.Done()
	seen := 0
	for {
		refs, err := s.hub.keys.Wait(s.ctx, seen)
		if err != nil {
			return
		}
		seen += len(refs)
		for _, ref := range refs {
			if !strings.HasPrefix(ref.Label, s.prefix) {
				continue
			}
			s.spawn(ref)
		}
	}
}

func (s *Subscription) spawn(ref Ref) {
	e, err := s.hub.lookup(ref)
	if err != nil {
		logger.Error("subscription lost a registered key", zap.String("key", ref.String()), zap.Error(err))
		return
	}
	s.wg.Add(1)
	if err := s.hub.rt.IO.Go(func() { s.forward(e) }); err != nil {
		s.wg.Done()
		logger.Warn("forwarder not started", zap.String("key", ref.String()), zap.Error(err))
	}
}

// forward relays e until its cell ends or the subscription is cancelled.
// A topic that already failed still yields its last good value once.
func (s *Subscription) forward(e entry) {
	defer s.wg.Done()

	ref := e.ref()
	md := e.meta()
	cur := e.watch()
	for {
		v, err := cur.Latest(s.ctx)
		if err != nil {
			s.end(ref, err)
			return
		}
		dp := Datapoint{
			Key:        ref,
			Reportable: md.Reportable,
			Units:      md.Units,
			Value:      v,
			Time:       time.Now(),
		}
		select {
		case s.out <- dp:
		case <-s.ctx.Done():
			s.end(ref, s.ctx.Err())
			return
		}
	}
}

func (s *Subscription) end(ref Ref, err error) {
	reason := Failed
	switch {
	case s.ctx.Err() != nil:
		reason = Cancelled
	case errors.Is(err, signal.ErrClosed):
		reason = Completed
	}

	s.mu.Lock()
	s.ends[ref] = reason
	s.mu.Unlock()

	if reason == Failed {
		s.hub.diagnostic(fmt.Sprintf("unsubscribing: %s (failed: %v)", ref.Label, err))
		return
	}
	s.hub.diagnostic(fmt.Sprintf("unsubscribing: %s (%s)", ref.Label, reason))
}
