package service

import (
	"context"
	"sync"
)

// KeyLog is the append-only list of every key the hub has registered, in
// creation order. Keys are never removed, even when their topic fails.
type KeyLog struct {
	mu      sync.RWMutex
	keys    []Ref
	changed chan struct{}
}

func newKeyLog() *KeyLog {
	return &KeyLog{changed: make(chan struct{})}
}

func (l *KeyLog) append(r Ref) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, r)
	close(l.changed)
	l.changed = make(chan struct{})
}

func (l *KeyLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.keys)
}

// Snapshot returns a copy of the current list.
func (l *KeyLog) Snapshot() []Ref {
	return l.Since(0)
}

// Since returns the keys registered after the first n.
func (l *KeyLog) Since(n int) []Ref {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n >= len(l.keys) {
		return nil
	}
	out := make([]Ref, len(l.keys)-n)
	copy(out, l.keys[n:])
	return out
}

// Wait blocks until more than n keys exist and returns the new ones.
func (l *KeyLog) Wait(ctx context.Context, n int) ([]Ref, error) {
	for {
		l.mu.RLock()
		if len(l.keys) > n {
			out := make([]Ref, len(l.keys)-n)
			copy(out, l.keys[n:])
			l.mu.RUnlock()
			return out, nil
		}
		changed := l.changed
		l.mu.RUnlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
