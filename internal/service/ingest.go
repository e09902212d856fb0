package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pulsehub/internal/signal"
	"pulsehub/pkg/constraints"
	"pulsehub/pkg/logger"

	"go.uber.org/zap"
)

var ErrUnitsConflict = errors.New("label already registered with different units")

// Ingestor maps externally pushed labels onto float64 topics, creating each
// topic on first use.
type Ingestor struct {
	hub *Hub

	mu   sync.RWMutex
	pubs map[string]*Publisher[float64, float64]
}

func NewIngestor(h *Hub) *Ingestor {
	return &Ingestor{
		hub:  h,
		pubs: make(map[string]*Publisher[float64, float64]),
	}
}

func (i *Ingestor) publisher(ctx context.Context, label string, units constraints.Units) (*Publisher[float64, float64], error) {
	i.mu.RLock()
	pub, ok := i.pubs[label]
	i.mu.RUnlock()
	if !ok {
		i.mu.Lock()
		pub, ok = i.pubs[label]
		if !ok {
			_, pub = NewTopic(i.hub, label, units, signal.Identity[float64]())
			i.pubs[label] = pub
			logger.Info("ingest topic created",
				zap.String("label", label),
				zap.String("units", string(units)),
				zap.String("trace_id", TraceID(ctx)))
		}
		i.mu.Unlock()
	}
	if units != constraints.None && pub.topic.md.Units != units {
		return nil, fmt.Errorf("%w: %s is %s", ErrUnitsConflict, label, pub.topic.md.Units)
	}
	return pub, nil
}

// Publish pushes v to the topic for label and waits until it is applied.
func (i *Ingestor) Publish(ctx context.Context, label string, units constraints.Units, v float64) (Ref, error) {
	pub, err := i.publisher(ctx, label, units)
	if err != nil {
		return Ref{}, err
	}
	if _, _, err := pub.PublishSync(ctx, v); err != nil {
		return pub.Key().Ref(), err
	}
	return pub.Key().Ref(), nil
}

// Labels returns the labels created through this ingestor.
func (i *Ingestor) Labels() []string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]string, 0, len(i.pubs))
	for label := range i.pubs {
		out = append(out, label)
	}
	return out
}
