package service

import (
	"context"
	"encoding/json"

	"pulsehub/internal/signal"
	v1 "pulsehub/pkg/api/v1"
	"pulsehub/pkg/constraints"
	"pulsehub/pkg/logger"

	"go.uber.org/zap"
)

// Source is a remote stream of labelled values.
type Source interface {
	Stream(ctx context.Context, prefix string) (<-chan v1.RemoteValue, error)
}

// Mirror republishes everything src streams under prefix into local topics,
// one per remote label. Local topics get fresh keys and Units None; the
// remote identity and units are not carried over. Mirror blocks until the
// stream ends or ctx is done and returns the keys it created by label.
func Mirror(ctx context.Context, h *Hub, src Source, prefix string) (map[string]Key[json.RawMessage], error) {
	ch, err := src.Stream(ctx, prefix)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]Key[json.RawMessage])
	pubs := make(map[string]*Publisher[json.RawMessage, json.RawMessage])
	for {
		select {
		case <-ctx.Done():
			return keys, nil
		case rv, ok := <-ch:
			if !ok {
				logger.Info("mirror stream ended", zap.String("prefix", prefix), zap.Int("topics", len(pubs)))
				return keys, nil
			}
			pub, ok := pubs[rv.Label]
			if !ok {
				var key Key[json.RawMessage]
				key, pub = NewTopic(h, rv.Label, constraints.None, signal.Identity[json.RawMessage]())
				keys[rv.Label] = key
				pubs[rv.Label] = pub
				logger.Info("mirroring remote topic", zap.String("label", rv.Label), zap.String("id", key.ref.ID.String()))
			}
			pub.Publish(rv.Value)
		}
	}
}
