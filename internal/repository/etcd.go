package repository

import (
	"context"
	"encoding/json"
	"strings"

	v1 "pulsehub/pkg/api/v1"
	"pulsehub/pkg/logger"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// MetricRootPrefix is where remote metric values live in etcd. The label is
// the rest of the key.
const MetricRootPrefix = "/pulsehub/metrics/"

func BuildMetricKey(label string) string {
	return MetricRootPrefix + label
}

type EtcdInterface interface {
	clientv3.KV
	clientv3.Watcher
	Close() error
}

// MetricRepository exposes etcd as a remote metric source.
type MetricRepository struct {
	client EtcdInterface
}

func NewMetricRepository(client EtcdInterface) *MetricRepository {
	return &MetricRepository{client: client}
}

// PutValue stores the JSON encoded value of label.
func (r *MetricRepository) PutValue(ctx context.Context, label string, raw []byte) (int64, error) {
	resp, err := r.client.Put(ctx, BuildMetricKey(label), string(raw))
	if err != nil {
		return 0, err
	}
	return resp.Header.Revision, nil
}

func (r *MetricRepository) GetWithRevision(ctx context.Context, prefix string) (*clientv3.GetResponse, error) {
	return r.client.Get(ctx, prefix, clientv3.WithPrefix())
}

func (r *MetricRepository) WatchFrom(ctx context.Context, prefix string, startRev int64) clientv3.WatchChan {
	return r.client.Watch(ctx, prefix, clientv3.WithPrefix(), clientv3.WithRev(startRev))
}

func (r *MetricRepository) Health(ctx context.Context) error {
	_, err := r.client.Get(ctx, "health_check")
	return err
}

// Stream yields the current value of every metric under prefix, then every
// later put. Deletes and non-JSON values are ignored. The channel closes when ctx is done or the
// watch is canceled.
func (r *MetricRepository) Stream(ctx context.Context, prefix string) (<-chan v1.RemoteValue, error) {
	full := BuildMetricKey(prefix)
	resp, err := r.GetWithRevision(ctx, full)
	if err != nil {
		return nil, err
	}
	// avoid missing updates between Get and Watch
	rev0 := resp.Header.Revision

	out := make(chan v1.RemoteValue, 64)
	go func() {
		defer close(out)
		send := func(kv *mvccpb.KeyValue) bool {
			if !json.Valid(kv.Value) {
				logger.Warn("skipping non-JSON metric value", zap.ByteString("key", kv.Key))
				return true
			}
			rv := v1.RemoteValue{
				Label: strings.TrimPrefix(string(kv.Key), MetricRootPrefix),
				Value: append(json.RawMessage(nil), kv.Value...),
			}
			select {
			case out <- rv:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for _, kv := range resp.Kvs {
			if !send(kv) {
				return
			}
		}
		logger.Info("etcd metric snapshot sent", zap.String("prefix", full), zap.Int("count", len(resp.Kvs)), zap.Int64("rev", rev0))

		watchChan := r.WatchFrom(ctx, full, rev0+1)
		for {
			select {
			case <-ctx.Done():
				return
			case wresp, ok := <-watchChan:
				if !ok {
					return
				}
				if wresp.Canceled {
					logger.Warn("etcd metric watch canceled", zap.Error(wresp.Err()))
					return
				}
				for _, ev := range wresp.Events {
					if ev.Type == mvccpb.DELETE {
						continue
					}
					if !send(ev.Kv) {
						return
					}
				}
			}
		}
	}()
	return out, nil
}
