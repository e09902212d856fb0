package repository

import (
	"context"
	"testing"
	"time"

	v1 "pulsehub/pkg/api/v1"
	"pulsehub/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/etcd/api/v3/etcdserverpb"
	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

func init() {
	logger.InitLogger("test")
}

type fakeEtcd struct {
	EtcdInterface
	kvs   []*mvccpb.KeyValue
	watch chan clientv3.WatchResponse
}

func (f *fakeEtcd) Get(_ context.Context, _ string, _ ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	return &clientv3.GetResponse{
		Header: &etcdserverpb.ResponseHeader{Revision: 7},
		Kvs:    f.kvs,
	}, nil
}

func (f *fakeEtcd) Watch(_ context.Context, _ string, _ ...clientv3.OpOption) clientv3.WatchChan {
	return f.watch
}

func kv(label, value string) *mvccpb.KeyValue {
	return &mvccpb.KeyValue{Key: []byte(BuildMetricKey(label)), Value: []byte(value)}
}

func TestMetricRepository_Stream(t *testing.T) {
	fake := &fakeEtcd{
		kvs:   []*mvccpb.KeyValue{kv("db.conns", "12"), kv("db.broken", "{not json")},
		watch: make(chan clientv3.WatchResponse, 1),
	}
	repo := NewMetricRepository(fake)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch, err := repo.Stream(ctx, "db.")
	require.NoError(t, err)

	fake.watch <- clientv3.WatchResponse{Events: []*clientv3.Event{
		{Type: mvccpb.DELETE, Kv: kv("db.conns", "")},
		{Type: mvccpb.PUT, Kv: kv("db.conns", "13")},
	}}
	close(fake.watch)

	var got []v1.RemoteValue
	for rv := range ch {
		got = append(got, rv)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "db.conns", got[0].Label)
	assert.JSONEq(t, "12", string(got[0].Value))
	assert.JSONEq(t, "13", string(got[1].Value))
}
