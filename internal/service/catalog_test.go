package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"pulsehub/internal/executor"
	"pulsehub/internal/model"
	"pulsehub/internal/signal"
	"pulsehub/pkg/constraints"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memCatalog struct {
	mu   sync.Mutex
	rows map[string]model.TopicRecord
}

func newMemCatalog() *memCatalog {
	return &memCatalog{rows: make(map[string]model.TopicRecord)}
}

func (m *memCatalog) Upsert(_ context.Context, rec *model.TopicRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.rows[rec.TopicID]; ok {
		old.State = rec.State
		m.rows[rec.TopicID] = old
		return nil
	}
	rec.ID = uint64(len(m.rows) + 1)
	m.rows[rec.TopicID] = *rec
	return nil
}

func (m *memCatalog) GetByTopicID(_ context.Context, id string) (*model.TopicRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.rows[id]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *memCatalog) List(_ context.Context, prefix, instance string, offset, limit int) ([]model.TopicRecord, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TopicRecord
	for _, r := range m.rows {
		if strings.HasPrefix(r.Label, prefix) && (instance == "" || r.Instance == instance) {
			out = append(out, r)
		}
	}
	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *memCatalog) ListByInstance(ctx context.Context, instance string) ([]model.TopicRecord, error) {
	out, _, err := m.List(ctx, "", instance, 0, 1<<30)
	return out, err
}

func (m *memCatalog) PingContext(context.Context) error { return nil }

func (m *memCatalog) WithTx(*gorm.DB) any { return m }

func (m *memCatalog) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func newRuntime(t *testing.T) *executor.Runtime {
	t.Helper()
	rt := executor.NewRuntime(executor.DefaultConfig())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rt.Shutdown(ctx)
	})
	return rt
}

func TestCatalogService_RecordsRegistrations(t *testing.T) {
	rt := newRuntime(t)
	repo := newMemCatalog()
	cat := NewCatalogService(repo, rt.IO, "node-1")
	h := newHub(t, WithRuntime(rt), WithRegistrationHook(cat.Hook))
	ctx := testCtx(t)

	key, _ := NewTopic(h, "cat.latency", constraints.Milliseconds, signal.Identity[float64]())
	NewTopic(h, "other", constraints.None, signal.Identity[int]())

	assert.Eventually(t, func() bool { return repo.Len() == 2 }, 2*time.Second, 5*time.Millisecond)

	rec, err := repo.GetByTopicID(ctx, key.Ref().ID.String())
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "cat.latency", rec.Label)
	assert.Equal(t, "ms", rec.Units)
	assert.Equal(t, "float", rec.Kind)
	assert.Equal(t, "node-1", rec.Instance)
	assert.Equal(t, "open", rec.State)

	page, err := cat.List(ctx, "cat.", "", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Data, 1)
	assert.Equal(t, key.Ref().ID.String(), page.Data[0].TopicID)
}

func TestReconciler_FixesMissingAndStaleRows(t *testing.T) {
	h := newHub(t)
	ctx := testCtx(t)
	repo := newMemCatalog()

	dying, pub := NewTopic(h, "dying", constraints.None, signal.HaltAfter(1, signal.Identity[int](), errBoom))
	require.NoError(t, repo.Upsert(ctx, &model.TopicRecord{TopicID: dying.Ref().ID.String(), Label: "dying", Instance: "node-1", State: "open"}))
	NewTopic(h, "unrecorded", constraints.None, signal.Identity[int]())

	_, _, err := pub.PublishSync(ctx, 1)
	require.ErrorIs(t, err, errBoom)

	r := NewReconciler(nil, h, repo, "node-1", time.Minute)
	assert.Equal(t, 2, r.Reconcile(ctx))
	assert.Equal(t, 0, r.Reconcile(ctx))

	rec, err := repo.GetByTopicID(ctx, dying.Ref().ID.String())
	require.NoError(t, err)
	assert.Equal(t, "failed", rec.State)
	assert.Equal(t, 2, repo.Len())
}
