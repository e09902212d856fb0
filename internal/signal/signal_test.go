package signal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pulsehub/internal/executor"
	"pulsehub/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitLogger("test")
}

func newPool(t *testing.T) *executor.Pool {
	t.Helper()
	p := executor.NewPool("test", 4)
	t.Cleanup(func() {
		_ = p.Stop(context.Background())
	})
	return p
}

func sample[I any](v I) Sample[I] {
	return Sample[I]{Value: v}
}

func TestEngine_IdentityScenario(t *testing.T) {
	e := NewEngine(Identity[int](), newPool(t))
	cur := e.Cell().Subscribe()

	_, err := e.Cell().Value()
	assert.ErrorIs(t, err, ErrEmpty)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, v := range []int{10, 20, 30} {
		got, produced, err := e.UpdateSync(ctx, sample(v))
		require.NoError(t, err)
		assert.True(t, produced)
		assert.Equal(t, v, got)
	}

	v, err := e.Cell().Value()
	require.NoError(t, err)
	assert.Equal(t, 30, v)

	var seen []int
	for i := 0; i < 3; i++ {
		v, err := cur.Next(ctx)
		require.NoError(t, err)
		seen = append(seen, v)
	}
	assert.Equal(t, []int{10, 20, 30}, seen)
	assert.Equal(t, uint64(0), cur.Dropped())
}

type recorder struct {
	mu    sync.Mutex
	order []int
	total int
}

func (r *recorder) Step(s Sample[int]) ([]int, error) {
	r.mu.Lock()
	r.order = append(r.order, s.Value)
	r.mu.Unlock()
	r.total += s.Value
	return []int{r.total}, nil
}

func TestEngine_ConcurrentUpdatesAreSerialized(t *testing.T) {
	rec := &recorder{}
	e := NewEngine[int, int](rec, newPool(t), WithBatch(7))

	const producers = 16
	const perProducer = 200

	var cbMu sync.Mutex
	var callbackOrder []int
	var wg sync.WaitGroup
	wg.Add(producers * perProducer)

	for p := 0; p < producers; p++ {
		go func(p int) {
			for i := 0; i < perProducer; i++ {
				v := p*1000 + i
				e.Update(sample(v), func(_ int, produced bool, err error) {
					cbMu.Lock()
					callbackOrder = append(callbackOrder, v)
					cbMu.Unlock()
					assert.True(t, produced)
					assert.NoError(t, err)
					wg.Done()
				})
			}
		}(p)
	}
	wg.Wait()

	rec.mu.Lock()
	order := append([]int(nil), rec.order...)
	rec.mu.Unlock()

	require.Len(t, order, producers*perProducer)
	// completions fire in the order the transducer saw the inputs
	assert.Equal(t, order, callbackOrder)

	// each producer's own inputs were applied in its submission order
	last := make(map[int]int)
	for _, v := range order {
		p, i := v/1000, v%1000
		if prev, ok := last[p]; ok {
			assert.Greater(t, i, prev, "producer %d reordered", p)
		}
		last[p] = i
	}

	// replaying the observed order single-threaded gives the same value
	ref := 0
	for _, v := range order {
		ref += v
	}
	got, err := e.Cell().Value()
	require.NoError(t, err)
	assert.Equal(t, ref, got)
}

func TestEngine_FailureIsSticky(t *testing.T) {
	boom := errors.New("boom")
	e := NewEngine(HaltAfter(3, Identity[int](), boom), newPool(t))
	cur := e.Cell().Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 1; i <= 2; i++ {
		_, _, err := e.UpdateSync(ctx, sample(i))
		require.NoError(t, err)
	}
	v, _, err := e.UpdateSync(ctx, sample(3))
	assert.Equal(t, 3, v)
	assert.ErrorIs(t, err, boom)

	last, err := e.Cell().Value()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, last)
	assert.Equal(t, Failed, e.Cell().State())
	assert.ErrorIs(t, e.Cell().Err(), boom)

	select {
	case <-e.Cell().Done():
	default:
		t.Fatal("done channel should be closed")
	}

	for i := 1; i <= 3; i++ {
		got, err := cur.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}
	_, err = cur.Next(ctx)
	assert.ErrorIs(t, err, boom)

	// further updates are no-ops that report the failure
	_, produced, err := e.UpdateSync(ctx, sample(4))
	assert.False(t, produced)
	assert.ErrorIs(t, err, boom)
	last, _ = e.Cell().Value()
	assert.Equal(t, 3, last)

	_, err = e.Cell().Wait(ctx)
	assert.ErrorIs(t, err, boom)
}

func TestEngine_NormalHaltCloses(t *testing.T) {
	e := NewEngine(HaltAfter(1, Identity[string](), nil), newPool(t))
	cur := e.Cell().Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := e.UpdateSync(ctx, sample("only"))
	assert.ErrorIs(t, err, ErrClosed)

	v, err := e.Cell().Value()
	require.NoError(t, err)
	assert.Equal(t, "only", v)
	assert.Equal(t, Closed, e.Cell().State())

	got, err := cur.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "only", got)
	_, err = cur.Next(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEngine_UpdatesAfterHaltCompleteInOrder(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	e := NewEngine(Func[int, int](func(s Sample[int]) ([]int, error) {
		if s.Value == 0 {
			close(entered)
			<-release
			return []int{0}, ErrHalt
		}
		return []int{s.Value}, nil
	}), newPool(t))

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
		wg.Done()
	}

	wg.Add(3)
	e.Update(sample(0), func(int, bool, error) {
		e.Update(sample(2), func(_ int, _ bool, err error) {
			assert.ErrorIs(t, err, ErrClosed)
			record("late")
		})
		record("halting")
	})
	<-entered
	e.Update(sample(1), func(_ int, _ bool, err error) {
		assert.ErrorIs(t, err, ErrClosed)
		record("queued")
	})
	close(release)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("completions did not arrive")
	}
	assert.Equal(t, []string{"halting", "queued", "late"}, order)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := e.UpdateSync(ctx, sample(3))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestEngine_PanicFailsTopic(t *testing.T) {
	e := NewEngine[int, int](Func[int, int](func(Sample[int]) ([]int, error) {
		panic("bad transducer")
	}), newPool(t))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := e.UpdateSync(ctx, sample(1))
	require.Error(t, err)
	assert.Equal(t, Failed, e.Cell().State())
}

func TestCell_WaitForFirstValue(t *testing.T) {
	e := NewEngine(Identity[int](), newPool(t))

	got := make(chan int, 1)
	go func() {
		v, err := e.Cell().Wait(context.Background())
		if err == nil {
			got <- v
		}
	}()

	e.Update(sample(42), nil)
	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait never returned")
	}
}

func TestCell_WaitOnClosedWithoutValue(t *testing.T) {
	drop := Func[int, int](func(Sample[int]) ([]int, error) { return nil, ErrHalt })
	e := NewEngine[int, int](drop, newPool(t))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, produced, _ := e.UpdateSync(ctx, sample(1))
	assert.False(t, produced)
	_, err := e.Cell().Wait(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = e.Cell().Value()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCursor_FallsBehindHistory(t *testing.T) {
	e := NewEngine(Identity[int](), newPool(t), WithHistory(4))
	cur := e.Cell().Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 1; i <= 10; i++ {
		_, _, err := e.UpdateSync(ctx, sample(i))
		require.NoError(t, err)
	}

	var seen []int
	for i := 0; i < 4; i++ {
		v, err := cur.Next(ctx)
		require.NoError(t, err)
		seen = append(seen, v)
	}
	assert.Equal(t, []int{7, 8, 9, 10}, seen)
	assert.Equal(t, uint64(6), cur.Dropped())
}

func TestCursor_LatestConflates(t *testing.T) {
	e := NewEngine(Identity[int](), newPool(t))
	cur := e.Cell().Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 1; i <= 5; i++ {
		_, _, err := e.UpdateSync(ctx, sample(i))
		require.NoError(t, err)
	}
	v, err := cur.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.Equal(t, uint64(4), cur.Dropped())

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	_, err = cur.Latest(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCursors_AreIndependent(t *testing.T) {
	e := NewEngine(Identity[int](), newPool(t))
	a := e.Cell().Subscribe()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := e.UpdateSync(ctx, sample(1))
	require.NoError(t, err)
	b := e.Cell().Subscribe()
	_, _, err = e.UpdateSync(ctx, sample(2))
	require.NoError(t, err)

	v, err := a.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = b.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	v, err = a.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	replay := e.Cell().SubscribeFrom(0)
	v, err = replay.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}
