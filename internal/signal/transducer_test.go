package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at[I any](v I, elapsed time.Duration) Sample[I] {
	return Sample[I]{Value: v, Elapsed: elapsed}
}

func TestCounter(t *testing.T) {
	c := Counter[int]()
	for i, want := range []int{1, 3, 6} {
		out, err := c.Step(at(i+1, 0))
		require.NoError(t, err)
		assert.Equal(t, []int{want}, out)
	}
}

func TestMap(t *testing.T) {
	m := Map(func(d time.Duration) float64 { return float64(d.Milliseconds()) })
	out, err := m.Step(at(1500*time.Millisecond, 0))
	require.NoError(t, err)
	assert.Equal(t, []float64{1500}, out)
}

func TestWindow_BuffersUntilNextWindow(t *testing.T) {
	w := Rate[int](time.Second)

	tests := []struct {
		name    string
		in      Sample[int]
		wantOut []float64
	}{
		{"opens window", at(4, 0), nil},
		{"same window", at(6, 500*time.Millisecond), nil},
		{"closes first window", at(3, 1100*time.Millisecond), []float64{10}},
		{"skips empty windows", at(1, 3500*time.Millisecond), []float64{3}},
		{"inside realigned window", at(1, 3900*time.Millisecond), nil},
		{"closes realigned window", at(0, 4 * time.Second), []float64{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := w.Step(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOut, out)
		})
	}
}

func TestMean(t *testing.T) {
	m := Mean[float64](time.Second)
	_, _ = m.Step(at(1.0, 0))
	_, _ = m.Step(at(3.0, 10*time.Millisecond))
	out, err := m.Step(at(0.0, time.Second))
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, out)
}

func TestHaltAfter(t *testing.T) {
	h := HaltAfter(2, Identity[int](), nil)
	_, err := h.Step(at(1, 0))
	require.NoError(t, err)
	out, err := h.Step(at(2, 0))
	assert.ErrorIs(t, err, ErrHalt)
	assert.Equal(t, []int{2}, out)
}

func TestWindow_ReduceMayKeepItsArgument(t *testing.T) {
	var kept [][]int
	w := Window[int, int](time.Second, func(items []int) int {
		kept = append(kept, items)
		return len(items)
	})
	for _, s := range []Sample[int]{at(1, 0), at(2, time.Second), at(3, 2*time.Second), at(4, 3*time.Second)} {
		_, err := w.Step(s)
		require.NoError(t, err)
	}
	assert.Equal(t, [][]int{{1}, {2}, {3}}, kept)
}
