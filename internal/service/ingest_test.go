package service

import (
	"testing"

	"pulsehub/pkg/constraints"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestor_ReusesTopicPerLabel(t *testing.T) {
	h := newHub(t)
	ctx := testCtx(t)
	in := NewIngestor(h)

	r1, err := in.Publish(ctx, "ing.cpu", constraints.Percent, 10)
	require.NoError(t, err)
	r2, err := in.Publish(ctx, "ing.cpu", constraints.Percent, 20)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)

	dp, err := h.LatestAny(ctx, r1)
	require.NoError(t, err)
	assert.Equal(t, 20.0, dp.Value)
	assert.Equal(t, constraints.Percent, dp.Units)

	// omitted units are accepted for an existing label
	_, err = in.Publish(ctx, "ing.cpu", constraints.None, 30)
	require.NoError(t, err)

	_, err = in.Publish(ctx, "ing.cpu", constraints.Bytes, 40)
	assert.ErrorIs(t, err, ErrUnitsConflict)

	assert.Equal(t, []string{"ing.cpu"}, in.Labels())
	assert.Equal(t, 1, h.Keys().Len())
}
