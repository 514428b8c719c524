package beatgrid

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schollz/beatkeeper/internal/types"
)

func TestNewValidation(t *testing.T) {
	_, err := New(0, 4, 0)
	assert.Error(t, err)
	_, err = New(-10, 4, 0)
	assert.Error(t, err)
	_, err = New(120, 0, 0)
	assert.Error(t, err)

	g, err := New(120, 4, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, g.BeatInterval(), 1e-12)
	assert.InDelta(t, 2.0, g.MeasureDuration(), 1e-12)
}

func TestPosition(t *testing.T) {
	g, err := New(120, 4, 1.0)
	require.NoError(t, err)

	testCases := []struct {
		t        float64
		expected types.BeatPosition
	}{
		{0.0, types.BeatPosition{}},
		{0.99, types.BeatPosition{}},
		{1.0, types.BeatPosition{Measure: 0, Beat: 0, Progress: 0}},
		{1.25, types.BeatPosition{Measure: 0, Beat: 0, Progress: 0.5}},
		{2.5, types.BeatPosition{Measure: 0, Beat: 3, Progress: 0}},
		{3.0, types.BeatPosition{Measure: 1, Beat: 0, Progress: 0}},
		{11.0, types.BeatPosition{Measure: 5, Beat: 0, Progress: 0}},
	}
	for _, tc := range testCases {
		pos := g.Position(tc.t)
		assert.Equal(t, tc.expected.Measure, pos.Measure, "t=%v", tc.t)
		assert.Equal(t, tc.expected.Beat, pos.Beat, "t=%v", tc.t)
		assert.InDelta(t, tc.expected.Progress, pos.Progress, 1e-9, "t=%v", tc.t)
	}
}

func TestPositionInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		bpm := 30 + rng.Float64()*250
		bpmeasure := 1 + rng.Intn(12)
		start := rng.Float64() * 5
		g, err := New(bpm, bpmeasure, start)
		require.NoError(t, err)

		lastMeasure := 0
		for step := 0; step < 2000; step++ {
			tm := start + float64(step)*0.0137
			pos := g.Position(tm)
			assert.GreaterOrEqual(t, pos.Beat, 0)
			assert.Less(t, pos.Beat, bpmeasure)
			assert.GreaterOrEqual(t, pos.Progress, 0.0)
			assert.Less(t, pos.Progress, 1.0)
			assert.GreaterOrEqual(t, pos.Measure, lastMeasure, "measure went backwards at t=%v", tm)
			lastMeasure = pos.Measure

			// no hidden state
			assert.Equal(t, pos, g.Position(tm))
		}
	}
}

func TestBeatHelpers(t *testing.T) {
	g, err := New(120, 4, 0)
	require.NoError(t, err)

	assert.Equal(t, -1, g.BeatIndex(-0.1))
	assert.Equal(t, 0, g.BeatIndex(0.2))
	assert.Equal(t, 20, g.BeatIndex(10))
	assert.InDelta(t, 10.0, g.TimeOfBeat(20), 1e-12)
	assert.InDelta(t, 10.0, g.TimeOfMeasure(5), 1e-12)

	t.Run("next boundary is strictly after", func(t *testing.T) {
		assert.InDelta(t, 12.0, g.NextMeasureBoundary(10), 1e-12)
		assert.InDelta(t, 12.0, g.NextMeasureBoundary(10.5), 1e-12)
		assert.InDelta(t, 2.0, g.NextMeasureBoundary(0), 1e-12)
	})

	t.Run("before start", func(t *testing.T) {
		late, err := New(120, 4, 3)
		require.NoError(t, err)
		assert.InDelta(t, 3.0, late.NextMeasureBoundary(1), 1e-12)
	})
}
