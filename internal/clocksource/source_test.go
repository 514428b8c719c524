package clocksource_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schollz/beatkeeper/internal/clocksource"
	"github.com/schollz/beatkeeper/internal/clocksource/clocktest"
	"github.com/schollz/beatkeeper/internal/types"
)

func TestDetuneCents(t *testing.T) {
	tests := []struct {
		name      string
		semitones int
		rate      float64
		want      float64
	}{
		{"identity", 0, 1, 0},
		{"half speed", 0, 0.5, 1200},
		{"double speed", 0, 2, -1200},
		{"fifth up", 7, 1, 700},
		{"one up slower", 1, 0.75, 100 - 1200*math.Log2(0.75)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, clocksource.DetuneCents(tt.semitones, tt.rate), 1e-9)
		})
	}
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, types.MediaMode, clocksource.ModeFor(0))
	assert.Equal(t, types.BufferMode, clocksource.ModeFor(-2))
	assert.Equal(t, types.BufferMode, clocksource.ModeFor(3))
}

func TestBufferElapsed(t *testing.T) {
	b := clocktest.NewBackend(120)
	s := clocksource.New(b, types.BufferMode, 20*time.Millisecond)

	require.NoError(t, s.Start(10, clocksource.Params{Rate: 0.5, Semitones: 2, Gain: 0.8, FadeIn: 30 * time.Millisecond}))
	assert.True(t, s.Live())
	assert.Equal(t, 1, s.Generation())

	node := b.Last()
	rate, detune, gain := node.Settings()
	assert.Equal(t, 0.5, rate)
	assert.InDelta(t, 200+1200, detune, 1e-9)
	assert.Equal(t, 0.8, gain)
	assert.Equal(t, 30*time.Millisecond, node.FadeIn)

	b.Clock.Step(4 * time.Second)
	assert.InDelta(t, 12.0, s.Elapsed(), 1e-9)

	t.Run("rate change rebases", func(t *testing.T) {
		s.SetParams(clocksource.Params{Rate: 1, Semitones: 2, Gain: 0.8}, 0)
		assert.InDelta(t, 12.0, s.Elapsed(), 1e-9)
		b.Clock.Step(time.Second)
		assert.InDelta(t, 13.0, s.Elapsed(), 1e-9)
		_, detune, _ := node.Settings()
		assert.InDelta(t, 200, detune, 1e-9)
	})

	t.Run("stop keeps position", func(t *testing.T) {
		pos := s.Stop()
		assert.InDelta(t, 13.0, pos, 1e-9)
		assert.False(t, s.Live())
		assert.True(t, node.Stopped())
		assert.False(t, node.HasEndedHandler())
		assert.Equal(t, 20*time.Millisecond, node.FadeOut)
		b.Clock.Step(time.Second)
		assert.InDelta(t, 13.0, s.Elapsed(), 1e-9)
	})
}

func TestMediaElapsedIgnoresDetune(t *testing.T) {
	b := clocktest.NewBackend(120)
	s := clocksource.New(b, types.MediaMode, 20*time.Millisecond)
	require.NoError(t, s.Start(5, clocksource.Params{Rate: 1.5, Semitones: 0, Gain: 1}))

	b.Clock.Step(2 * time.Second)
	assert.InDelta(t, 8.0, s.Elapsed(), 1e-9)
	_, detune, _ := b.Last().Settings()
	assert.Zero(t, detune)
}

func TestEndedCarriesGeneration(t *testing.T) {
	b := clocktest.NewBackend(30)
	s := clocksource.New(b, types.BufferMode, 20*time.Millisecond)
	var got []int
	s.OnEnded(func(gen int) { got = append(got, gen) })

	require.NoError(t, s.Start(0, clocksource.Params{Rate: 1, Gain: 1}))
	first := b.Last()
	require.NoError(t, s.Start(3, clocksource.Params{Rate: 1, Gain: 1}))
	second := b.Last()

	// the replaced node was detached before it was stopped
	first.End()
	assert.Empty(t, got)

	second.End()
	assert.Equal(t, []int{2}, got)
}

func TestDropClampsToDuration(t *testing.T) {
	b := clocktest.NewBackend(30)
	s := clocksource.New(b, types.BufferMode, 20*time.Millisecond)
	require.NoError(t, s.Start(29, clocksource.Params{Rate: 1, Gain: 1}))
	b.Clock.Step(5 * time.Second)
	assert.Equal(t, 30.0, s.Drop())
	assert.False(t, s.Live())
}

func TestStartFailure(t *testing.T) {
	b := clocktest.NewBackend(30)
	b.FailNodes(true)
	s := clocksource.New(b, types.MediaMode, 20*time.Millisecond)
	err := s.Start(0, clocksource.Params{Rate: 1, Gain: 1})
	assert.ErrorIs(t, err, clocktest.ErrNodeUnavailable)
	assert.False(t, s.Live())
}
