package clocksource

import (
	"math"

	"github.com/schollz/beatkeeper/internal/types"
)

// DetuneCents returns the detune that, applied on top of a buffer played at
// rate, leaves a transposition of exactly semitones.
func DetuneCents(semitones int, rate float64) float64 {
	if rate <= 0 {
		return float64(semitones) * 100
	}
	return float64(semitones)*100 - 1200*math.Log2(rate)
}

// ModeFor picks the clock mode that can realize a transposition.
func ModeFor(semitones int) types.ClockMode {
	if semitones == 0 {
		return types.MediaMode
	}
	return types.BufferMode
}
