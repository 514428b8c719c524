// Package beatgrid maps elapsed time under a constant tempo to musical
// position.
package beatgrid

import (
	"fmt"
	"math"

	"github.com/schollz/beatkeeper/internal/types"
)

// Grid is a constant-tempo beat grid anchored at Start (seconds).
type Grid struct {
	BPM             float64
	BeatsPerMeasure int
	Start           float64
}

// New validates the tempo parameters and returns a grid.
func New(bpm float64, beatsPerMeasure int, start float64) (Grid, error) {
	if !(bpm > 0) || math.IsInf(bpm, 0) {
		return Grid{}, fmt.Errorf("invalid bpm %v: must be positive", bpm)
	}
	if beatsPerMeasure < 1 {
		return Grid{}, fmt.Errorf("invalid beats per measure %d: must be at least 1", beatsPerMeasure)
	}
	return Grid{BPM: bpm, BeatsPerMeasure: beatsPerMeasure, Start: start}, nil
}

// BeatInterval returns the duration of one beat in seconds.
func (g Grid) BeatInterval() float64 {
	return 60.0 / g.BPM
}

// MeasureDuration returns the duration of one measure in seconds.
func (g Grid) MeasureDuration() float64 {
	return g.BeatInterval() * float64(g.BeatsPerMeasure)
}

// Position converts t into a measure, beat and progress through the beat.
// Times before Start map to the zero position.
func (g Grid) Position(t float64) types.BeatPosition {
	if t < g.Start {
		return types.BeatPosition{}
	}
	ratio := (t - g.Start) / g.BeatInterval()
	beats := math.Floor(ratio)
	progress := ratio - beats
	// guard against ratio landing a hair below 1 due to float error
	if progress >= 1 {
		progress = 0
		beats++
	}
	n := int(beats)
	return types.BeatPosition{
		Measure:  n / g.BeatsPerMeasure,
		Beat:     n % g.BeatsPerMeasure,
		Progress: progress,
	}
}

// BeatIndex returns the number of whole beats elapsed since Start, or -1
// before Start.
func (g Grid) BeatIndex(t float64) int {
	if t < g.Start {
		return -1
	}
	return int(math.Floor((t - g.Start) / g.BeatInterval()))
}

// TimeOfBeat returns the time at which beat n begins.
func (g Grid) TimeOfBeat(n int) float64 {
	return g.Start + float64(n)*g.BeatInterval()
}

// TimeOfMeasure returns the time at which measure m begins.
func (g Grid) TimeOfMeasure(m int) float64 {
	return g.Start + float64(m)*g.MeasureDuration()
}

// NextMeasureBoundary returns the first measure boundary strictly after t.
// Before Start the first boundary is Start itself.
func (g Grid) NextMeasureBoundary(t float64) float64 {
	if t < g.Start {
		return g.Start
	}
	m := math.Floor((t-g.Start)/g.MeasureDuration()) + 1
	return g.Start + m*g.MeasureDuration()
}
