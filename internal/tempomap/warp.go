// Package tempomap converts raw playback time into beat-grid time by
// collapsing fermata and rubato holds from a tempo-region timeline.
package tempomap

import (
	"sort"

	"github.com/schollz/beatkeeper/internal/beatgrid"
	"github.com/schollz/beatkeeper/internal/types"
)

// MinHoldDuration is the shortest fermata/rubato region that freezes the
// grid. Shorter holds are absorbed by the steady pulse.
const MinHoldDuration = 1.5

// Hold is a significant fermata/rubato resolved against the grid.
type Hold struct {
	Region types.TempoRegion
	// Boundary is the grid time of the first measure boundary strictly
	// after the hold starts.
	Boundary float64
	// FreezeAt is the audio time at which the grid reaches Boundary.
	FreezeAt float64
	// Offset is the cumulative grid-to-audio offset once this hold ends.
	Offset float64
}

// Frozen reports whether the hold actually freezes the grid: the measure in
// progress has to finish before the hold is over.
func (h Hold) Frozen() bool {
	return h.FreezeAt < h.Region.EndTime
}

// Warp is an immutable time warp built from a tempo-region timeline.
type Warp struct {
	grid    beatgrid.Grid
	regions []types.TempoRegion
	holds   []Hold
}

// New builds a warp. A nil or empty region list yields the identity warp.
func New(regions []types.TempoRegion, grid beatgrid.Grid) *Warp {
	sorted := make([]types.TempoRegion, len(regions))
	copy(sorted, regions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartTime < sorted[j].StartTime
	})

	w := &Warp{grid: grid, regions: sorted}
	offset := 0.0
	for _, r := range sorted {
		if !r.Type.IsHold() || r.Duration() < MinHoldDuration {
			continue
		}
		boundary := grid.NextMeasureBoundary(r.StartTime - offset)
		h := Hold{
			Region:   r,
			Boundary: boundary,
			FreezeAt: boundary + offset,
			Offset:   offset,
		}
		if h.Frozen() {
			offset += r.EndTime - h.FreezeAt
		}
		h.Offset = offset
		w.holds = append(w.holds, h)
	}
	return w
}

// Holds returns the significant holds in chronological order.
func (w *Warp) Holds() []Hold {
	out := make([]Hold, len(w.holds))
	copy(out, w.holds)
	return out
}

// Adjust returns the beat-grid time for raw elapsed time t and whether the
// grid is frozen inside a hold at t.
func (w *Warp) Adjust(t float64) (float64, bool) {
	offset := 0.0
	for _, h := range w.holds {
		if t < h.FreezeAt {
			return t - offset, false
		}
		if !h.Frozen() {
			continue
		}
		if t < h.Region.EndTime {
			return h.Boundary, true
		}
		offset = h.Offset
	}
	return t - offset, false
}

// Inverse returns the earliest raw time whose grid time is g.
func (w *Warp) Inverse(g float64) float64 {
	offset := 0.0
	for _, h := range w.holds {
		if !h.Frozen() {
			continue
		}
		if g <= h.Boundary {
			return g + offset
		}
		offset = h.Offset
	}
	return g + offset
}

// Region returns the tempo region containing t, or nil.
func (w *Warp) Region(t float64) *types.TempoRegion {
	i := sort.Search(len(w.regions), func(i int) bool {
		return w.regions[i].EndTime > t
	})
	if i < len(w.regions) && w.regions[i].Contains(t) {
		r := w.regions[i]
		return &r
	}
	return nil
}

// Empty reports whether the warp is the identity.
func (w *Warp) Empty() bool {
	return len(w.holds) == 0
}
