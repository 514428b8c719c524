// Package loop decides when playback has reached a loop boundary and where
// the skip commands land.
package loop

import (
	"math"

	"github.com/schollz/beatkeeper/internal/types"
)

const (
	// WrapEpsilon is how early before the loop end a wrap is triggered, so
	// the poll interval never overshoots the boundary audibly.
	WrapEpsilon = 0.05
	// SkipPad keeps skip-to-end short of the very end so there is something
	// left to hear.
	SkipPad = 0.25
)

// ShouldWrap reports whether elapsed has reached the end of r.
func ShouldWrap(elapsed float64, r types.LoopRegion) bool {
	if !r.Valid() {
		return false
	}
	return elapsed >= r.End-WrapEpsilon
}

// Normalize clamps r to [0, duration]. It returns false when the result is
// not a usable region.
func Normalize(r types.LoopRegion, duration float64) (types.LoopRegion, bool) {
	if math.IsNaN(r.Start) || math.IsNaN(r.End) {
		return types.LoopRegion{}, false
	}
	if r.Start < 0 {
		r.Start = 0
	}
	if duration > 0 && r.End > duration {
		r.End = duration
	}
	if !r.Valid() {
		return types.LoopRegion{}, false
	}
	return r, true
}

// SkipTargets returns where skip-to-start and skip-to-end land. With looping
// enabled these are the loop bounds, otherwise the whole track.
func SkipTargets(enabled bool, r types.LoopRegion, duration float64) (start, end float64) {
	if enabled && r.Valid() {
		return r.Start, math.Max(r.Start, r.End-SkipPad)
	}
	return 0, math.Max(0, duration-SkipPad)
}

// Guard is the single in-flight flag around a wrap. A wrap observed while
// another is in flight is dropped.
type Guard struct {
	inFlight bool
	// target is the position the last wrap jumped to. It stays set until a
	// tick reports a position back inside the loop.
	target *float64
}

// TryBegin claims the guard. It returns false when a wrap is in flight or the
// previous wrap has not been observed to land yet.
func (g *Guard) TryBegin() bool {
	if g.inFlight || g.target != nil {
		return false
	}
	g.inFlight = true
	return true
}

// Done releases the guard and records where the wrap landed.
func (g *Guard) Done(target float64) {
	g.inFlight = false
	g.target = &target
}

// Observe clears the pending target once elapsed is back inside r.
func (g *Guard) Observe(elapsed float64, r types.LoopRegion) {
	if g.target != nil && !ShouldWrap(elapsed, r) {
		g.target = nil
	}
}

// Pending returns the target of a wrap that has not landed yet.
func (g *Guard) Pending() (float64, bool) {
	if g.target == nil {
		return 0, false
	}
	return *g.target, true
}

// InFlight reports whether a wrap is being performed right now.
func (g *Guard) InFlight() bool {
	return g.inFlight
}

// Reset forgets any pending wrap, e.g. after a seek.
func (g *Guard) Reset() {
	g.inFlight = false
	g.target = nil
}
