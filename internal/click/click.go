// Package click decides when the metronome fires and with which accent.
package click

import (
	"math"
	"time"

	"github.com/schollz/beatkeeper/internal/types"
)

const (
	// MinInterval is the floor of the real-time gap between two clicks.
	MinInterval = 50 * time.Millisecond
	// IntervalFraction of a (rate adjusted) beat must pass between clicks.
	IntervalFraction = 0.35

	keyStride = 1000
)

// Accent describes how a click sounds.
type Accent struct {
	Downbeat  bool
	Frequency float64
	Gain      float64
}

var (
	DownbeatAccent = Accent{Downbeat: true, Frequency: 1500, Gain: 1.0}
	BeatAccent     = Accent{Downbeat: false, Frequency: 1000, Gain: 0.6}
)

// AccentFor returns the accent for a beat within a measure.
func AccentFor(beat int) Accent {
	if beat == 0 {
		return DownbeatAccent
	}
	return BeatAccent
}

// Sink plays clicks. Volume is 0..1.
type Sink interface {
	Click(a Accent, volume float64)
}

// Sinks fans a click out to several sinks.
type Sinks []Sink

func (s Sinks) Click(a Accent, volume float64) {
	for _, sink := range s {
		if sink != nil {
			sink.Click(a, volume)
		}
	}
}

// Input is what the scheduler needs to know about one tick.
type Input struct {
	Now          time.Time
	Position     types.BeatPosition
	BeatInterval float64
	Rate         float64
	InSyncRegion bool
	Frozen       bool
}

// Scheduler fires at most one click per beat transition.
type Scheduler struct {
	stride    int
	hasKey    bool
	lastKey   int
	lastFire  time.Time
	wasFrozen bool
}

// New returns a scheduler for the given meter.
func New(beatsPerMeasure int) *Scheduler {
	return &Scheduler{stride: KeyStride(beatsPerMeasure)}
}

// KeyStride is the measure multiplier of a dedupe key. It always exceeds
// the largest beat index so that keys of different beats never collide.
func KeyStride(beatsPerMeasure int) int {
	if beatsPerMeasure >= keyStride {
		return beatsPerMeasure + 1
	}
	return keyStride
}

// Key returns the dedupe key of a position.
func (s *Scheduler) Key(p types.BeatPosition) int {
	return p.Measure*s.stride + p.Beat
}

// MinGap returns the minimum real time between clicks for a beat interval
// (seconds of audio) played at rate.
func MinGap(beatInterval, rate float64) time.Duration {
	if rate <= 0 {
		rate = 1
	}
	secs := IntervalFraction * beatInterval / rate
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return MinInterval
	}
	gap := time.Duration(math.Round(secs * float64(time.Second)))
	if gap < MinInterval {
		return MinInterval
	}
	return gap
}

// Decide reports whether this tick fires a click and with which accent.
func (s *Scheduler) Decide(in Input) (Accent, bool) {
	if !in.InSyncRegion {
		return Accent{}, false
	}
	if in.Frozen {
		s.wasFrozen = true
		return Accent{}, false
	}
	key := s.Key(in.Position)
	if s.wasFrozen {
		// leaving a hold: adopt the current beat without sounding it
		s.wasFrozen = false
		s.hasKey = true
		s.lastKey = key
		return Accent{}, false
	}
	if s.hasKey && key == s.lastKey {
		return Accent{}, false
	}
	if !s.lastFire.IsZero() && in.Now.Sub(s.lastFire) < MinGap(in.BeatInterval, in.Rate) {
		return Accent{}, false
	}
	s.hasKey = true
	s.lastKey = key
	s.lastFire = in.Now
	return AccentFor(in.Position.Beat), true
}

// Reset forgets the last fired beat, e.g. after a seek or wrap.
func (s *Scheduler) Reset() {
	s.hasKey = false
	s.lastKey = 0
	s.lastFire = time.Time{}
	s.wasFrozen = false
}
