// Package accompaniment plays a drum pattern along with the published beat
// position.
package accompaniment

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/schollz/beatkeeper/internal/click"
	"github.com/schollz/beatkeeper/internal/logger"
	"github.com/schollz/beatkeeper/internal/types"
)

// Voice names a percussion sound.
type Voice string

const (
	Kick  Voice = "kick"
	Snare Voice = "snare"
	HiHat Voice = "hihat"
)

// Voices lists every voice a pattern may use.
var Voices = []Voice{Kick, Snare, HiHat}

// Sink plays percussion hits. Gain is 0..1.
type Sink interface {
	Hit(v Voice, gain float64)
}

// Sinks fans a hit out to several sinks.
type Sinks []Sink

func (s Sinks) Hit(v Voice, gain float64) {
	for _, sink := range s {
		if sink != nil {
			sink.Hit(v, gain)
		}
	}
}

// Hit is one sound of a pattern step.
type Hit struct {
	Voice Voice
	Gain  float64
}

// Pattern returns the hits for a beat of a measure.
type Pattern func(beat, beatsPerMeasure int) []Hit

// BackBeat is kick on the downbeat, snare on the off beats and hi-hat on
// every beat.
func BackBeat(beat, beatsPerMeasure int) []Hit {
	hits := []Hit{{Voice: HiHat, Gain: 0.4}}
	switch {
	case beat == 0:
		hits = append(hits, Hit{Voice: Kick, Gain: 1})
	case beat%2 == 1:
		hits = append(hits, Hit{Voice: Snare, Gain: 0.8})
	}
	return hits
}

// FourOnTheFloor is kick on every beat, snare on the off beats and an
// open hi-hat between.
func FourOnTheFloor(beat, beatsPerMeasure int) []Hit {
	hits := []Hit{{Voice: Kick, Gain: 1}, {Voice: HiHat, Gain: 0.3}}
	if beat%2 == 1 {
		hits = append(hits, Hit{Voice: Snare, Gain: 0.7})
	}
	return hits
}

// Patterns maps pattern names to patterns.
var Patterns = map[string]Pattern{
	"backbeat":          BackBeat,
	"four-on-the-floor": FourOnTheFloor,
}

// PatternNamed looks up a pattern by name.
func PatternNamed(name string) (Pattern, error) {
	p, ok := Patterns[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown drum pattern %q", name)
	}
	return p, nil
}

// lateFraction is how far into a beat a hit may still start.
const lateFraction = 0.25

// Player turns snapshots into hits, once per beat.
type Player struct {
	sink    Sink
	pattern Pattern
	log     *logrus.Entry

	mu        sync.Mutex
	enabled   bool
	volume    float64
	hasKey    bool
	lastKey   int
	wasFrozen bool
}

// New returns a disabled player using BackBeat.
func New(sink Sink) *Player {
	return &Player{
		sink:    sink,
		pattern: BackBeat,
		log:     logger.WithComponent("accompaniment"),
		volume:  0.8,
	}
}

// SetPattern replaces the pattern.
func (p *Player) SetPattern(pattern Pattern) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pattern != nil {
		p.pattern = pattern
	}
}

func (p *Player) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
	p.hasKey = false
	p.log.WithField("enabled", enabled).Debug("accompaniment toggled")
}

func (p *Player) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// SetVolume sets the drum volume, 0..1.
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = clamp01(v)
}

// Observe plays the hits due for s and returns them.
func (p *Player) Observe(s types.Snapshot) []Hit {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled || !s.IsPlaying || !s.IsInSyncRegion {
		p.hasKey = false
		return nil
	}
	if s.IsInFermata {
		p.wasFrozen = true
		return nil
	}
	key := s.CurrentMeasure*click.KeyStride(s.BeatsPerMeasure) + s.CurrentBeat
	if p.wasFrozen {
		p.wasFrozen = false
		p.hasKey, p.lastKey = true, key
		return nil
	}
	if p.hasKey && key == p.lastKey {
		return nil
	}
	p.hasKey, p.lastKey = true, key
	if s.Progress > lateFraction {
		return nil
	}
	hits := p.pattern(s.CurrentBeat, s.BeatsPerMeasure)
	if p.sink != nil {
		for _, h := range hits {
			p.sink.Hit(h.Voice, clamp01(h.Gain*p.volume))
		}
	}
	return hits
}

// Run observes snapshots until ctx is done or snaps is closed.
func (p *Player) Run(ctx context.Context, snaps <-chan types.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-snaps:
			if !ok {
				return
			}
			p.Observe(s)
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
