// Package engine keeps the metronome, loop and published beat position in
// step with a playing recording.
package engine

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/schollz/beatkeeper/internal/beatgrid"
	"github.com/schollz/beatkeeper/internal/click"
	"github.com/schollz/beatkeeper/internal/clocksource"
	"github.com/schollz/beatkeeper/internal/drift"
	"github.com/schollz/beatkeeper/internal/logger"
	"github.com/schollz/beatkeeper/internal/loop"
	"github.com/schollz/beatkeeper/internal/tempomap"
	"github.com/schollz/beatkeeper/internal/types"
)

// Track is everything the engine needs to play one recording.
type Track struct {
	Backend clocksource.Backend
	Timing  Timing
	// Regions and Onsets are optional analysis results.
	Regions []types.TempoRegion
	Onsets  []float64
}

// session is the per-recording playback state. It exists from Load until
// Unload.
type session struct {
	backend      clocksource.Backend
	source       *clocksource.Source
	state        types.PlaybackState
	pausedOffset float64
	// lastElapsed is the most recent known position while playing.
	lastElapsed float64

	grid    beatgrid.Grid
	syncAt  float64
	warp    *tempomap.Warp
	clicks  *click.Scheduler
	drift   *drift.Corrector
	regions []types.TempoRegion

	// derived per tick
	position types.BeatPosition
	frozen   bool
	inSync   bool
	region   *types.TempoRegion
}

// Engine is the beat-synchronization state machine. All methods are safe for
// concurrent use; every mutation is serialized.
type Engine struct {
	cfg   Config
	clock clock.WithTicker
	log   *logrus.Entry
	sink  click.Sink

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	sess *session

	loopRegion  types.LoopRegion
	loopEnabled bool
	wrap        loop.Guard
	// transitioning is set while the playback node is being swapped.
	transitioning bool

	audioVolume     int
	metronomeVolume int
	rate            float64
	transpose       int
	hidden          bool

	pollCancel context.CancelFunc
	pollGen    int

	subs   []chan types.Snapshot
	last   types.Snapshot
	closed bool
}

// New returns an engine with nothing loaded. Clicks go to sink, which may be
// nil.
func New(cfg Config, clk clock.WithTicker, sink click.Sink) *Engine {
	if clk == nil {
		clk = clock.RealClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:             cfg,
		clock:           clk,
		log:             logger.WithComponent("engine"),
		sink:            sink,
		ctx:             ctx,
		cancel:          cancel,
		audioVolume:     100,
		metronomeVolume: 80,
		rate:            1,
	}
	if cfg.HealthInterval > 0 {
		go e.runHealthChecks(ctx, clk.NewTicker(cfg.HealthInterval))
	}
	return e
}

// Load replaces the current recording. Playback starts stopped at zero.
func (e *Engine) Load(t Track) error {
	if t.Backend == nil {
		return fmt.Errorf("load track: no backend")
	}
	grid, err := beatgrid.New(t.Timing.BPM, t.Timing.BeatsPerMeasure, t.Timing.MusicStart)
	if err != nil {
		return fmt.Errorf("load track: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.unloadLocked()

	s := &session{
		backend: t.Backend,
		state:   types.Stopped,
		grid:    grid,
		syncAt:  t.Timing.syncStart(),
		warp:    tempomap.New(t.Regions, grid),
		clicks:  click.New(grid.BeatsPerMeasure),
		drift:   drift.New(e.cfg.Drift, t.Onsets),
		regions: append([]types.TempoRegion(nil), t.Regions...),
	}
	s.source = e.newSourceLocked(s, clocksource.ModeFor(e.transpose))
	e.sess = s
	e.wrap.Reset()
	if r, ok := loop.Normalize(e.loopRegion, t.Backend.Duration()); ok {
		e.loopRegion = r
	} else if e.loopRegion != (types.LoopRegion{}) || e.loopEnabled {
		// the old region does not fit the new recording
		e.log.WithField("loop", e.loopRegion).Info("loop region dropped on load")
		e.loopRegion = types.LoopRegion{}
		e.loopEnabled = false
	}

	fields := logrus.Fields{
		"duration": t.Backend.Duration(),
		"bpm":      grid.BPM,
		"meter":    grid.BeatsPerMeasure,
		"holds":    len(s.warp.Holds()),
		"onsets":   len(t.Onsets),
	}
	e.log.WithFields(fields).Info("track loaded")
	if s.warp.Empty() {
		e.log.Debug("no tempo holds, beat grid runs at constant tempo")
	}
	if !s.drift.Enabled() {
		e.log.Debug("no onsets, drift correction disabled")
	}
	e.updateLocked(0, false)
	return nil
}

// Unload stops playback and drops the recording.
func (e *Engine) Unload() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unloadLocked()
	e.publishLocked()
}

func (e *Engine) unloadLocked() {
	if e.sess == nil {
		return
	}
	e.stopPollersLocked()
	e.sess.source.Stop()
	e.sess = nil
	e.wrap.Reset()
	e.transitioning = false
}

func (e *Engine) newSourceLocked(s *session, mode types.ClockMode) *clocksource.Source {
	src := clocksource.New(s.backend, mode, e.cfg.FadeOut)
	src.OnEnded(func(gen int) { e.handleEnded(src, gen) })
	return src
}

// Close stops playback and all background work, and closes subscriptions.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.unloadLocked()
	e.cancel()
	e.closed = true
	for _, ch := range e.subs {
		close(ch)
	}
	e.subs = nil
}

// Snapshot returns the most recently published state.
func (e *Engine) Snapshot() types.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *Engine) params(fadeIn bool) clocksource.Params {
	p := clocksource.Params{
		Rate:      e.rate,
		Semitones: e.transpose,
		Gain:      float64(e.audioVolume) / 100,
	}
	if fadeIn {
		p.FadeIn = e.cfg.FadeIn
	}
	return p
}

func (e *Engine) durationLocked() float64 {
	if e.sess == nil {
		return 0
	}
	return e.sess.backend.Duration()
}

func (e *Engine) clampTime(t float64) float64 {
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if d := e.durationLocked(); d > 0 && t > d {
		return d
	}
	return t
}

// elapsedLocked is the current playback position in seconds of audio.
func (e *Engine) elapsedLocked() float64 {
	s := e.sess
	if s == nil {
		return 0
	}
	if s.state != types.Playing {
		return s.pausedOffset
	}
	if s.source.Live() {
		return s.source.Elapsed()
	}
	return s.lastElapsed
}

func (e *Engine) snapshotLocked() types.Snapshot {
	snap := types.Snapshot{
		State:              types.Stopped,
		PlaybackRate:       e.rate,
		TransposeSemitones: e.transpose,
		AudioVolume:        e.audioVolume,
		MetronomeVolume:    e.metronomeVolume,
		LoopRegion:         e.loopRegion,
		LoopEnabled:        e.loopEnabled,
		ClockMode:          clocksource.ModeFor(e.transpose),
	}
	s := e.sess
	if s == nil {
		return snap
	}
	snap.State = s.state
	snap.IsPlaying = s.state == types.Playing
	snap.CurrentMeasure = s.position.Measure
	snap.CurrentBeat = s.position.Beat
	snap.Progress = s.position.Progress
	snap.CurrentTime = s.lastElapsed
	snap.Duration = s.backend.Duration()
	snap.IsInSyncRegion = s.inSync
	snap.IsInFermata = s.frozen
	snap.DriftOffset = s.drift.Offset()
	snap.ClockMode = s.source.Mode()
	snap.BPM = s.grid.BPM
	snap.BeatsPerMeasure = s.grid.BeatsPerMeasure
	if s.region != nil {
		r := *s.region
		snap.CurrentTempoRegion = &r
	}
	return snap
}
