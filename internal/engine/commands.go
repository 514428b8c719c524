package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/schollz/beatkeeper/internal/clocksource"
	"github.com/schollz/beatkeeper/internal/loop"
	"github.com/schollz/beatkeeper/internal/types"
)

// MaxTranspose bounds SetTranspose in semitones either way.
const MaxTranspose = 12

// Play starts playback from the stored position.
func (e *Engine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playLocked()
}

func (e *Engine) playLocked() {
	s := e.sess
	if s == nil || s.state == types.Playing {
		return
	}
	e.resumeBackendLocked()
	s.clicks.Reset()
	s.drift.Reset()
	e.wrap.Reset()

	s.state = types.Playing
	s.lastElapsed = s.pausedOffset
	if err := s.source.Start(s.pausedOffset, e.params(true)); err != nil {
		// the health check respawns the node
		e.log.WithError(err).Warn("could not start playback node")
	}
	e.startPollersLocked()
	e.log.WithField("at", s.pausedOffset).Debug("play")
	e.updateLocked(s.pausedOffset, true)
}

// Pause stops playback, keeping the exact position for a gapless resume.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauseLocked()
	e.refreshLocked()
}

func (e *Engine) pauseLocked() {
	s := e.sess
	if s == nil || s.state != types.Playing {
		return
	}
	e.stopPollersLocked()
	pos := s.lastElapsed
	if s.source.Live() {
		pos = s.source.Stop()
	}
	s.pausedOffset = e.clampTime(pos)
	s.lastElapsed = s.pausedOffset
	s.state = types.Paused
	e.wrap.Reset()
	e.log.WithField("at", s.pausedOffset).Debug("pause")
}

// Stop halts playback and rewinds to zero.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	s := e.sess
	if s == nil {
		return
	}
	e.stopPollersLocked()
	s.source.Stop()
	s.state = types.Stopped
	s.pausedOffset = 0
	s.lastElapsed = 0
	s.clicks.Reset()
	e.wrap.Reset()
	e.log.Debug("stop")
	e.updateLocked(0, false)
}

// TogglePlay pauses when playing and plays otherwise.
func (e *Engine) TogglePlay() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return
	}
	if e.sess.state == types.Playing {
		e.pauseLocked()
		e.refreshLocked()
		return
	}
	e.playLocked()
}

// Seek moves to t, clamped to the recording, keeping the playback state.
func (e *Engine) Seek(t float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seekLocked(t)
}

func (e *Engine) seekLocked(t float64) {
	s := e.sess
	if s == nil {
		return
	}
	t = e.clampTime(t)
	e.wrap.Reset()
	if s.state == types.Playing {
		e.pauseLocked()
		s.pausedOffset = t
		e.playLocked()
		return
	}
	s.pausedOffset = t
	s.lastElapsed = t
	s.clicks.Reset()
	e.updateLocked(t, false)
}

// SetPlaybackRate changes the speed. Rates outside types.SupportedRates are
// ignored.
func (e *Engine) SetPlaybackRate(rate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !types.IsSupportedRate(rate) {
		e.log.WithField("rate", rate).Debug("ignoring unsupported rate")
		return
	}
	e.rate = rate
	if e.sess != nil {
		e.sess.source.SetParams(e.params(false), e.cfg.VolumeRamp)
	}
	e.publishLocked()
}

// SetTranspose sets the transposition in semitones. Crossing zero switches
// between the pitch-preserving and the detunable clock mode without a gap.
func (e *Engine) SetTranspose(semitones int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if semitones > MaxTranspose {
		semitones = MaxTranspose
	}
	if semitones < -MaxTranspose {
		semitones = -MaxTranspose
	}
	e.transpose = semitones
	s := e.sess
	if s == nil {
		e.publishLocked()
		return
	}
	mode := clocksource.ModeFor(semitones)
	if mode == s.source.Mode() {
		s.source.SetParams(e.params(false), e.cfg.VolumeRamp)
		e.publishLocked()
		return
	}
	e.switchModeLocked(mode)
	e.publishLocked()
}

func (e *Engine) switchModeLocked(mode types.ClockMode) {
	s := e.sess
	old := s.source
	if !old.Live() {
		s.source = e.newSourceLocked(s, mode)
		return
	}
	e.transitioning = true
	defer func() { e.transitioning = false }()

	pos := e.clampTime(old.Stop())
	s.source = e.newSourceLocked(s, mode)
	s.lastElapsed = pos
	if err := s.source.Start(pos, e.params(true)); err != nil {
		e.log.WithError(err).Warn("could not start node after mode switch")
	}
	e.log.WithFields(logrus.Fields{"mode": mode.String(), "at": pos}).Debug("clock mode switched")
}

// SetAudioVolume sets the recording volume, 0..100.
func (e *Engine) SetAudioVolume(v int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.audioVolume = clampVolume(v)
	if e.sess != nil {
		e.sess.source.SetGain(float64(e.audioVolume)/100, e.cfg.VolumeRamp)
	}
	e.publishLocked()
}

// SetMetronomeVolume sets the click volume, 0..100.
func (e *Engine) SetMetronomeVolume(v int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metronomeVolume = clampVolume(v)
	e.publishLocked()
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// SkipToStart seeks to the loop start when looping, else to zero.
func (e *Engine) SkipToStart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	start, _ := loop.SkipTargets(e.loopEnabled, e.loopRegion, e.durationLocked())
	e.seekLocked(start)
}

// SkipToEnd seeks just short of the loop end when looping, else just short
// of the end of the recording.
func (e *Engine) SkipToEnd() {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, end := loop.SkipTargets(e.loopEnabled, e.loopRegion, e.durationLocked())
	e.seekLocked(end)
}

// SeekByMeasures moves delta measures from the start of the current measure.
func (e *Engine) SeekByMeasures(delta int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sess
	if s == nil {
		return
	}
	elapsed := e.elapsedLocked()
	warped, _ := s.warp.Adjust(elapsed)
	offset := s.drift.Offset()
	measure := s.grid.Position(warped - offset).Measure
	if elapsed < s.grid.Start {
		measure = -1
	}
	target := measure + delta
	if target < 0 {
		e.seekLocked(0)
		return
	}
	e.seekLocked(s.warp.Inverse(s.grid.TimeOfMeasure(target) + offset))
}

// SetLoopRegion sets the practice loop. Regions that are empty or inverted
// after clamping to the recording are ignored.
func (e *Engine) SetLoopRegion(r types.LoopRegion) {
	e.mu.Lock()
	defer e.mu.Unlock()
	norm, ok := loop.Normalize(r, e.durationLocked())
	if !ok {
		e.log.WithFields(logrus.Fields{"start": r.Start, "end": r.End}).Debug("ignoring invalid loop region")
		return
	}
	e.loopRegion = norm
	e.wrap.Reset()
	e.publishLocked()
}

// SetLoopEnabled turns looping on or off.
func (e *Engine) SetLoopEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loopEnabled = enabled
	e.wrap.Reset()
	e.publishLocked()
}

// JumpToLoopStart seeks to the start of the loop region, if any.
func (e *Engine) JumpToLoopStart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loopRegion.Valid() {
		return
	}
	e.seekLocked(e.loopRegion.Start)
}

// SeekToMeasure moves to the downbeat of measure n. Negative measures seek to
// the start of the recording.
func (e *Engine) SeekToMeasure(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sess
	if s == nil {
		return
	}
	if n < 0 {
		e.seekLocked(0)
		return
	}
	e.seekLocked(s.warp.Inverse(s.grid.TimeOfMeasure(n) + s.drift.Offset()))
}
