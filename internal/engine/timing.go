package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/schollz/beatkeeper/internal/click"
	"github.com/schollz/beatkeeper/internal/loop"
	"github.com/schollz/beatkeeper/internal/types"
)

// UpdateTiming recomputes the beat position for elapsed seconds of audio and
// publishes it. With triggerMetronome set it may also fire a click, sample
// drift and wrap the loop. Calling it twice with the same input has the
// same effect as calling it once.
func (e *Engine) UpdateTiming(elapsed float64, triggerMetronome bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updateLocked(elapsed, triggerMetronome)
}

// DisplayTick is the display-synchronized poller. It does nothing while the
// display is hidden.
func (e *Engine) DisplayTick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hidden {
		return
	}
	e.tickLocked()
}

// IntervalTick is the fixed-interval poller. It keeps clicks and the loop
// going when the display loop is not running.
func (e *Engine) IntervalTick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickLocked()
}

func (e *Engine) tickLocked() {
	s := e.sess
	if s == nil || s.state != types.Playing || e.transitioning {
		return
	}
	e.updateLocked(e.elapsedLocked(), true)
}

// refreshLocked republishes the current position without side effects.
func (e *Engine) refreshLocked() {
	if e.sess == nil {
		e.publishLocked()
		return
	}
	e.updateLocked(e.elapsedLocked(), false)
}

func (e *Engine) updateLocked(elapsed float64, trigger bool) {
	s := e.sess
	if s == nil {
		e.publishLocked()
		return
	}
	if e.transitioning {
		return
	}

	warped, frozen := s.warp.Adjust(elapsed)
	gridTime := warped - s.drift.Offset()
	s.lastElapsed = elapsed
	s.position = s.grid.Position(gridTime)
	s.frozen = frozen
	s.inSync = elapsed >= s.syncAt
	s.region = s.warp.Region(elapsed)

	playing := s.state == types.Playing
	if trigger && playing {
		e.clickLocked()
		if s.inSync && !frozen {
			idx := s.grid.BeatIndex(gridTime)
			// audio time of the beat before correction, including hold offsets
			beatTime := s.grid.TimeOfBeat(idx) + (elapsed - warped)
			if s.drift.Check(idx, beatTime, s.grid.BeatInterval()) {
				e.log.WithFields(logrus.Fields{"beat": idx, "offset": s.drift.Offset()}).Info("drift corrected")
			}
		}
	}

	if trigger && playing && e.loopEnabled && e.loopRegion.Valid() {
		// a pending wrap target clears once a tick lands back inside the loop
		e.wrap.Observe(elapsed, e.loopRegion)
		if loop.ShouldWrap(elapsed, e.loopRegion) {
			e.wrapLocked()
			return
		}
	}
	e.publishLocked()
}

func (e *Engine) clickLocked() {
	s := e.sess
	a, fire := s.clicks.Decide(click.Input{
		Now:          e.clock.Now(),
		Position:     s.position,
		BeatInterval: s.grid.BeatInterval(),
		Rate:         e.rate,
		InSyncRegion: s.inSync,
		Frozen:       s.frozen,
	})
	if !fire || e.sink == nil {
		return
	}
	e.sink.Click(a, float64(e.metronomeVolume)/100)
}

// wrapLocked jumps back to the loop start. A wrap already in flight or not
// yet observed to have landed makes this a no-op.
func (e *Engine) wrapLocked() {
	s := e.sess
	if !e.wrap.TryBegin() {
		e.publishLocked()
		return
	}
	e.transitioning = true
	target := e.clampTime(e.loopRegion.Start)

	s.source.Stop()
	s.clicks.Reset()
	s.lastElapsed = target
	err := s.source.Start(target, e.params(false))

	e.transitioning = false
	if err != nil {
		e.wrap.Reset()
		e.log.WithError(err).Warn("could not restart node at loop start")
	} else {
		e.wrap.Done(target)
	}
	e.log.WithField("to", target).Debug("loop wrapped")
	e.updateLocked(target, false)
}
