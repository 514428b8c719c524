package engine

import (
	"context"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/schollz/beatkeeper/internal/clocksource"
	"github.com/schollz/beatkeeper/internal/types"
)

// HealthCheck resumes a suspended output and respawns the playback node when
// playback should be running but no node is live.
func (e *Engine) HealthCheck() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.healthCheckLocked()
}

func (e *Engine) healthCheckLocked() {
	s := e.sess
	if s == nil {
		return
	}
	e.resumeBackendLocked()
	if s.state != types.Playing || s.source.Live() || e.transitioning {
		return
	}
	if _, pending := e.wrap.Pending(); pending || e.wrap.InFlight() {
		return
	}
	at := e.clampTime(s.lastElapsed)
	p := e.params(false)
	p.FadeIn = e.cfg.RespawnFadeIn
	if err := s.source.Start(at, p); err != nil {
		e.log.WithError(err).Warn("respawn failed, retrying on next health check")
		return
	}
	e.log.WithField("at", at).Warn("playback node was lost, respawned")
	e.refreshLocked()
}

func (e *Engine) resumeBackendLocked() {
	b := e.sess.backend
	if !b.Suspended() {
		return
	}
	if err := b.Resume(e.ctx); err != nil {
		e.log.WithError(err).Warn("could not resume audio output")
		return
	}
	e.log.Info("resumed suspended audio output")
}

// SetVisible records whether the display is showing. Becoming visible runs
// the health check after the settle delay.
func (e *Engine) SetVisible(visible bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	wasHidden := e.hidden
	e.hidden = !visible
	if !visible || !wasHidden {
		return
	}
	if e.cfg.SettleDelay <= 0 {
		e.healthCheckLocked()
		return
	}
	go e.settleThenCheck(e.ctx, e.clock.NewTimer(e.cfg.SettleDelay))
}

func (e *Engine) settleThenCheck(ctx context.Context, t clock.Timer) {
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C():
		e.HealthCheck()
	}
}

// handleEnded runs when a node finishes on its own. Handlers from replaced
// sources or older generations are ignored.
func (e *Engine) handleEnded(src *clocksource.Source, gen int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sess
	if s == nil || s.source != src || src.Generation() != gen || !src.Live() {
		return
	}
	pos := src.Drop()
	duration := s.backend.Duration()
	natural := duration > 0 && pos >= duration-e.cfg.EndTolerance
	e.log.WithFields(logrus.Fields{"at": pos, "natural": natural}).Debug("node ended")

	if !natural {
		// the health check brings it back
		s.lastElapsed = pos
		e.refreshLocked()
		return
	}
	if e.loopEnabled && e.loopRegion.Valid() {
		e.wrap.Reset()
		e.wrapLocked()
		return
	}
	e.stopLocked()
}
