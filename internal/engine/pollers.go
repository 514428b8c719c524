package engine

import (
	"context"

	"k8s.io/utils/clock"
)

// startPollersLocked starts the fixed-interval poller for the current play.
func (e *Engine) startPollersLocked() {
	e.stopPollersLocked()
	if e.cfg.PollInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(e.ctx)
	e.pollCancel = cancel
	go e.poll(ctx, e.clock.NewTicker(e.cfg.PollInterval), e.pollGen)
}

// stopPollersLocked cancels the poller without waiting for it. A tick already
// past its select sees a newer generation and does nothing.
func (e *Engine) stopPollersLocked() {
	if e.pollCancel != nil {
		e.pollCancel()
		e.pollCancel = nil
	}
	e.pollGen++
}

func (e *Engine) poll(ctx context.Context, ticker clock.Ticker, gen int) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			e.mu.Lock()
			if gen == e.pollGen {
				e.tickLocked()
			}
			e.mu.Unlock()
		}
	}
}

func (e *Engine) runHealthChecks(ctx context.Context, ticker clock.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			e.HealthCheck()
		}
	}
}
