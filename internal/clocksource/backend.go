// Package clocksource turns a playback backend into the elapsed-time clock
// the engine reads.
package clocksource

import (
	"context"
	"time"

	"github.com/schollz/beatkeeper/internal/types"
)

// Backend is an audio output with one loaded recording.
type Backend interface {
	// Now is the output clock in seconds. It only moves while not suspended.
	Now() float64
	Suspended() bool
	Resume(ctx context.Context) error
	// Duration of the loaded recording in seconds.
	Duration() float64
	NewNode(mode types.ClockMode) (Node, error)
}

// Node is a single-use playback resource. Once stopped or ended it is never
// restarted.
type Node interface {
	// Start begins playback at offset seconds, ramping gain up over fadeIn.
	Start(offset float64, fadeIn time.Duration)
	// Stop ramps gain down over fadeOut and releases the node.
	Stop(fadeOut time.Duration)
	SetRate(rate float64)
	SetDetune(cents float64)
	SetGain(gain float64, ramp time.Duration)
	// Position reports the playhead in seconds of audio.
	Position() float64
	// OnEnded registers fn to run when playback ends on its own. A nil fn
	// detaches the handler. Backends call it from their own goroutine.
	OnEnded(fn func())
}
