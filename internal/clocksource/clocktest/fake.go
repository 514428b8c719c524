// Package clocktest provides an in-memory playback backend driven by a fake
// clock.
package clocktest

import (
	"context"
	"errors"
	"sync"
	"time"

	clocktesting "k8s.io/utils/clock/testing"

	"github.com/schollz/beatkeeper/internal/clocksource"
	"github.com/schollz/beatkeeper/internal/types"
)

// Epoch is the fake clock's starting time.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ErrNodeUnavailable is returned by NewNode when FailNodes is set.
var ErrNodeUnavailable = errors.New("node unavailable")

// Backend is a fake output. Its clock is Clock, in seconds since Epoch.
type Backend struct {
	Clock *clocktesting.FakeClock

	mu        sync.Mutex
	duration  float64
	suspended bool
	resumes   int
	failNodes bool
	nodes     []*Node
}

// NewBackend returns a backend holding a recording of duration seconds.
func NewBackend(duration float64) *Backend {
	return &Backend{Clock: clocktesting.NewFakeClock(Epoch), duration: duration}
}

func (b *Backend) Now() float64 {
	return b.Clock.Since(Epoch).Seconds()
}

func (b *Backend) Duration() float64 {
	return b.duration
}

func (b *Backend) Suspended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.suspended
}

// Suspend simulates the output being suspended by the system.
func (b *Backend) Suspend() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.suspended = true
}

func (b *Backend) Resume(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.suspended = false
	b.resumes++
	return ctx.Err()
}

// Resumes counts calls to Resume.
func (b *Backend) Resumes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resumes
}

// FailNodes makes NewNode fail until called again with false.
func (b *Backend) FailNodes(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNodes = fail
}

func (b *Backend) NewNode(mode types.ClockMode) (clocksource.Node, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNodes {
		return nil, ErrNodeUnavailable
	}
	n := &Node{backend: b, mode: mode, Rate: 1}
	b.nodes = append(b.nodes, n)
	return n, nil
}

// Nodes returns every node created so far, oldest first.
func (b *Backend) Nodes() []*Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Node(nil), b.nodes...)
}

// Last returns the newest node, or nil.
func (b *Backend) Last() *Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.nodes) == 0 {
		return nil
	}
	return b.nodes[len(b.nodes)-1]
}

// Live returns the nodes that were started and not stopped or ended.
func (b *Backend) Live() []*Node {
	var live []*Node
	for _, n := range b.Nodes() {
		if n.Playing() {
			live = append(live, n)
		}
	}
	return live
}

// Node records what the engine asked of it.
type Node struct {
	backend *Backend
	mode    types.ClockMode

	mu          sync.Mutex
	started     bool
	stopped     bool
	ended       bool
	StartOffset float64
	startedAt   float64
	FadeIn      time.Duration
	FadeOut     time.Duration
	Rate        float64
	Detune      float64
	Gain        float64
	GainRamps   []time.Duration
	onEnded     func()
}

func (n *Node) Mode() types.ClockMode {
	return n.mode
}

func (n *Node) Start(offset float64, fadeIn time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.started = true
	n.StartOffset = offset
	n.FadeIn = fadeIn
	n.startedAt = n.backend.Now()
}

func (n *Node) Stop(fadeOut time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopped = true
	n.FadeOut = fadeOut
}

func (n *Node) SetRate(rate float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		n.StartOffset = n.positionLocked()
		n.startedAt = n.backend.Now()
	}
	n.Rate = rate
}

func (n *Node) SetDetune(cents float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Detune = cents
}

func (n *Node) SetGain(gain float64, ramp time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Gain = gain
	n.GainRamps = append(n.GainRamps, ramp)
}

func (n *Node) Position() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.positionLocked()
}

func (n *Node) positionLocked() float64 {
	if !n.started {
		return 0
	}
	pos := n.StartOffset + (n.backend.Now()-n.startedAt)*n.Rate
	if d := n.backend.duration; d > 0 && pos > d {
		pos = d
	}
	return pos
}

func (n *Node) OnEnded(fn func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onEnded = fn
}

// Playing reports whether the node was started and has neither stopped nor
// ended.
func (n *Node) Playing() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.started && !n.stopped && !n.ended
}

// Stopped reports whether Stop was called.
func (n *Node) Stopped() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stopped
}

// HasEndedHandler reports whether an ended handler is attached.
func (n *Node) HasEndedHandler() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.onEnded != nil
}

// End simulates the node finishing on its own and runs the ended handler, if
// any, on the calling goroutine.
func (n *Node) End() {
	n.mu.Lock()
	n.ended = true
	fn := n.onEnded
	n.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Settings returns the rate, detune and gain last applied.
func (n *Node) Settings() (rate, detune, gain float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Rate, n.Detune, n.Gain
}
