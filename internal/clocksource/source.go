package clocksource

import (
	"fmt"
	"math"
	"time"

	"github.com/schollz/beatkeeper/internal/types"
)

// Params are applied to every node a Source starts.
type Params struct {
	Rate      float64
	Semitones int
	Gain      float64
	FadeIn    time.Duration
}

// Detune returns the compensated detune for p.
func (p Params) Detune() float64 {
	return DetuneCents(p.Semitones, p.Rate)
}

// Source owns at most one live node and reports elapsed playback time.
//
// In buffer mode the elapsed time is derived from the backend clock:
// offset + (now - startedAt) * rate, rebased whenever the rate changes. In
// media mode the node reports its own position and detune is not applied.
type Source struct {
	backend Backend
	mode    types.ClockMode
	fadeOut time.Duration

	node      Node
	gen       int
	offset    float64
	startedAt float64
	params    Params
	onEnded   func(gen int)
}

// New returns an idle source in the given mode.
func New(b Backend, mode types.ClockMode, fadeOut time.Duration) *Source {
	return &Source{backend: b, mode: mode, fadeOut: fadeOut, params: Params{Rate: 1, Gain: 1}}
}

func (s *Source) Mode() types.ClockMode {
	return s.mode
}

// Generation increases every time a node is started.
func (s *Source) Generation() int {
	return s.gen
}

// Live reports whether a node is playing.
func (s *Source) Live() bool {
	return s.node != nil
}

// OnEnded registers the handler that receives the generation of a node
// which ended on its own. It applies to nodes started afterwards.
func (s *Source) OnEnded(fn func(gen int)) {
	s.onEnded = fn
}

// Start stops any live node and starts a fresh one at offset.
func (s *Source) Start(offset float64, p Params) error {
	if s.node != nil {
		s.Stop()
	}
	if p.Rate <= 0 {
		p.Rate = 1
	}
	node, err := s.backend.NewNode(s.mode)
	if err != nil {
		return fmt.Errorf("start %s node at %.3f: %w", s.mode, offset, err)
	}
	s.gen++
	gen, handler := s.gen, s.onEnded
	if handler != nil {
		node.OnEnded(func() { handler(gen) })
	}
	node.SetRate(p.Rate)
	if s.mode == types.BufferMode {
		node.SetDetune(p.Detune())
	}
	node.SetGain(p.Gain, 0)
	node.Start(offset, p.FadeIn)

	s.node = node
	s.params = p
	s.offset = offset
	s.startedAt = s.backend.Now()
	return nil
}

// Elapsed returns the playback position in seconds of audio. Without a live
// node it is the position the last node stopped at.
func (s *Source) Elapsed() float64 {
	if s.node == nil {
		return s.offset
	}
	if s.mode == types.MediaMode {
		return s.node.Position()
	}
	return s.offset + (s.backend.Now()-s.startedAt)*s.params.Rate
}

// Stop detaches the ended handler, fades the node out and returns the
// position it stopped at.
func (s *Source) Stop() float64 {
	if s.node == nil {
		return s.offset
	}
	pos := s.Elapsed()
	s.node.OnEnded(nil)
	s.node.Stop(s.fadeOut)
	s.node = nil
	s.offset = pos
	return pos
}

// Drop forgets a node that ended on its own, keeping its last position.
func (s *Source) Drop() float64 {
	if s.node == nil {
		return s.offset
	}
	pos := s.Elapsed()
	if d := s.backend.Duration(); d > 0 {
		pos = math.Min(pos, d)
	}
	s.node.OnEnded(nil)
	s.node = nil
	s.offset = pos
	return pos
}

// SetParams applies rate, transposition and gain to the live node. Buffer
// mode rebases its clock so elapsed time stays continuous.
func (s *Source) SetParams(p Params, ramp time.Duration) {
	if p.Rate <= 0 {
		p.Rate = 1
	}
	if s.node == nil {
		s.params = p
		return
	}
	s.offset = s.Elapsed()
	s.startedAt = s.backend.Now()
	s.node.SetRate(p.Rate)
	if s.mode == types.BufferMode {
		s.node.SetDetune(p.Detune())
	}
	if p.Gain != s.params.Gain {
		s.node.SetGain(p.Gain, ramp)
	}
	s.params = p
}

// SetGain ramps the live node to gain.
func (s *Source) SetGain(gain float64, ramp time.Duration) {
	s.params.Gain = gain
	if s.node != nil {
		s.node.SetGain(gain, ramp)
	}
}
