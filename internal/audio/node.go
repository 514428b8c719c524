package audio

import (
	"math"
	"time"

	"github.com/faiface/beep"
	"github.com/fogleman/ease"

	"github.com/schollz/beatkeeper/internal/types"
)

// shiftWindow is the grain length of the pitch shifter.
const shiftWindow = 50 * time.Millisecond

// ramp moves a gain linearly between two values over a number of frames.
type ramp struct {
	from, to    float64
	pos, length int
}

func (r *ramp) value() float64 {
	if r.pos >= r.length {
		return r.to
	}
	return r.from + (r.to-r.from)*ease.Linear(float64(r.pos)/float64(r.length))
}

func (r *ramp) advance() {
	if r.pos < r.length {
		r.pos++
	}
}

func (r *ramp) done() bool {
	return r.pos >= r.length
}

func (r *ramp) retarget(to float64, frames int) {
	*r = ramp{from: r.value(), to: to, length: frames}
}

// shifter is a two-tap delay line pitch shifter over the resampled stream.
// The delay sweeps through the window at (1-ratio) frames per frame and the
// two taps, half a window apart, are crossfaded with triangular windows so
// each jump back happens at zero gain.
type shifter struct {
	line   [][2]float64
	write  int
	window float64
	delay  float64
}

func newShifter(window int) *shifter {
	if window < 2 {
		window = 2
	}
	return &shifter{line: make([][2]float64, window+2), window: float64(window)}
}

// process pushes in and returns the frame shifted by ratio.
func (s *shifter) process(in [2]float64, ratio float64) [2]float64 {
	s.line[s.write] = in
	s.delay = math.Mod(s.delay+1-ratio, s.window)
	if s.delay < 0 {
		s.delay += s.window
	}
	d2 := math.Mod(s.delay+s.window/2, s.window)
	w1 := 1 - math.Abs(2*s.delay/s.window-1)
	w2 := 1 - w1
	a := s.tap(s.delay)
	c := s.tap(d2)
	s.write = (s.write + 1) % len(s.line)
	return [2]float64{a[0]*w1 + c[0]*w2, a[1]*w1 + c[1]*w2}
}

// tap reads the line delay frames behind the newest frame.
func (s *shifter) tap(delay float64) [2]float64 {
	size := float64(len(s.line))
	pos := float64(s.write) - delay
	if pos < 0 {
		pos += size
	}
	i := int(pos) % len(s.line)
	j := (i + 1) % len(s.line)
	frac := pos - math.Floor(pos)
	a, c := s.line[i], s.line[j]
	return [2]float64{a[0] + (c[0]-a[0])*frac, a[1] + (c[1]-a[1])*frac}
}

// trackNode plays the recording from an offset through a beep resampler
// whose ratio carries both the playback rate and the sample rate
// conversion. Media nodes keep the pitch when the rate changes; buffer nodes
// shift pitch with the rate and apply detune on top.
type trackNode struct {
	out  *Output
	mode types.ClockMode

	res    *beep.Resampler
	shift  *shifter
	origin float64 // source frames consumed, for Position

	rate     float64
	detune   float64
	gain     ramp
	started  bool
	stopping bool
	done     bool
	onEnded  func()
}

func newTrackNode(o *Output, mode types.ClockMode) *trackNode {
	return &trackNode{
		out:   o,
		mode:  mode,
		rate:  1,
		gain:  ramp{from: 1, to: 1},
		shift: newShifter(o.rate.N(shiftWindow)),
	}
}

// step is the resampling ratio: source frames per output frame.
func (n *trackNode) step() float64 {
	return n.rate * float64(n.out.track.Rate) / float64(n.out.rate)
}

func (n *trackNode) Start(offset float64, fadeIn time.Duration) {
	n.out.mu.Lock()
	defer n.out.mu.Unlock()
	if n.started {
		return
	}
	n.started = true
	total := n.out.pcm.Len()
	from := int(math.Round(offset * float64(n.out.track.Rate)))
	if from < 0 {
		from = 0
	} else if from > total {
		from = total
	}
	n.origin = float64(from)
	n.res = beep.ResampleRatio(resampleQuality, n.step(), n.out.pcm.Streamer(from, total))
	n.gain = ramp{from: 0, to: n.gain.to, length: n.out.framesFor(fadeIn)}
	n.out.mixer.Add(n)
}

func (n *trackNode) Stop(fadeOut time.Duration) {
	n.out.mu.Lock()
	defer n.out.mu.Unlock()
	n.onEnded = nil
	if !n.started || n.done {
		n.done = true
		return
	}
	n.stopping = true
	n.gain.retarget(0, n.out.framesFor(fadeOut))
}

func (n *trackNode) SetRate(rate float64) {
	n.out.mu.Lock()
	defer n.out.mu.Unlock()
	if rate <= 0 {
		return
	}
	n.rate = rate
	if n.res != nil {
		n.res.SetRatio(n.step())
	}
}

func (n *trackNode) SetDetune(cents float64) {
	n.out.mu.Lock()
	defer n.out.mu.Unlock()
	n.detune = cents
}

func (n *trackNode) SetGain(gain float64, d time.Duration) {
	n.out.mu.Lock()
	defer n.out.mu.Unlock()
	if n.stopping {
		return
	}
	n.gain.retarget(gain, n.out.framesFor(d))
}

func (n *trackNode) Position() float64 {
	n.out.mu.Lock()
	defer n.out.mu.Unlock()
	return n.origin / float64(n.out.track.Rate)
}

func (n *trackNode) OnEnded(fn func()) {
	n.out.mu.Lock()
	defer n.out.mu.Unlock()
	n.onEnded = fn
}

// pitchRatio is the extra pitch factor applied on top of resampling.
func (n *trackNode) pitchRatio() float64 {
	if n.mode == types.MediaMode {
		return 1 / n.rate
	}
	return math.Pow(2, n.detune/1200)
}

// Stream renders the node. It runs inside the output's mixer with the
// output lock held.
func (n *trackNode) Stream(samples [][2]float64) (int, bool) {
	if n.done {
		return 0, false
	}
	got, ok := n.res.Stream(samples)
	step := n.step()
	ratio := n.pitchRatio()
	end := float64(n.out.pcm.Len())
	for i := 0; i < got; i++ {
		if n.stopping && n.gain.done() {
			n.done = true
			return i, false
		}
		f := n.shift.process(samples[i], ratio)
		if math.Abs(ratio-1) < 1e-6 {
			f = samples[i]
		}
		g := n.gain.value()
		n.gain.advance()
		samples[i] = [2]float64{f[0] * g, f[1] * g}
		n.origin = math.Min(n.origin+step, end)
	}
	if !ok || got < len(samples) || n.origin >= end {
		n.done = true
		if fn := n.onEnded; fn != nil && !n.stopping {
			// handlers take the engine lock, never call them under ours
			go fn()
		}
		return got, false
	}
	return got, true
}

func (n *trackNode) Err() error {
	return nil
}
