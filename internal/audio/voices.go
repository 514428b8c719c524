package audio

import (
	"math"
	"math/rand"
	"time"

	"github.com/faiface/beep"

	"github.com/schollz/beatkeeper/internal/accompaniment"
	"github.com/schollz/beatkeeper/internal/click"
)

const clickLength = 40 * time.Millisecond

// oneShot plays pre-rendered frames once.
type oneShot struct {
	frames [][2]float64
	pos    int
}

func (s *oneShot) Stream(samples [][2]float64) (int, bool) {
	if s.pos >= len(s.frames) {
		return 0, false
	}
	n := copy(samples, s.frames[s.pos:])
	s.pos += n
	return n, true
}

func (s *oneShot) Err() error {
	return nil
}

func scaled(frames [][2]float64, gain float64) [][2]float64 {
	out := make([][2]float64, len(frames))
	for i, f := range frames {
		out[i] = [2]float64{f[0] * gain, f[1] * gain}
	}
	return out
}

// renderTone renders a decaying sine at freq Hz.
func renderTone(rate beep.SampleRate, freq float64, length time.Duration, decay float64) [][2]float64 {
	n := rate.N(length)
	out := make([][2]float64, n)
	for i := range out {
		t := float64(i) / float64(rate)
		v := math.Sin(2*math.Pi*freq*t) * math.Exp(-decay*t)
		out[i] = [2]float64{v, v}
	}
	return out
}

// renderDrums synthesizes the accompaniment voices.
func renderDrums(rate beep.SampleRate) map[string][][2]float64 {
	noise := rand.New(rand.NewSource(7))
	drums := make(map[string][][2]float64, len(accompaniment.Voices))

	// kick: pitch sweep from 150 Hz down to 50 Hz
	n := rate.N(150 * time.Millisecond)
	kick := make([][2]float64, n)
	phase := 0.0
	for i := range kick {
		t := float64(i) / float64(rate)
		freq := 50 + 100*math.Exp(-t*30)
		phase += 2 * math.Pi * freq / float64(rate)
		v := math.Sin(phase) * math.Exp(-t*18)
		kick[i] = [2]float64{v, v}
	}
	drums[string(accompaniment.Kick)] = kick

	// snare: noise over a 180 Hz body
	n = rate.N(120 * time.Millisecond)
	snare := make([][2]float64, n)
	for i := range snare {
		t := float64(i) / float64(rate)
		v := (0.6*(noise.Float64()*2-1) + 0.4*math.Sin(2*math.Pi*180*t)) * math.Exp(-t*25)
		snare[i] = [2]float64{v, v}
	}
	drums[string(accompaniment.Snare)] = snare

	// hi-hat: differentiated noise, short
	n = rate.N(40 * time.Millisecond)
	hat := make([][2]float64, n)
	prev := 0.0
	for i := range hat {
		t := float64(i) / float64(rate)
		w := noise.Float64()*2 - 1
		v := (w - prev) * 0.5 * math.Exp(-t*80)
		prev = w
		hat[i] = [2]float64{v, v}
	}
	drums[string(accompaniment.HiHat)] = hat
	return drums
}

// Click plays a metronome click. Until a click sample finishes loading, or
// if it failed to load, clicks are silent.
func (o *Output) Click(a click.Accent, volume float64) {
	gain := a.Gain * volume
	if gain <= 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	var frames [][2]float64
	switch o.clickState {
	case assetPending, assetFailed:
		return
	case assetLoaded:
		// downbeats are pitched up by the accent frequency ratio
		frames = o.clickBuf.resampled(a.Frequency / click.BeatAccent.Frequency * float64(o.clickBuf.Rate) / float64(o.rate))
	default:
		frames = renderTone(o.rate, a.Frequency, clickLength, 90)
	}
	o.mixer.Add(&oneShot{frames: scaled(frames, gain)})
}

// Hit plays a percussion voice.
func (o *Output) Hit(v accompaniment.Voice, gain float64) {
	frames, ok := o.drums[string(v)]
	if !ok || gain <= 0 {
		return
	}
	o.play(&oneShot{frames: scaled(frames, gain)})
}

// LoadClickSound decodes a click sample in the background. The returned
// channel is closed once loading finished, successfully or not.
func (o *Output) LoadClickSound(path string) <-chan struct{} {
	done := make(chan struct{})
	o.mu.Lock()
	o.clickState = assetPending
	o.mu.Unlock()
	go func() {
		defer close(done)
		buf, err := DecodeFile(path)
		o.mu.Lock()
		defer o.mu.Unlock()
		if err != nil {
			o.clickState = assetFailed
			o.log.WithError(err).Warn("click sound failed to load, metronome will be silent")
			return
		}
		o.clickBuf = buf
		o.clickState = assetLoaded
		o.log.WithField("path", path).Debug("click sound loaded")
	}()
	return done
}
