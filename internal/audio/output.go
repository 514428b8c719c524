package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/sirupsen/logrus"

	"github.com/schollz/beatkeeper/internal/clocksource"
	"github.com/schollz/beatkeeper/internal/logger"
	"github.com/schollz/beatkeeper/internal/types"
)

// DefaultSampleRate is used for the speaker when nothing else is asked for.
const DefaultSampleRate = beep.SampleRate(44100)

type assetState int

const (
	assetNone assetState = iota
	assetPending
	assetLoaded
	assetFailed
)

// Output is the audio backend: a mixer whose frame counter is the playback
// clock. It satisfies clocksource.Backend, click.Sink and accompaniment.Sink.
type Output struct {
	rate  beep.SampleRate
	track *Buffer
	pcm   *beep.Buffer
	log   *logrus.Entry

	// mu guards everything below and is held while the mixer renders.
	mu        sync.Mutex
	mixer     beep.Mixer
	frames    int64
	suspended bool

	clickState assetState
	clickBuf   *Buffer
	drums      map[string][][2]float64
}

// NewOutput returns an output for track, rendering at rate.
func NewOutput(rate beep.SampleRate, track *Buffer) *Output {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	o := &Output{
		rate:  rate,
		track: track,
		log:   logger.WithComponent("audio"),
		drums: renderDrums(rate),
	}
	if track != nil && len(track.Frames) > 0 {
		o.pcm = track.pcm()
	}
	return o
}

// Start opens the speaker and starts rendering.
func (o *Output) Start() error {
	if err := speaker.Init(o.rate, o.rate.N(time.Second/20)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	speaker.Play(o)
	o.log.WithField("rate", int(o.rate)).Info("speaker started")
	return nil
}

// Close silences the speaker.
func (o *Output) Close() {
	speaker.Clear()
}

// Stream renders the mix. The clock only advances while not suspended.
func (o *Output) Stream(samples [][2]float64) (int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.suspended {
		for i := range samples {
			samples[i] = [2]float64{}
		}
		return len(samples), true
	}
	o.mixer.Stream(samples)
	o.frames += int64(len(samples))
	return len(samples), true
}

func (o *Output) Err() error {
	return nil
}

func (o *Output) Now() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return float64(o.frames) / float64(o.rate)
}

func (o *Output) Duration() float64 {
	return o.track.Duration()
}

func (o *Output) Suspended() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.suspended
}

// Suspend stops the clock and mutes the output, as when the process is
// backgrounded.
func (o *Output) Suspend() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.suspended = true
}

func (o *Output) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.suspended = false
	return nil
}

func (o *Output) NewNode(mode types.ClockMode) (clocksource.Node, error) {
	if o.track == nil || len(o.track.Frames) == 0 {
		return nil, fmt.Errorf("no recording loaded")
	}
	return newTrackNode(o, mode), nil
}

func (o *Output) framesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return o.rate.N(d)
}

// play adds s to the mix.
func (o *Output) play(s beep.Streamer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mixer.Add(s)
}
