package audio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/schollz/audiomorph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schollz/beatkeeper/internal/accompaniment"
	"github.com/schollz/beatkeeper/internal/click"
	"github.com/schollz/beatkeeper/internal/types"
)

const testRate = 8000

// writeTestWAV writes seconds of a constant 16-bit stereo signal.
func writeTestWAV(t *testing.T, dir string, seconds float64) string {
	t.Helper()
	path := filepath.Join(dir, "track.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	n := int(seconds * testRate)
	data := make([]int, 2*n)
	for i := 0; i < n; i++ {
		data[2*i] = 16384
		data[2*i+1] = -16384
	}
	enc := wav.NewEncoder(f, testRate, 16, 2, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: testRate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	return path
}

func render(o *Output, frames int) [][2]float64 {
	buf := make([][2]float64, frames)
	o.Stream(buf)
	return buf
}

func TestDecodeWAV(t *testing.T) {
	path := writeTestWAV(t, t.TempDir(), 0.5)
	buf, err := DecodeWAVFile(path)
	require.NoError(t, err)
	assert.Equal(t, testRate, buf.Rate)
	assert.Len(t, buf.Frames, testRate/2)
	assert.InDelta(t, 0.5, buf.Frames[10][0], 1e-9)
	assert.InDelta(t, -0.5, buf.Frames[10][1], 1e-9)
	assert.InDelta(t, 0.5, buf.Duration(), 1e-9)

	_, err = DecodeWAVFile(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}

func TestDecodeFile(t *testing.T) {
	dir := t.TempDir()
	src := writeTestWAV(t, dir, 0.25)
	upper := filepath.Join(dir, "TRACK.WAV")
	require.NoError(t, os.Rename(src, upper))

	buf, err := DecodeFile(upper)
	require.NoError(t, err)
	assert.Equal(t, testRate, buf.Rate)
	assert.Len(t, buf.Frames, testRate/4)

	bogus := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(bogus, []byte("not audio"), 0o644))
	_, err = DecodeFile(bogus)
	assert.Error(t, err)
}

func TestFromAudio(t *testing.T) {
	buf, err := fromAudio(&audiomorph.Audio{
		NumChannels: 1,
		SampleRate:  22050,
		BitDepth:    24,
		Data:        [][]int{{0, 1 << 22, -(1 << 22)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 22050, buf.Rate)
	assert.Equal(t, [][2]float64{{0, 0}, {0.5, 0.5}, {-0.5, -0.5}}, buf.Frames)

	_, err = fromAudio(&audiomorph.Audio{})
	assert.Error(t, err)
}

func TestOutputClock(t *testing.T) {
	buf, err := DecodeWAVFile(writeTestWAV(t, t.TempDir(), 2))
	require.NoError(t, err)
	o := NewOutput(testRate, buf)
	assert.InDelta(t, 2.0, o.Duration(), 1e-9)

	render(o, testRate/2)
	assert.InDelta(t, 0.5, o.Now(), 1e-9)

	o.Suspend()
	render(o, testRate/2)
	assert.True(t, o.Suspended())
	assert.InDelta(t, 0.5, o.Now(), 1e-9, "suspended output does not advance")

	require.NoError(t, o.Resume(context.Background()))
	assert.False(t, o.Suspended())
}

func TestTrackNode(t *testing.T) {
	buf, err := DecodeWAVFile(writeTestWAV(t, t.TempDir(), 1))
	require.NoError(t, err)
	o := NewOutput(testRate, buf)

	node, err := o.NewNode(types.MediaMode)
	require.NoError(t, err)
	node.Start(0.25, 10*time.Millisecond)
	out := render(o, testRate/4)
	assert.InDelta(t, 0.5, node.Position(), 1e-9)
	assert.InDelta(t, 0.0, out[0][0], 1e-9, "fade in starts silent")
	assert.InDelta(t, 0.5, out[len(out)-1][0], 1e-6)

	t.Run("rate", func(t *testing.T) {
		node.SetRate(2)
		render(o, testRate/8)
		assert.InDelta(t, 0.75, node.Position(), 1e-9)
	})

	t.Run("ends and notifies", func(t *testing.T) {
		ended := make(chan struct{})
		node.OnEnded(func() { close(ended) })
		render(o, testRate/4)
		select {
		case <-ended:
		case <-time.After(time.Second):
			t.Fatal("ended handler not called")
		}
	})
}

func TestTrackNodeConvertsSampleRate(t *testing.T) {
	buf, err := DecodeWAVFile(writeTestWAV(t, t.TempDir(), 2))
	require.NoError(t, err)
	o := NewOutput(2*testRate, buf)

	node, err := o.NewNode(types.MediaMode)
	require.NoError(t, err)
	node.Start(0, 0)
	out := render(o, 2*testRate)
	assert.InDelta(t, 1.0, node.Position(), 1e-9, "one second of output is one second of audio")
	assert.InDelta(t, 0.5, out[testRate][0], 1e-6)
	assert.InDelta(t, -0.5, out[testRate][1], 1e-6)
}

func TestDetuneKeepsLevel(t *testing.T) {
	buf, err := DecodeWAVFile(writeTestWAV(t, t.TempDir(), 1))
	require.NoError(t, err)
	o := NewOutput(testRate, buf)

	node, err := o.NewNode(types.BufferMode)
	require.NoError(t, err)
	node.SetDetune(1200)
	node.Start(0, 0)
	out := render(o, 2*o.rate.N(shiftWindow))
	assert.InDelta(t, 0.5, out[len(out)-1][0], 1e-6, "crossfaded taps sum to unity")
	assert.InDelta(t, 2*shiftWindow.Seconds(), node.Position(), 1e-9, "detune does not change speed")
}

func TestResampledBuffer(t *testing.T) {
	buf, err := DecodeWAVFile(writeTestWAV(t, t.TempDir(), 1))
	require.NoError(t, err)

	half := buf.resampled(2)
	assert.InDelta(t, testRate/2, len(half), 2)
	assert.InDelta(t, 0.5, half[100][0], 1e-6)
	assert.Nil(t, buf.resampled(0))
}

func TestStoppedNodeDoesNotNotify(t *testing.T) {
	buf, err := DecodeWAVFile(writeTestWAV(t, t.TempDir(), 1))
	require.NoError(t, err)
	o := NewOutput(testRate, buf)
	node, err := o.NewNode(types.BufferMode)
	require.NoError(t, err)

	called := make(chan struct{}, 1)
	node.OnEnded(func() { called <- struct{}{} })
	node.Start(0.9, 0)
	node.Stop(20 * time.Millisecond)
	render(o, testRate)

	select {
	case <-called:
		t.Fatal("stopped node reported an end")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNoTrack(t *testing.T) {
	o := NewOutput(testRate, nil)
	_, err := o.NewNode(types.MediaMode)
	assert.Error(t, err)
	assert.Zero(t, o.Duration())
}

func TestClicksAndDrums(t *testing.T) {
	o := NewOutput(testRate, nil)

	o.Click(click.DownbeatAccent, 1)
	out := render(o, testRate/100)
	assert.NotZero(t, peak(out))

	o.Hit(accompaniment.Kick, 1)
	out = render(o, testRate/100)
	assert.NotZero(t, peak(out))

	o.Hit(accompaniment.Voice("cowbell"), 1)
	o.Click(click.BeatAccent, 0)
	render(o, testRate)
	assert.Zero(t, peak(render(o, 100)))
}

func TestClickSoundFailureSilencesClicks(t *testing.T) {
	o := NewOutput(testRate, nil)
	<-o.LoadClickSound(filepath.Join(t.TempDir(), "nope.wav"))
	o.Click(click.DownbeatAccent, 1)
	assert.Zero(t, peak(render(o, testRate/100)))
}

func TestClickSoundLoaded(t *testing.T) {
	o := NewOutput(testRate, nil)
	<-o.LoadClickSound(writeTestWAV(t, t.TempDir(), 0.05))
	o.Click(click.BeatAccent, 1)
	assert.InDelta(t, 0.3, peak(render(o, 40)), 1e-6)
}

func TestConvertToWaveformFile(t *testing.T) {
	src := writeTestWAV(t, t.TempDir(), 0.5)
	project := t.TempDir()

	out, err := ConvertToWaveformFile(src, project)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(out))
	assert.Equal(t, filepath.Join(project, "waveforms"), filepath.Dir(out))

	again, err := ConvertToWaveformFile(src, project)
	require.NoError(t, err)
	assert.Equal(t, out, again)

	mono, err := DecodeWAVFile(out)
	require.NoError(t, err)
	assert.Equal(t, waveformRate, mono.Rate)
	assert.InDelta(t, 0.0, mono.Frames[5][0], 1e-3, "left and right cancel")
}

func peak(frames [][2]float64) float64 {
	p := 0.0
	for _, f := range frames {
		for _, v := range f {
			if v < 0 {
				v = -v
			}
			if v > p {
				p = v
			}
		}
	}
	return p
}
