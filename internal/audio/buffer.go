// Package audio plays the recording, the metronome and the percussion
// voices through a beep mixer.
package audio

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/faiface/beep"
	"github.com/go-audio/wav"
	"github.com/schollz/audiomorph"
)

// Buffer is a decoded stereo recording.
type Buffer struct {
	Rate   int
	Frames [][2]float64
}

// Duration returns the length in seconds.
func (b *Buffer) Duration() float64 {
	if b == nil || b.Rate <= 0 {
		return 0
	}
	return float64(len(b.Frames)) / float64(b.Rate)
}

// resampleQuality is the beep resampler quality for both live playback and
// offline conversion.
const resampleQuality = 4

// pcm copies the frames into a beep buffer that track nodes stream from.
func (b *Buffer) pcm() *beep.Buffer {
	pb := beep.NewBuffer(beep.Format{
		SampleRate:  beep.SampleRate(b.Rate),
		NumChannels: 2,
		Precision:   4,
	})
	pb.Append(&oneShot{frames: b.Frames})
	return pb
}

// resampled renders the buffer through a beep resampler. ratio is source
// frames per output frame.
func (b *Buffer) resampled(ratio float64) [][2]float64 {
	if b == nil || len(b.Frames) == 0 || ratio <= 0 {
		return nil
	}
	r := beep.ResampleRatio(resampleQuality, ratio, &oneShot{frames: b.Frames})
	out := make([][2]float64, 0, int(float64(len(b.Frames))/ratio)+1)
	chunk := make([][2]float64, 512)
	for {
		n, ok := r.Stream(chunk)
		out = append(out, chunk[:n]...)
		if !ok || n < len(chunk) {
			return out
		}
	}
}

// DecodeFile decodes a recording or click sample. WAV goes through the wav
// decoder directly; AIFF, MP3, OGG and FLAC are decoded with audiomorph.
func DecodeFile(path string) (*Buffer, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return DecodeWAVFile(path)
	}
	a, err := audiomorph.DecodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return fromAudio(a)
}

// fromAudio converts deinterlaced signed integer samples into a Buffer.
func fromAudio(a *audiomorph.Audio) (*Buffer, error) {
	if a.NumChannels < 1 || len(a.Data) < 1 {
		return nil, fmt.Errorf("audio has no channels")
	}
	depth := a.BitDepth
	if depth <= 0 {
		depth = 16
	}
	scale := math.Pow(2, float64(depth-1))
	left := a.Data[0]
	right := left
	if len(a.Data) > 1 {
		right = a.Data[1]
	}
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	frames := make([][2]float64, n)
	for i := 0; i < n; i++ {
		frames[i] = [2]float64{float64(left[i]) / scale, float64(right[i]) / scale}
	}
	return &Buffer{Rate: a.SampleRate, Frames: frames}, nil
}

// DecodeWAVFile decodes a WAV file from disk.
func DecodeWAVFile(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf, err := DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return buf, nil
}

// DecodeWAV decodes PCM WAV data. Mono is duplicated to both channels and
// channels past the second are dropped.
func DecodeWAV(r io.ReadSeeker) (*Buffer, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("not a valid wav file")
	}
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	channels := pcm.Format.NumChannels
	if channels < 1 {
		return nil, fmt.Errorf("wav has no channels")
	}
	depth := pcm.SourceBitDepth
	if depth == 0 {
		depth = int(d.BitDepth)
	}
	scale := math.Pow(2, float64(depth-1))
	if depth == 8 {
		scale = 128
	}

	n := len(pcm.Data) / channels
	frames := make([][2]float64, n)
	for i := 0; i < n; i++ {
		l := sampleValue(pcm.Data[i*channels], depth, scale)
		rgt := l
		if channels > 1 {
			rgt = sampleValue(pcm.Data[i*channels+1], depth, scale)
		}
		frames[i] = [2]float64{l, rgt}
	}
	return &Buffer{Rate: pcm.Format.SampleRate, Frames: frames}, nil
}

func sampleValue(v, depth int, scale float64) float64 {
	if depth == 8 {
		// 8-bit wav is unsigned
		return (float64(v) - 128) / scale
	}
	return float64(v) / scale
}
