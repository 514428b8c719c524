package audio

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// waveformRate is the sample rate of the cached waveform files. It only
// needs to resolve the envelope.
const waveformRate = 8000

// ConvertToWaveformFile writes a mono, downsampled copy of a recording to
// <projectDir>/waveforms for the waveform view and returns its absolute
// path. An existing copy for the same source file is reused.
func ConvertToWaveformFile(src, projectDir string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	dir, err := filepath.Abs(filepath.Join(projectDir, "waveforms"))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create waveform dir: %w", err)
	}

	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%d", src, info.Size(), info.ModTime().UnixNano())))
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	out := filepath.Join(dir, fmt.Sprintf("%s-%s.wav", base, hex.EncodeToString(sum[:4])))
	if _, err := os.Stat(out); err == nil {
		return out, nil
	}

	buf, err := DecodeFile(src)
	if err != nil {
		return "", err
	}
	if err := writeMono(out, buf, waveformRate); err != nil {
		os.Remove(out)
		return "", err
	}
	return out, nil
}

func writeMono(path string, b *Buffer, rate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if b.Rate < rate {
		rate = b.Rate
	}
	frames := b.resampled(float64(b.Rate) / float64(rate))
	data := make([]int, len(frames))
	for i, fr := range frames {
		v := (fr[0] + fr[1]) / 2
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		data[i] = int(v * 32767)
	}

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	err = enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	})
	if err != nil {
		return fmt.Errorf("write waveform: %w", err)
	}
	return enc.Close()
}
