package input

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/schollz/beatkeeper/internal/audio"
	"github.com/schollz/beatkeeper/internal/logger"
	"github.com/schollz/beatkeeper/internal/model"
)

// PrepareWaveform makes sure a downsampled copy of the recording exists for
// the waveform strip. Without one the strip is left empty.
func PrepareWaveform(m *model.Model) {
	if m.AudioFile == "" || m.WaveformFile != "" {
		return
	}
	file, err := audio.ConvertToWaveformFile(m.AudioFile, m.SaveFolder)
	if err != nil {
		logger.WithComponent("input").WithError(err).Warn("no waveform for recording")
		return
	}
	m.WaveformFile = file
}

// HandleWaveformInput handles the keys that move the waveform window. It
// reports whether the key was one of them.
func HandleWaveformInput(m *model.Model, msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "shift+left":
		m.JogWaveformView(-1, true)
	case "shift+right":
		m.JogWaveformView(1, true)
	case "up":
		m.ZoomWaveformView(true)
	case "down":
		m.ZoomWaveformView(false)
	case "f":
		m.FollowPlayhead = !m.FollowPlayhead
		if m.FollowPlayhead {
			m.KeepInView(m.Snapshot.CurrentTime)
		}
	case "0":
		m.ResetWaveformView(m.WaveformDuration)
		m.FollowPlayhead = true
	default:
		return nil, false
	}
	return nil, true
}
