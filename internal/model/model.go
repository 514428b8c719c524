// Package model holds the terminal UI state.
package model

import (
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"

	"github.com/schollz/beatkeeper/internal/types"
)

// Model is everything the views render. It is owned by the bubbletea loop
// and never touched from other goroutines.
type Model struct {
	TermWidth  int
	TermHeight int

	// Snapshot is the latest state published by the engine.
	Snapshot types.Snapshot

	AudioFile    string
	WaveformFile string
	SaveFolder   string

	// visible window of the waveform strip, in seconds
	WaveformStart    float64
	WaveformEnd      float64
	WaveformDuration float64
	// FollowPlayhead scrolls the window to keep the playhead visible.
	FollowPlayhead bool

	GotoInput textinput.Model
	Progress  progress.Model

	Accompaniment bool
	Dark          bool
	StatusMsg     string
}

// NewModel returns a model for a recording.
func NewModel(audioFile, saveFolder string) *Model {
	ti := textinput.New()
	ti.Prompt = "go to: "
	ti.Placeholder = "1:23.5, 83.5 or m12"
	ti.CharLimit = 16
	ti.Width = 20

	return &Model{
		TermWidth:      80,
		TermHeight:     24,
		AudioFile:      audioFile,
		SaveFolder:     saveFolder,
		FollowPlayhead: true,
		GotoInput:      ti,
		Progress:       progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		Dark:           true,
	}
}

// GotoActive reports whether the go-to input has keyboard focus.
func (m *Model) GotoActive() bool {
	return m.GotoInput.Focused()
}

// SetSnapshot stores a new engine snapshot.
func (m *Model) SetSnapshot(s types.Snapshot) {
	if s.Duration > 0 && s.Duration != m.WaveformDuration {
		m.ResetWaveformView(s.Duration)
	}
	m.Snapshot = s
	if m.FollowPlayhead {
		m.KeepInView(s.CurrentTime)
	}
}

// SetStatus sets the one-line status message shown under the transport.
func (m *Model) SetStatus(msg string) {
	m.StatusMsg = msg
}
