// Package input maps key presses to engine commands.
package input

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/schollz/beatkeeper/internal/logger"
	"github.com/schollz/beatkeeper/internal/model"
	"github.com/schollz/beatkeeper/internal/types"
)

// Transport is the engine surface the keyboard drives.
type Transport interface {
	TogglePlay()
	Stop()
	Seek(t float64)
	SeekByMeasures(delta int)
	SeekToMeasure(n int)
	SkipToStart()
	SkipToEnd()
	SetPlaybackRate(rate float64)
	SetTranspose(semitones int)
	SetAudioVolume(v int)
	SetMetronomeVolume(v int)
	SetLoopRegion(r types.LoopRegion)
	SetLoopEnabled(enabled bool)
	JumpToLoopStart()
}

// Accompaniment is the drum player toggle.
type Accompaniment interface {
	SetEnabled(enabled bool)
	Enabled() bool
}

// Handler routes keys for one session.
type Handler struct {
	Transport     Transport
	Accompaniment Accompaniment
}

const volumeStep = 5

// HandleKeyInput applies a key press. While the go-to input has focus every
// key goes to it, so the space bar types instead of toggling playback.
func (h *Handler) HandleKeyInput(m *model.Model, msg tea.KeyMsg) tea.Cmd {
	if m.GotoActive() {
		return h.handleGotoInput(m, msg)
	}
	if cmd, ok := HandleWaveformInput(m, msg); ok {
		return cmd
	}

	s := m.Snapshot
	t := h.Transport
	switch msg.String() {
	case "ctrl+c", "q":
		return tea.Quit
	case " ":
		t.TogglePlay()
	case "s":
		t.Stop()
	case "left":
		t.SeekByMeasures(-1)
	case "right":
		t.SeekByMeasures(1)
	case "home":
		t.SkipToStart()
	case "end":
		t.SkipToEnd()
	case "-":
		t.SetPlaybackRate(types.NextRate(s.PlaybackRate, -1))
	case "=", "+":
		t.SetPlaybackRate(types.NextRate(s.PlaybackRate, 1))
	case "t":
		t.SetTranspose(s.TransposeSemitones - 1)
	case "T":
		t.SetTranspose(s.TransposeSemitones + 1)
	case ",":
		t.SetAudioVolume(s.AudioVolume - volumeStep)
	case ".":
		t.SetAudioVolume(s.AudioVolume + volumeStep)
	case "<":
		t.SetMetronomeVolume(s.MetronomeVolume - volumeStep)
	case ">":
		t.SetMetronomeVolume(s.MetronomeVolume + volumeStep)
	case "l":
		if !s.LoopEnabled && !s.LoopRegion.Valid() {
			m.SetStatus("set a loop with [ and ] first")
			return nil
		}
		t.SetLoopEnabled(!s.LoopEnabled)
	case "[":
		r := loopOrWhole(s)
		r.Start = s.CurrentTime
		if r.Start >= r.End {
			r.End = s.Duration
		}
		t.SetLoopRegion(r)
		m.SetStatus(fmt.Sprintf("loop start %s", FormatTime(r.Start)))
	case "]":
		r := loopOrWhole(s)
		r.End = s.CurrentTime
		if r.Start >= r.End {
			r.Start = 0
		}
		t.SetLoopRegion(r)
		m.SetStatus(fmt.Sprintf("loop end %s", FormatTime(r.End)))
	case "j":
		t.JumpToLoopStart()
	case "d":
		if h.Accompaniment != nil {
			on := !h.Accompaniment.Enabled()
			h.Accompaniment.SetEnabled(on)
			m.Accompaniment = on
		}
	case "g":
		m.GotoInput.Reset()
		return m.GotoInput.Focus()
	}
	return nil
}

func loopOrWhole(s types.Snapshot) types.LoopRegion {
	if s.LoopRegion.Valid() {
		return s.LoopRegion
	}
	return types.LoopRegion{Start: 0, End: s.Duration}
}

func (h *Handler) handleGotoInput(m *model.Model, msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.GotoInput.Blur()
		return nil
	case tea.KeyEnter:
		value := m.GotoInput.Value()
		m.GotoInput.Blur()
		target, err := ParseTarget(value)
		if err != nil {
			m.SetStatus(err.Error())
			logger.WithComponent("input").WithError(err).Debug("bad go-to target")
			return nil
		}
		if target.IsMeasure {
			h.Transport.SeekToMeasure(target.Measure)
		} else {
			h.Transport.Seek(target.Time)
		}
		return nil
	}
	var cmd tea.Cmd
	m.GotoInput, cmd = m.GotoInput.Update(msg)
	return cmd
}
