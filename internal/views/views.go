// Package views renders the player screen.
package views

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/termenv"

	"github.com/schollz/beatkeeper/internal/input"
	"github.com/schollz/beatkeeper/internal/model"
	"github.com/schollz/beatkeeper/internal/types"
)

// ViewStyles are the styles shared by every part of the screen.
type ViewStyles struct {
	Selected  lipgloss.Style
	Normal    lipgloss.Style
	Label     lipgloss.Style
	Container lipgloss.Style
	Playing   lipgloss.Style
	Paused    lipgloss.Style
	Warning   lipgloss.Style
	Loop      lipgloss.Style
}

type palette struct {
	Flash    string
	Beat     string
	Downbeat string
	Idle     lipgloss.Color
	Loop     lipgloss.Color
	Playhead lipgloss.Color
	Fermata  lipgloss.Color
}

func paletteFor(dark bool) palette {
	if dark {
		return palette{
			Flash:    "#ffffff",
			Beat:     "#3a7bd5",
			Downbeat: "#e0563b",
			Idle:     lipgloss.Color("8"),
			Loop:     lipgloss.Color("#d4a017"),
			Playhead: lipgloss.Color("#4be08a"),
			Fermata:  lipgloss.Color("#b07cff"),
		}
	}
	return palette{
		Flash:    "#000000",
		Beat:     "#1f5fbf",
		Downbeat: "#c0392b",
		Idle:     lipgloss.Color("7"),
		Loop:     lipgloss.Color("#9a6f00"),
		Playhead: lipgloss.Color("#138a46"),
		Fermata:  lipgloss.Color("#6b3fb8"),
	}
}

func getCommonStyles(dark bool) *ViewStyles {
	p := paletteFor(dark)
	normal := lipgloss.Color("15")
	if !dark {
		normal = lipgloss.Color("0")
	}
	return &ViewStyles{
		Selected:  lipgloss.NewStyle().Background(lipgloss.Color("7")).Foreground(lipgloss.Color("0")),
		Normal:    lipgloss.NewStyle().Foreground(normal),
		Label:     lipgloss.NewStyle().Foreground(p.Idle),
		Container: lipgloss.NewStyle().Padding(1, 2),
		Playing:   lipgloss.NewStyle().Foreground(p.Playhead).Bold(true),
		Paused:    lipgloss.NewStyle().Foreground(p.Loop),
		Warning:   lipgloss.NewStyle().Foreground(p.Fermata),
		Loop:      lipgloss.NewStyle().Foreground(p.Loop),
	}
}

// DetectDarkBackground asks the terminal for its background colour.
func DetectDarkBackground() bool {
	return termenv.HasDarkBackground()
}

// BeatColor is the colour of the active beat cell. It starts at the flash
// colour on the beat and fades to the beat colour as the beat progresses.
func BeatColor(dark, downbeat bool, progress float64) string {
	p := paletteFor(dark)
	base := p.Beat
	if downbeat {
		base = p.Downbeat
	}
	if progress <= 0 {
		return p.Flash
	}
	if progress >= 1 {
		return base
	}
	from, err := colorful.Hex(p.Flash)
	if err != nil {
		return base
	}
	to, err := colorful.Hex(base)
	if err != nil {
		return base
	}
	return from.BlendLab(to, progress).Clamped().Hex()
}

// RenderBeatIndicators draws one cell per beat of the measure.
func RenderBeatIndicators(s types.Snapshot, dark bool) string {
	n := s.BeatsPerMeasure
	if n < 1 {
		return ""
	}
	p := paletteFor(dark)
	idle := lipgloss.NewStyle().Foreground(p.Idle)
	cells := make([]string, n)
	for i := range cells {
		label := fmt.Sprintf(" %d ", i+1)
		switch {
		case s.IsInFermata:
			cells[i] = lipgloss.NewStyle().Foreground(p.Fermata).Render(label)
		case s.IsInSyncRegion && i == s.CurrentBeat:
			c := BeatColor(dark, i == 0, s.Progress)
			cells[i] = lipgloss.NewStyle().Background(lipgloss.Color(c)).Foreground(lipgloss.Color("0")).Render(label)
		default:
			cells[i] = idle.Render(label)
		}
	}
	return strings.Join(cells, " ")
}

// RenderHeader renders the title line with the right-hand content pushed to
// the edge.
func RenderHeader(m *model.Model, leftContent, rightContent string) string {
	availableWidth := m.TermWidth - 4
	paddingSize := availableWidth - lipgloss.Width(leftContent) - lipgloss.Width(rightContent)
	if paddingSize < 1 {
		paddingSize = 1
	}
	return leftContent + strings.Repeat(" ", paddingSize) + rightContent + "\n"
}

func stateLabel(styles *ViewStyles, s types.Snapshot) string {
	switch s.State {
	case types.Playing:
		return styles.Playing.Render("▶ playing")
	case types.Paused:
		return styles.Paused.Render("❚❚ paused")
	default:
		return styles.Label.Render("■ stopped")
	}
}

// renderTransport is the two-line status block under the beats.
func renderTransport(styles *ViewStyles, s types.Snapshot) string {
	pos := fmt.Sprintf("%s / %s", input.FormatTime(s.CurrentTime), input.FormatTime(s.Duration))
	beat := fmt.Sprintf("measure %d  beat %d", s.CurrentMeasure+1, s.CurrentBeat+1)
	if !s.IsInSyncRegion {
		beat = styles.Label.Render("before sync start")
	}
	line1 := fmt.Sprintf("%s  %s  %s", stateLabel(styles, s), styles.Normal.Render(pos), beat)

	fields := []string{
		fmt.Sprintf("%.0f bpm %d/4", s.BPM, s.BeatsPerMeasure),
		fmt.Sprintf("speed %.2fx", s.PlaybackRate),
		fmt.Sprintf("pitch %+d", s.TransposeSemitones),
		fmt.Sprintf("vol %d", s.AudioVolume),
		fmt.Sprintf("click %d", s.MetronomeVolume),
	}
	if s.DriftOffset != 0 {
		fields = append(fields, fmt.Sprintf("drift %+.0fms", s.DriftOffset*1000))
	}
	line2 := styles.Label.Render(strings.Join(fields, " · "))

	var extra []string
	if s.LoopRegion.Valid() {
		state := "off"
		if s.LoopEnabled {
			state = "on"
		}
		extra = append(extra, styles.Loop.Render(fmt.Sprintf("loop %s-%s %s",
			input.FormatTime(s.LoopRegion.Start), input.FormatTime(s.LoopRegion.End), state)))
	}
	if r := s.CurrentTempoRegion; r != nil {
		label := string(r.Type)
		if r.Description != "" {
			label += ": " + r.Description
		}
		if s.IsInFermata {
			extra = append(extra, styles.Warning.Render("hold · "+label))
		} else {
			extra = append(extra, styles.Label.Render(label))
		}
	}
	out := line1 + "\n" + line2 + "\n"
	if len(extra) > 0 {
		out += strings.Join(extra, "  ") + "\n"
	}
	return out
}

const helpText = "space play/pause · s stop · ←/→ measure · home/end · [ ] loop · l loop on/off · j loop start\n" +
	"-/= speed · t/T pitch · ,/. volume · </> click · d drums · g go to · ↑/↓ zoom · f follow · q quit"

// RenderPlayer renders the whole screen.
func RenderPlayer(m *model.Model) string {
	styles := getCommonStyles(m.Dark)
	s := m.Snapshot
	width := m.TermWidth - 4
	if width < 20 {
		width = 20
	}

	var content strings.Builder
	right := styles.Label.Render(s.ClockMode.String())
	if m.Accompaniment {
		right = styles.Label.Render("drums · ") + right
	}
	content.WriteString(RenderHeader(m, styles.Normal.Bold(true).Render(filepath.Base(m.AudioFile)), right))
	content.WriteString("\n")

	waveHeight := m.TermHeight - 18
	if waveHeight < 4 {
		waveHeight = 4
	}
	content.WriteString(RenderWaveformStrip(m, width, waveHeight))
	content.WriteString("\n")

	content.WriteString(RenderBeatIndicators(s, m.Dark))
	content.WriteString("\n\n")
	content.WriteString(renderTransport(styles, s))

	pct := 0.0
	if s.Duration > 0 {
		pct = s.CurrentTime / s.Duration
	}
	m.Progress.Width = width
	content.WriteString(m.Progress.ViewAs(pct))
	content.WriteString("\n\n")

	content.WriteString(RenderFooter(m, styles))
	return styles.Container.Render(content.String())
}

// RenderFooter shows the go-to input while it is active, otherwise the
// status message and key help.
func RenderFooter(m *model.Model, styles *ViewStyles) string {
	var content strings.Builder
	if m.GotoActive() {
		content.WriteString(m.GotoInput.View())
		content.WriteString("\n")
	} else if m.StatusMsg != "" {
		content.WriteString(styles.Normal.Render(m.StatusMsg))
		content.WriteString("\n")
	}
	content.WriteString(styles.Label.Render(helpText))
	return content.String()
}
