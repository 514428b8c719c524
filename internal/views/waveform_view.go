package views

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/gowaveform"

	"github.com/schollz/beatkeeper/internal/model"
)

// waveCache keeps the last rendered block grid so only the markers are
// redrawn per frame.
var waveCache struct {
	sync.Mutex
	key  string
	rows [][]string
	err  error
}

// RenderWaveformStrip renders the recording's waveform for the visible
// window with the loop region and playhead overlaid.
func RenderWaveformStrip(m *model.Model, width, height int) string {
	if m.WaveformFile == "" || m.WaveformEnd <= m.WaveformStart {
		return strings.Repeat(strings.Repeat(" ", width)+"\n", height) +
			generateTimestampRuler(width, m.WaveformStart, m.WaveformEnd)
	}
	rows, err := waveformRows(m.WaveformFile, width, height, m.WaveformStart, m.WaveformEnd)
	if err != nil {
		return getCommonStyles(m.Dark).Label.Render(fmt.Sprintf("waveform unavailable: %v", err)) + "\n"
	}

	p := paletteFor(m.Dark)
	loopStyle := lipgloss.NewStyle().Foreground(p.Loop)
	edgeStyle := lipgloss.NewStyle().Foreground(p.Loop).Bold(true)
	headStyle := lipgloss.NewStyle().Foreground(p.Playhead).Bold(true)

	s := m.Snapshot
	loopStart, loopEnd := -1, -1
	if s.LoopRegion.Valid() {
		loopStart = clampColumn(m, s.LoopRegion.Start, width)
		loopEnd = clampColumn(m, s.LoopRegion.End, width)
	}
	head := m.TimeToColumn(s.CurrentTime, width)

	var sb strings.Builder
	for y := range rows {
		for x, char := range rows[y] {
			switch {
			case x == head:
				if char == " " {
					char = "│"
				}
				sb.WriteString(headStyle.Render(char))
			case x == loopStart || x == loopEnd:
				if char == " " {
					char = "┊"
				}
				sb.WriteString(edgeStyle.Render(char))
			case loopStart >= 0 && s.LoopEnabled && x > loopStart && x < loopEnd:
				sb.WriteString(loopStyle.Render(char))
			default:
				sb.WriteString(char)
			}
		}
		sb.WriteString("\n")
	}
	sb.WriteString(generateTimestampRuler(width, m.WaveformStart, m.WaveformEnd))
	return sb.String()
}

// clampColumn is TimeToColumn with times outside the window pinned just
// outside the strip, so a loop spanning the window still shades it.
func clampColumn(m *model.Model, t float64, width int) int {
	if t < m.WaveformStart {
		return -1
	}
	if t > m.WaveformEnd {
		return width
	}
	return m.TimeToColumn(t, width)
}

func waveformRows(file string, width, height int, start, end float64) ([][]string, error) {
	key := fmt.Sprintf("%s|%d|%d|%.4f|%.4f", file, width, height, start, end)
	waveCache.Lock()
	defer waveCache.Unlock()
	if waveCache.key == key {
		return waveCache.rows, waveCache.err
	}
	rows, err := renderWaveformRows(file, width, height, start, end)
	waveCache.key, waveCache.rows, waveCache.err = key, rows, err
	return rows, err
}

// renderWaveformRows draws min/max pairs as block characters.
func renderWaveformRows(file string, width, height int, start, end float64) ([][]string, error) {
	wf, err := gowaveform.LoadWaveform(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load waveform: %w", err)
	}
	view, err := wf.GenerateView(gowaveform.WaveformOptions{
		Start: start,
		End:   end,
		Width: width,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate view: %w", err)
	}

	// 8 vertical segments per character cell
	const segmentsPerChar = 8
	virtualHeight := height * segmentsPerChar
	grid := make([][]bool, virtualHeight)
	for i := range grid {
		grid[i] = make([]bool, width)
	}

	var maxAbs int16 = 1
	if view != nil {
		for _, val := range view.Data {
			if val < 0 && -val > maxAbs {
				maxAbs = -val
			} else if val > maxAbs {
				maxAbs = val
			}
		}
		center := virtualHeight / 2
		for i := 0; i < len(view.Data)/2 && i < width; i++ {
			minY := center - int(float64(view.Data[i*2])/float64(maxAbs)*float64(center))
			maxY := center - int(float64(view.Data[i*2+1])/float64(maxAbs)*float64(center))
			minY = clampInt(minY, 0, virtualHeight-1)
			maxY = clampInt(maxY, 0, virtualHeight-1)
			if minY > maxY {
				minY, maxY = maxY, minY
			}
			for y := minY; y <= maxY; y++ {
				grid[y][i] = true
			}
		}
	}

	rows := make([][]string, height)
	centerY := height / 2
	for y := 0; y < height; y++ {
		rows[y] = make([]string, width)
		for x := 0; x < width; x++ {
			if y < centerY {
				rows[y][x] = upperHalfChar(grid, x, y, segmentsPerChar)
			} else {
				rows[y][x] = lowerHalfChar(grid, x, y, segmentsPerChar)
			}
		}
	}
	return rows, nil
}

var upperBlocks = []string{" ", "▔", "🮂", "🮃", "▀", "🮄", "🮅", "🮆", "█"}

var lowerBlocks = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// upperHalfChar picks the block hanging from the top of the cell that
// covers the deepest filled segment.
func upperHalfChar(grid [][]bool, x, y, segmentsPerChar int) string {
	base := y * segmentsPerChar
	for i := segmentsPerChar - 1; i >= 0; i-- {
		if base+i < len(grid) && grid[base+i][x] {
			return upperBlocks[i+1]
		}
	}
	return " "
}

// lowerHalfChar picks the block rising from the bottom of the cell that
// covers the highest filled segment.
func lowerHalfChar(grid [][]bool, x, y, segmentsPerChar int) string {
	base := y * segmentsPerChar
	for i := 0; i < segmentsPerChar; i++ {
		if base+i < len(grid) && grid[base+i][x] {
			return lowerBlocks[segmentsPerChar-i]
		}
	}
	return " "
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// generateTimestampRuler labels the strip with times under tick marks.
func generateTimestampRuler(width int, start, end float64) string {
	duration := end - start
	if width <= 0 {
		return "\n"
	}
	if duration <= 0 {
		return strings.Repeat(" ", width) + "\n"
	}

	var precision int
	var interval float64
	switch {
	case duration < 1.0:
		precision, interval = 2, 0.1
	case duration < 10.0:
		precision, interval = 1, 1.0
	case duration < 60.0:
		precision, interval = 0, 5.0
	default:
		precision, interval = 0, 15.0
	}

	// room for one label per ~10 columns
	maxLabels := width / 10
	if maxLabels < 2 {
		maxLabels = 2
	}
	for int(duration/interval) > maxLabels {
		interval *= 2
	}

	tickLine := []rune(strings.Repeat(" ", width))
	labelLine := []rune(strings.Repeat(" ", width))
	first := float64(int(start/interval)) * interval
	if first < start {
		first += interval
	}
	for t := first; t <= end+1e-9; t += interval {
		pos := int(float64(width-1) * (t - start) / duration)
		if pos < 0 || pos >= width {
			continue
		}
		tickLine[pos] = '|'
		label := formatRulerTime(t, precision)
		at := pos - len(label)/2
		if at < 0 {
			at = 0
		}
		if at+len(label) > width {
			at = width - len(label)
		}
		for i, ch := range label {
			if at+i >= 0 && at+i < width {
				labelLine[at+i] = ch
			}
		}
	}
	return string(tickLine) + "\n" + string(labelLine) + "\n"
}

func formatRulerTime(t float64, precision int) string {
	if t >= 60 {
		m := int(t) / 60
		return fmt.Sprintf("%d:%02.0f", m, t-float64(m*60))
	}
	return fmt.Sprintf("%.*f", precision, t)
}
