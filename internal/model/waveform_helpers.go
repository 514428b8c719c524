package model

import "math"

// ResetWaveformView shows the whole recording.
func (m *Model) ResetWaveformView(duration float64) {
	m.WaveformDuration = duration
	m.WaveformStart = 0
	m.WaveformEnd = duration
}

// JogWaveformView moves the view left or right
func (m *Model) JogWaveformView(direction float64, fast bool) {
	duration := m.WaveformEnd - m.WaveformStart
	stepPercent := 0.05
	if fast {
		stepPercent = 0.25
	}
	m.FollowPlayhead = false
	m.shiftView(duration * stepPercent * direction)
}

func (m *Model) shiftView(step float64) {
	m.placeView(m.WaveformStart+step, m.WaveformEnd-m.WaveformStart)
}

// placeView sets a window of the given width starting at start, slid back
// inside the recording when it hangs over either end.
func (m *Model) placeView(start, width float64) {
	if start+width > m.WaveformDuration {
		start = m.WaveformDuration - width
	}
	if start < 0 {
		start = 0
	}
	m.WaveformStart = start
	m.WaveformEnd = math.Min(start+width, m.WaveformDuration)
}

// ZoomWaveformView zooms in or out around the playhead.
func (m *Model) ZoomWaveformView(zoomIn bool) {
	duration := m.WaveformEnd - m.WaveformStart
	center := (m.WaveformStart + m.WaveformEnd) / 2.0

	// drift the center 30% of the way to the playhead per zoom step
	if t := m.Snapshot.CurrentTime; t >= m.WaveformStart && t <= m.WaveformEnd {
		center += (t - center) * 0.3
	}

	var newDuration float64
	if zoomIn {
		newDuration = duration * 0.8
	} else {
		newDuration = duration * 1.25
	}
	if newDuration > m.WaveformDuration {
		newDuration = m.WaveformDuration
	}
	if newDuration < 0.5 && m.WaveformDuration >= 0.5 {
		newDuration = 0.5
	}

	m.placeView(center-newDuration/2.0, newDuration)
}

// KeepInView pages the window so t is visible, leaving a tenth of the window
// as margin on the right.
func (m *Model) KeepInView(t float64) {
	duration := m.WaveformEnd - m.WaveformStart
	if duration <= 0 || duration >= m.WaveformDuration {
		return
	}
	margin := duration * 0.1
	if t < m.WaveformStart || t > m.WaveformEnd-margin {
		m.placeView(t-margin, duration)
	}
}

// TimeToColumn maps a time to a column of a strip width cells wide. It
// returns -1 when t is outside the window.
func (m *Model) TimeToColumn(t float64, width int) int {
	duration := m.WaveformEnd - m.WaveformStart
	if width <= 0 || duration <= 0 || t < m.WaveformStart || t > m.WaveformEnd {
		return -1
	}
	x := int(float64(width-1) * (t - m.WaveformStart) / duration)
	if x >= width {
		x = width - 1
	}
	return x
}
