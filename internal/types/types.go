package types

import (
	"fmt"
	"math"
)

// RegionType classifies a stretch of the recording by how its tempo behaves.
type RegionType string

const (
	RegionSteady      RegionType = "steady"
	RegionFermata     RegionType = "fermata"
	RegionRubato      RegionType = "rubato"
	RegionAccelerando RegionType = "accelerando"
	RegionRitardando  RegionType = "ritardando"
)

// IsHold reports whether the region stops the pulse (fermata or rubato).
func (t RegionType) IsHold() bool {
	return t == RegionFermata || t == RegionRubato
}

// TempoRegion is one entry of the tempo timeline produced by the upstream
// analyzer. Times are seconds on the audio timeline.
type TempoRegion struct {
	ID          string     `json:"id" yaml:"id"`
	StartTime   float64    `json:"startTime" yaml:"startTime"`
	EndTime     float64    `json:"endTime" yaml:"endTime"`
	Type        RegionType `json:"type" yaml:"type"`
	BPM         *float64   `json:"bpm,omitempty" yaml:"bpm,omitempty"`
	TargetBPM   *float64   `json:"targetBpm,omitempty" yaml:"targetBpm,omitempty"`
	Confidence  float64    `json:"confidence" yaml:"confidence"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
}

// Duration returns the region length in seconds.
func (r TempoRegion) Duration() float64 {
	return r.EndTime - r.StartTime
}

// Contains reports whether t falls inside [StartTime, EndTime).
func (r TempoRegion) Contains(t float64) bool {
	return t >= r.StartTime && t < r.EndTime
}

// BeatPosition is the musical position derived from elapsed time.
type BeatPosition struct {
	Measure  int
	Beat     int
	Progress float64
}

func (p BeatPosition) String() string {
	return fmt.Sprintf("%d.%d (%.2f)", p.Measure+1, p.Beat+1, p.Progress)
}

// LoopRegion is a practice loop in seconds.
type LoopRegion struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
}

// Valid reports whether the region has positive length.
func (r LoopRegion) Valid() bool {
	return r.Start < r.End && !math.IsNaN(r.Start) && !math.IsNaN(r.End)
}

// PlaybackState is the engine's explicit transport state.
type PlaybackState int

const (
	Stopped PlaybackState = iota
	Playing
	Paused
)

func (s PlaybackState) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// ClockMode selects which playback mechanism drives the clock.
type ClockMode int

const (
	// MediaMode plays through a pitch-preserving media player. Used when no
	// transposition is requested.
	MediaMode ClockMode = iota
	// BufferMode plays a decoded sample buffer with independent detune.
	BufferMode
)

func (m ClockMode) String() string {
	if m == BufferMode {
		return "buffer"
	}
	return "media"
}

// SupportedRates are the playback speeds offered to the user, ascending.
var SupportedRates = []float64{0.5, 0.6, 0.7, 0.75, 0.8, 0.9, 1.0, 1.1, 1.2, 1.25, 1.5}

// IsSupportedRate reports whether rate is one of SupportedRates.
func IsSupportedRate(rate float64) bool {
	for _, r := range SupportedRates {
		if math.Abs(r-rate) < 1e-9 {
			return true
		}
	}
	return false
}

// NextRate steps through SupportedRates from the current rate. Out of range
// steps saturate at the ends.
func NextRate(current float64, step int) float64 {
	idx := 0
	for i, r := range SupportedRates {
		if r <= current+1e-9 {
			idx = i
		}
	}
	idx += step
	if idx < 0 {
		idx = 0
	}
	if idx >= len(SupportedRates) {
		idx = len(SupportedRates) - 1
	}
	return SupportedRates[idx]
}

// Snapshot is the state the engine publishes once per tick to the UI and
// auxiliary consumers.
type Snapshot struct {
	State              PlaybackState
	IsPlaying          bool
	CurrentMeasure     int
	CurrentBeat        int
	Progress           float64
	CurrentTime        float64
	Duration           float64
	PlaybackRate       float64
	TransposeSemitones int
	AudioVolume        int
	MetronomeVolume    int
	IsInSyncRegion     bool
	LoopRegion         LoopRegion
	LoopEnabled        bool
	IsInFermata        bool
	CurrentTempoRegion *TempoRegion
	DriftOffset        float64
	ClockMode          ClockMode
	BPM                float64
	BeatsPerMeasure    int
}

// Position returns the snapshot's beat position.
func (s Snapshot) Position() BeatPosition {
	return BeatPosition{Measure: s.CurrentMeasure, Beat: s.CurrentBeat, Progress: s.Progress}
}
