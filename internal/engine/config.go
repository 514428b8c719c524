package engine

import (
	"time"

	"github.com/schollz/beatkeeper/internal/drift"
)

// Config holds the engine's tunables.
type Config struct {
	// PollInterval drives the background poller that keeps clicks going
	// when the display loop is throttled. Zero disables it.
	PollInterval time.Duration `yaml:"pollInterval"`
	// HealthInterval is the period of the pipeline health check. Zero
	// disables the periodic check.
	HealthInterval time.Duration `yaml:"healthInterval"`
	// SettleDelay is how long to wait after becoming visible before the
	// health check runs.
	SettleDelay time.Duration `yaml:"settleDelay"`

	FadeIn        time.Duration `yaml:"fadeIn"`
	FadeOut       time.Duration `yaml:"fadeOut"`
	RespawnFadeIn time.Duration `yaml:"respawnFadeIn"`
	VolumeRamp    time.Duration `yaml:"volumeRamp"`

	// EndTolerance is how close to the end of the recording an ended node
	// must be to count as a natural end.
	EndTolerance float64 `yaml:"endTolerance"`

	Drift drift.Config `yaml:"drift"`
}

// DefaultConfig returns the stock engine configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:   30 * time.Millisecond,
		HealthInterval: time.Second,
		SettleDelay:    250 * time.Millisecond,
		FadeIn:         15 * time.Millisecond,
		FadeOut:        20 * time.Millisecond,
		RespawnFadeIn:  50 * time.Millisecond,
		VolumeRamp:     30 * time.Millisecond,
		EndTolerance:   0.25,
		Drift:          drift.DefaultConfig(),
	}
}

// Timing describes the beat grid of a recording.
type Timing struct {
	BPM             float64 `yaml:"bpm" json:"bpm"`
	BeatsPerMeasure int     `yaml:"beatsPerMeasure" json:"beatsPerMeasure"`
	// MusicStart anchors the beat grid.
	MusicStart float64 `yaml:"musicStart" json:"musicStart"`
	// SyncStart is where the metronome starts. Nil means MusicStart.
	SyncStart *float64 `yaml:"syncStart,omitempty" json:"syncStart,omitempty"`
}

func (t Timing) syncStart() float64 {
	if t.SyncStart != nil {
		return *t.SyncStart
	}
	return t.MusicStart
}
