// Package drift nudges the beat grid toward externally detected onsets.
package drift

import (
	"math"
	"sort"
)

// Config holds the tuning constants of the corrector.
type Config struct {
	// Cadence is how many beats pass between checks.
	Cadence int `yaml:"cadence"`
	// Window is the number of samples kept.
	Window int `yaml:"window"`
	// MinSamples must be present before a correction is considered.
	MinSamples int `yaml:"minSamples"`
	// Threshold is the average drift, in seconds, that triggers a correction.
	Threshold float64 `yaml:"threshold"`
	// Factor is the share of the average drift applied per correction.
	Factor float64 `yaml:"factor"`
	// Clamp bounds the cumulative offset in seconds.
	Clamp float64 `yaml:"clamp"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Cadence:    8,
		Window:     4,
		MinSamples: 3,
		Threshold:  0.030,
		Factor:     0.5,
		Clamp:      0.5,
	}
}

// Corrector keeps a rolling window of drift samples and the cumulative
// offset derived from them.
type Corrector struct {
	cfg         Config
	onsets      []float64
	samples     []float64
	offset      float64
	lastChecked int
}

// New returns a corrector over onsets. A nil or empty onset set disables
// correction.
func New(cfg Config, onsets []float64) *Corrector {
	if cfg.Cadence < 1 {
		cfg.Cadence = 1
	}
	if cfg.Window < 1 {
		cfg.Window = 1
	}
	sorted := append([]float64(nil), onsets...)
	sort.Float64s(sorted)
	return &Corrector{cfg: cfg, onsets: sorted, lastChecked: -1}
}

// Enabled reports whether there are onsets to compare against.
func (c *Corrector) Enabled() bool {
	return len(c.onsets) > 0
}

// Offset is the cumulative correction in seconds. Positive means the
// recording runs later than the grid.
func (c *Corrector) Offset() float64 {
	return c.offset
}

// Check compares the beat at beatIndex, which the grid places at beatTime
// before correction, with the nearest onset. It only acts on every Cadence-th
// beat and once per beat. It reports whether the offset changed.
func (c *Corrector) Check(beatIndex int, beatTime, beatInterval float64) bool {
	if !c.Enabled() || beatIndex < 0 || beatIndex%c.cfg.Cadence != 0 || beatIndex == c.lastChecked {
		return false
	}
	c.lastChecked = beatIndex

	expected := beatTime + c.offset
	onset, ok := c.nearest(expected, beatInterval/2)
	if !ok {
		return false
	}
	c.samples = append(c.samples, onset-expected)
	if len(c.samples) > c.cfg.Window {
		c.samples = c.samples[len(c.samples)-c.cfg.Window:]
	}
	if len(c.samples) < c.cfg.MinSamples {
		return false
	}

	sum := 0.0
	positive, negative := 0, 0
	for _, s := range c.samples {
		sum += s
		if s > 0 {
			positive++
		} else if s < 0 {
			negative++
		}
	}
	avg := sum / float64(len(c.samples))
	if math.Abs(avg) <= c.cfg.Threshold {
		return false
	}
	if positive != len(c.samples) && negative != len(c.samples) {
		return false
	}

	c.offset = clamp(c.offset+avg*c.cfg.Factor, c.cfg.Clamp)
	c.samples = c.samples[:0]
	return true
}

func (c *Corrector) nearest(t, within float64) (float64, bool) {
	i := sort.SearchFloat64s(c.onsets, t)
	best, found := 0.0, false
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(c.onsets) {
			continue
		}
		d := math.Abs(c.onsets[j] - t)
		if d <= within && (!found || d < math.Abs(best-t)) {
			best, found = c.onsets[j], true
		}
	}
	return best, found
}

// Reset clears the sample window. The cumulative offset is kept.
func (c *Corrector) Reset() {
	c.samples = c.samples[:0]
	c.lastChecked = -1
}

// Clear drops the window and the offset.
func (c *Corrector) Clear() {
	c.Reset()
	c.offset = 0
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
