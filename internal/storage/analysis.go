package storage

import (
	"fmt"
	"os"
	"sort"

	"github.com/schollz/beatkeeper/internal/logger"
	"github.com/schollz/beatkeeper/internal/types"
)

// Analysis is the upstream analyzer's output for a recording.
type Analysis struct {
	BPM             float64             `json:"bpm,omitempty"`
	BeatsPerMeasure int                 `json:"beatsPerMeasure,omitempty"`
	TempoRegions    []types.TempoRegion `json:"tempoRegions"`
	Onsets          []float64           `json:"onsets"`
}

// LoadAnalysis reads an analysis file. Regions come back sorted by start
// time; overlapping regions are dropped with a warning.
func LoadAnalysis(path string) (*Analysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse analysis %s: %w", path, err)
	}
	a.TempoRegions = cleanRegions(a.TempoRegions)
	sort.Float64s(a.Onsets)
	return &a, nil
}

func cleanRegions(in []types.TempoRegion) []types.TempoRegion {
	sort.SliceStable(in, func(i, j int) bool { return in[i].StartTime < in[j].StartTime })
	out := in[:0]
	end := 0.0
	for _, r := range in {
		if r.EndTime <= r.StartTime {
			continue
		}
		if len(out) > 0 && r.StartTime < end {
			logger.WithComponent("storage").WithField("region", r.ID).Warn("dropping overlapping tempo region")
			continue
		}
		out = append(out, r)
		end = r.EndTime
	}
	return out
}
