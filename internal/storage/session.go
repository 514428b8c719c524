package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/schollz/beatkeeper/internal/engine"
	"github.com/schollz/beatkeeper/internal/types"
)

// Session describes one practice piece.
//
//	audio: take5.wav
//	analysis: take5.analysis.json
//	bpm: 172
//	beatsPerMeasure: 5
//	musicStart: 0.42
//	loop: {start: 30, end: 60}
//	engine:
//	  pollInterval: 30ms
type Session struct {
	Audio      string            `yaml:"audio"`
	Analysis   string            `yaml:"analysis,omitempty"`
	ClickSound string            `yaml:"clickSound,omitempty"`
	Timing     engine.Timing     `yaml:",inline"`
	Loop       *types.LoopRegion `yaml:"loop,omitempty"`
	Engine     engine.Config     `yaml:"engine,omitempty"`
}

// LoadSession parses a session file. Relative paths are resolved against the
// file's directory and unset engine tunables keep their defaults. The result
// is not validated: tempo and meter may still come from the analysis or the
// command line.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s := &Session{Engine: engine.DefaultConfig()}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	s.Audio = resolve(dir, s.Audio)
	s.Analysis = resolve(dir, s.Analysis)
	s.ClickSound = resolve(dir, s.ClickSound)
	return s, nil
}

// Validate checks the fields the engine cannot default.
func (s *Session) Validate() error {
	if s.Audio == "" {
		return fmt.Errorf("no audio file")
	}
	if s.Timing.BPM <= 0 {
		return fmt.Errorf("bpm must be positive, got %v", s.Timing.BPM)
	}
	if s.Timing.BeatsPerMeasure < 1 {
		return fmt.Errorf("beats per measure must be at least 1, got %d", s.Timing.BeatsPerMeasure)
	}
	if s.Loop != nil && !s.Loop.Valid() {
		return fmt.Errorf("loop start %.2f is not before end %.2f", s.Loop.Start, s.Loop.End)
	}
	return nil
}

// MergeAnalysis fills tempo and meter from a when the session leaves them
// unset.
func (s *Session) MergeAnalysis(a *Analysis) {
	if a == nil {
		return
	}
	if s.Timing.BPM <= 0 {
		s.Timing.BPM = a.BPM
	}
	if s.Timing.BeatsPerMeasure == 0 {
		s.Timing.BeatsPerMeasure = a.BeatsPerMeasure
	}
}

// SaveSession writes s as YAML.
func SaveSession(path string, s *Session) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
