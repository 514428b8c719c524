// Package storage reads session and analysis files and persists the
// practice state between runs.
package storage

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/schollz/beatkeeper/internal/logger"
	"github.com/schollz/beatkeeper/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StateFile is the name of the practice state inside a project folder.
const StateFile = "data.json.gz"

// PracticeState is what survives a restart: where the user was and how the
// player was set up.
type PracticeState struct {
	Audio           string            `json:"audio"`
	Position        float64           `json:"position"`
	LoopRegion      *types.LoopRegion `json:"loopRegion,omitempty"`
	LoopEnabled     bool              `json:"loopEnabled"`
	PlaybackRate    float64           `json:"playbackRate"`
	Transpose       int               `json:"transpose"`
	AudioVolume     int               `json:"audioVolume"`
	MetronomeVolume int               `json:"metronomeVolume"`
	Accompaniment   bool              `json:"accompaniment"`
	SavedAt         time.Time         `json:"savedAt"`
}

// StateFromSnapshot captures the persistent part of a published snapshot.
func StateFromSnapshot(audio string, s types.Snapshot) PracticeState {
	st := PracticeState{
		Audio:           audio,
		Position:        s.CurrentTime,
		LoopEnabled:     s.LoopEnabled,
		PlaybackRate:    s.PlaybackRate,
		Transpose:       s.TransposeSemitones,
		AudioVolume:     s.AudioVolume,
		MetronomeVolume: s.MetronomeVolume,
	}
	if s.LoopRegion.Valid() {
		r := s.LoopRegion
		st.LoopRegion = &r
	}
	return st
}

// DoSave writes the state to <folder>/data.json.gz.
func DoSave(folder string, st PracticeState) error {
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return fmt.Errorf("create save folder: %w", err)
	}
	st.SavedAt = time.Now()

	path := filepath.Join(folder, StateFile)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(st); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode state: %w", err)
	}
	if err := gz.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	logger.WithComponent("storage").WithField("path", path).Debug("saved practice state")
	return nil
}

// LoadState reads the state saved in folder.
func LoadState(folder string) (PracticeState, error) {
	var st PracticeState
	f, err := os.Open(filepath.Join(folder, StateFile))
	if err != nil {
		return st, err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return st, fmt.Errorf("open state: %w", err)
	}
	defer gz.Close()
	if err := json.NewDecoder(gz).Decode(&st); err != nil {
		return st, fmt.Errorf("decode state: %w", err)
	}
	return st, nil
}
