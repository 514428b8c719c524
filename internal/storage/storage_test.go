package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schollz/beatkeeper/internal/types"
)

func TestDoSave(t *testing.T) {
	t.Run("successful save", func(t *testing.T) {
		saveFolder := filepath.Join(t.TempDir(), "test_save")

		err := DoSave(saveFolder, PracticeState{Audio: "take.wav", Position: 12.5})
		require.NoError(t, err)

		data, err := os.ReadFile(filepath.Join(saveFolder, "data.json.gz"))
		require.NoError(t, err)
		assert.NotEmpty(t, data)

		_, err = os.Stat(filepath.Join(saveFolder, "data.json.gz.tmp"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("save to invalid path", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

		err := DoSave(filepath.Join(file, "save"), PracticeState{})
		assert.Error(t, err)
	})
}

func TestLoadState(t *testing.T) {
	t.Run("load existing save file", func(t *testing.T) {
		saveFolder := filepath.Join(t.TempDir(), "test_load")
		want := PracticeState{
			Audio:           "take.wav",
			Position:        42.25,
			LoopRegion:      &types.LoopRegion{Start: 30, End: 60},
			LoopEnabled:     true,
			PlaybackRate:    0.75,
			Transpose:       -2,
			AudioVolume:     90,
			MetronomeVolume: 40,
			Accompaniment:   true,
		}
		require.NoError(t, DoSave(saveFolder, want))

		got, err := LoadState(saveFolder)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now(), got.SavedAt, time.Minute)
		got.SavedAt = time.Time{}
		assert.Equal(t, want, got)
	})

	t.Run("load nonexistent file", func(t *testing.T) {
		_, err := LoadState("/path/that/does/not/exist")
		assert.Error(t, err)
	})

	t.Run("corrupt file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, StateFile), []byte("not gzip"), 0o644))
		_, err := LoadState(dir)
		assert.Error(t, err)
	})
}

func TestStateFromSnapshot(t *testing.T) {
	s := types.Snapshot{
		CurrentTime:        17,
		PlaybackRate:       1.25,
		TransposeSemitones: 3,
		AudioVolume:        100,
		MetronomeVolume:    80,
		LoopRegion:         types.LoopRegion{Start: 4, End: 8},
	}
	st := StateFromSnapshot("a.wav", s)
	assert.Equal(t, "a.wav", st.Audio)
	assert.Equal(t, 17.0, st.Position)
	require.NotNil(t, st.LoopRegion)
	assert.Equal(t, types.LoopRegion{Start: 4, End: 8}, *st.LoopRegion)

	s.LoopRegion = types.LoopRegion{}
	assert.Nil(t, StateFromSnapshot("a.wav", s).LoopRegion)
}

func TestLoadSession(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "piece.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
audio: take5.wav
analysis: /abs/take5.json
bpm: 172
beatsPerMeasure: 5
musicStart: 0.42
syncStart: 8
loop: {start: 30, end: 60}
engine:
  pollInterval: 20ms
  drift:
    cadence: 4
`), 0o644))

	s, err := LoadSession(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "take5.wav"), s.Audio)
	assert.Equal(t, "/abs/take5.json", s.Analysis)
	assert.Equal(t, "", s.ClickSound)
	assert.Equal(t, 172.0, s.Timing.BPM)
	assert.Equal(t, 5, s.Timing.BeatsPerMeasure)
	assert.Equal(t, 0.42, s.Timing.MusicStart)
	require.NotNil(t, s.Timing.SyncStart)
	assert.Equal(t, 8.0, *s.Timing.SyncStart)
	assert.Equal(t, &types.LoopRegion{Start: 30, End: 60}, s.Loop)

	assert.Equal(t, 20*time.Millisecond, s.Engine.PollInterval)
	assert.Equal(t, time.Second, s.Engine.HealthInterval, "unset tunables keep defaults")
	assert.Equal(t, 4, s.Engine.Drift.Cadence)
	assert.Equal(t, 0.5, s.Engine.Drift.Clamp)
}

func TestSessionValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no audio", "bpm: 120\nbeatsPerMeasure: 4\n"},
		{"zero bpm", "audio: a.wav\nbeatsPerMeasure: 4\n"},
		{"no meter", "audio: a.wav\nbpm: 120\n"},
		{"bad loop", "audio: a.wav\nbpm: 120\nbeatsPerMeasure: 4\nloop: {start: 5, end: 5}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "s.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			s, err := LoadSession(path)
			require.NoError(t, err)
			assert.Error(t, s.Validate())
		})
	}

	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio: [\n"), 0o644))
	_, err := LoadSession(path)
	assert.Error(t, err)
}

func TestSessionTempoFromAnalysis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio: a.wav\nanalysis: a.json\n"), 0o644))

	s, err := LoadSession(path)
	require.NoError(t, err, "bpm may come from the analysis")
	require.Error(t, s.Validate())

	s.MergeAnalysis(&Analysis{BPM: 172, BeatsPerMeasure: 5})
	require.NoError(t, s.Validate())
	assert.Equal(t, 172.0, s.Timing.BPM)
	assert.Equal(t, 5, s.Timing.BeatsPerMeasure)

	s.MergeAnalysis(&Analysis{BPM: 90, BeatsPerMeasure: 3})
	assert.Equal(t, 172.0, s.Timing.BPM, "session values win")
	assert.Equal(t, 5, s.Timing.BeatsPerMeasure)
	s.MergeAnalysis(nil)
}

func TestSaveSessionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	s := &Session{Audio: filepath.Join(dir, "a.wav")}
	s.Timing.BPM = 96
	s.Timing.BeatsPerMeasure = 3
	require.NoError(t, SaveSession(path, s))

	got, err := LoadSession(path)
	require.NoError(t, err)
	assert.Equal(t, s.Audio, got.Audio)
	assert.Equal(t, 96.0, got.Timing.BPM)
	assert.Equal(t, 3, got.Timing.BeatsPerMeasure)
}

func TestLoadAnalysis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "bpm": 120,
  "tempoRegions": [
    {"id": "b", "startTime": 10, "endTime": 13, "type": "fermata", "confidence": 0.9},
    {"id": "a", "startTime": 0, "endTime": 10, "type": "steady", "bpm": 120, "confidence": 0.8},
    {"id": "overlap", "startTime": 12, "endTime": 20, "type": "rubato", "confidence": 0.5},
    {"id": "empty", "startTime": 30, "endTime": 30, "type": "steady", "confidence": 0.5}
  ],
  "onsets": [2.0, 0.5, 1.0]
}`), 0o644))

	a, err := LoadAnalysis(path)
	require.NoError(t, err)
	require.Len(t, a.TempoRegions, 2)
	assert.Equal(t, "a", a.TempoRegions[0].ID)
	require.NotNil(t, a.TempoRegions[0].BPM)
	assert.Equal(t, 120.0, *a.TempoRegions[0].BPM)
	assert.Equal(t, types.RegionFermata, a.TempoRegions[1].Type)
	assert.Equal(t, []float64{0.5, 1.0, 2.0}, a.Onsets)

	_, err = LoadAnalysis(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
