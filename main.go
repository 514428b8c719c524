package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/faiface/beep"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/schollz/beatkeeper/internal/accompaniment"
	"github.com/schollz/beatkeeper/internal/audio"
	"github.com/schollz/beatkeeper/internal/click"
	"github.com/schollz/beatkeeper/internal/engine"
	"github.com/schollz/beatkeeper/internal/input"
	"github.com/schollz/beatkeeper/internal/logger"
	"github.com/schollz/beatkeeper/internal/midiout"
	"github.com/schollz/beatkeeper/internal/model"
	"github.com/schollz/beatkeeper/internal/oscbridge"
	"github.com/schollz/beatkeeper/internal/storage"
	"github.com/schollz/beatkeeper/internal/types"
	"github.com/schollz/beatkeeper/internal/views"
)

var (
	Version = "dev"

	// Command-line configuration
	config struct {
		session         string
		audio           string
		analysis        string
		clickSound      string
		bpm             float64
		beatsPerMeasure int
		musicStart      float64
		syncStart       float64
		loop            string
		project         string
		debug           string
		logLevel        string
		oscHost         string
		oscPort         int
		oscListen       int
		midiOut         string
		drums           bool
		drumPattern     string
		saveSession     string
		drumVolume      int
		sampleRate      int
		fps             int
	}
)

var rootCmd = &cobra.Command{
	Use:   "beatkeeper [audio]",
	Short: "Practice along with a recording and a metronome that follows it",
	Long: `beatkeeper plays a recording with a metronome, drum accompaniment and
beat display locked to the music, including through fermatas and tempo
changes.

Features:
• Loop practice with seamless wrap-around
• Speed change with preserved pitch, and transposition
• Metronome drift correction against detected onsets
• OSC and MIDI output of clicks and beats`,
	Version: Version,
	Args:    cobra.MaximumNArgs(1),
	RunE:    runBeatkeeper,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&config.session, "session", "S", "",
		"Session file (YAML) describing the recording and its timing")
	flags.StringVarP(&config.audio, "audio", "a", "",
		"Recording to play (WAV, AIFF, MP3, OGG or FLAC)")
	flags.StringVar(&config.analysis, "analysis", "",
		"Analysis file (JSON) with tempo regions and onsets")
	flags.StringVar(&config.clickSound, "click-sound", "",
		"Sample to use for metronome clicks instead of the synthesized click")
	flags.Float64VarP(&config.bpm, "bpm", "b", 0,
		"Tempo of the recording")
	flags.IntVarP(&config.beatsPerMeasure, "beats-per-measure", "m", 4,
		"Beats per measure (defaults to the analysis, then 4)")
	flags.Float64Var(&config.musicStart, "music-start", 0,
		"Time in seconds of the first downbeat")
	flags.Float64Var(&config.syncStart, "sync-start", 0,
		"Time in seconds where the metronome starts (defaults to --music-start)")
	flags.StringVar(&config.loop, "loop", "",
		"Loop region as start-end in seconds, for example 30-60")
	flags.StringVarP(&config.project, "project", "p", "save",
		"Project directory for practice state and waveform files")
	flags.StringVarP(&config.debug, "log", "l", "",
		"Write debug logs to specified file (empty disables)")
	flags.StringVar(&config.logLevel, "log-level", "debug",
		"Log level when --log is set")
	flags.StringVar(&config.oscHost, "osc-host", "127.0.0.1",
		"Host to send OSC beat and click messages to")
	flags.IntVar(&config.oscPort, "osc-port", 0,
		"Port to send OSC beat and click messages to (0 disables)")
	flags.IntVar(&config.oscListen, "osc-listen", 0,
		"Port to accept OSC transport commands on (0 disables)")
	flags.StringVar(&config.midiOut, "midi-out", "",
		"MIDI output port (substring match) for clicks and drums")
	flags.BoolVarP(&config.drums, "drums", "d", false,
		"Start with the drum accompaniment enabled")
	flags.StringVar(&config.drumPattern, "drum-pattern", "backbeat",
		"Drum accompaniment pattern (backbeat, four-on-the-floor)")
	flags.StringVar(&config.saveSession, "save-session", "",
		"Write the resolved session to this YAML file")
	flags.IntVar(&config.drumVolume, "drum-volume", 80,
		"Drum accompaniment volume (0-100)")
	flags.IntVar(&config.sampleRate, "sample-rate", int(audio.DefaultSampleRate),
		"Output sample rate")
	flags.IntVar(&config.fps, "fps", 60,
		"Display refresh rate")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildSession merges the session file, if any, with the command line.
// Flags that were set explicitly win.
func buildSession(cmd *cobra.Command, args []string) (*storage.Session, error) {
	flags := cmd.Flags()
	s := &storage.Session{Engine: engine.DefaultConfig()}
	if config.session != "" {
		loaded, err := storage.LoadSession(config.session)
		if err != nil {
			return nil, err
		}
		s = loaded
	}
	if len(args) == 1 {
		s.Audio = args[0]
	}
	if flags.Changed("audio") {
		s.Audio = config.audio
	}
	if flags.Changed("analysis") {
		s.Analysis = config.analysis
	}
	if flags.Changed("click-sound") {
		s.ClickSound = config.clickSound
	}
	if flags.Changed("bpm") {
		s.Timing.BPM = config.bpm
	}
	if flags.Changed("beats-per-measure") {
		s.Timing.BeatsPerMeasure = config.beatsPerMeasure
	}
	if flags.Changed("music-start") {
		s.Timing.MusicStart = config.musicStart
	}
	if flags.Changed("sync-start") {
		v := config.syncStart
		s.Timing.SyncStart = &v
	}
	if flags.Changed("loop") {
		r, err := parseLoop(config.loop)
		if err != nil {
			return nil, err
		}
		s.Loop = &r
	}
	return s, nil
}

// completeSession fills what the session and flags left unset from the
// analysis, then validates. The meter falls back to the flag default.
func completeSession(s *storage.Session, a *storage.Analysis) error {
	s.MergeAnalysis(a)
	if s.Timing.BeatsPerMeasure == 0 {
		s.Timing.BeatsPerMeasure = config.beatsPerMeasure
	}
	return s.Validate()
}

func parseLoop(v string) (types.LoopRegion, error) {
	parts := strings.SplitN(v, "-", 2)
	if len(parts) != 2 {
		return types.LoopRegion{}, fmt.Errorf("loop %q is not start-end", v)
	}
	start, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return types.LoopRegion{}, fmt.Errorf("loop start: %w", err)
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return types.LoopRegion{}, fmt.Errorf("loop end: %w", err)
	}
	return types.LoopRegion{Start: start, End: end}, nil
}

func runBeatkeeper(cmd *cobra.Command, args []string) error {
	closer, err := logger.Configure(config.debug, config.logLevel)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer closer.Close()
	log := logger.WithComponent("main")

	sess, err := buildSession(cmd, args)
	if err != nil {
		return err
	}

	var analysis *storage.Analysis
	if sess.Analysis != "" {
		analysis, err = storage.LoadAnalysis(sess.Analysis)
		if err != nil {
			// analysis is optional, play on a plain grid without it
			log.WithError(err).Warn("analysis not loaded")
			analysis = nil
		}
	}
	if err := completeSession(sess, analysis); err != nil {
		return err
	}
	var regions []types.TempoRegion
	var onsets []float64
	if analysis != nil {
		regions, onsets = analysis.TempoRegions, analysis.Onsets
	}
	if config.saveSession != "" {
		if err := storage.SaveSession(config.saveSession, sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		log.WithField("path", config.saveSession).Info("session saved")
	}
	pattern, err := accompaniment.PatternNamed(config.drumPattern)
	if err != nil {
		return err
	}

	track, err := audio.DecodeFile(sess.Audio)
	if err != nil {
		return err
	}
	out := audio.NewOutput(beep.SampleRate(config.sampleRate), track)
	if err := out.Start(); err != nil {
		return err
	}
	defer out.Close()
	if sess.ClickSound != "" {
		out.LoadClickSound(sess.ClickSound)
	}

	clickSinks := click.Sinks{out}
	hitSinks := accompaniment.Sinks{out}
	var publisher *oscbridge.Publisher
	if config.oscPort > 0 {
		publisher = oscbridge.NewPublisher(config.oscHost, config.oscPort)
		clickSinks = append(clickSinks, publisher)
		hitSinks = append(hitSinks, publisher)
		log.WithField("port", config.oscPort).Info("sending osc")
	}
	if config.midiOut != "" {
		midi, err := midiout.Open(config.midiOut)
		if err != nil {
			log.WithError(err).Warn("midi output disabled")
		} else {
			defer midi.Close()
			clickSinks = append(clickSinks, midi)
			hitSinks = append(hitSinks, midi)
		}
	}

	eng := engine.New(sess.Engine, nil, clickSinks)
	defer eng.Close()
	if err := eng.Load(engine.Track{
		Backend: out,
		Timing:  sess.Timing,
		Regions: regions,
		Onsets:  onsets,
	}); err != nil {
		return err
	}

	drums := accompaniment.New(hitSinks)
	drums.SetPattern(pattern)
	drums.SetEnabled(config.drums)
	drums.SetVolume(float64(config.drumVolume) / 100)

	m := model.NewModel(sess.Audio, config.project)
	m.Dark = views.DetectDarkBackground()
	m.Accompaniment = config.drums
	restoreState(eng, drums, m, sess)
	input.PrepareWaveform(m)
	m.SetSnapshot(eng.Snapshot())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	drumSnaps, stopDrums := eng.Subscribe(8)
	defer stopDrums()
	go drums.Run(ctx, drumSnaps)
	if publisher != nil {
		oscSnaps, stopOSC := eng.Subscribe(8)
		defer stopOSC()
		go publisher.Run(ctx, oscSnaps)
	}
	if config.oscListen > 0 {
		server, err := oscbridge.NewServer(config.oscListen, eng)
		if err != nil {
			return err
		}
		go func() {
			log.WithField("port", config.oscListen).Info("starting osc server")
			if err := server.ListenAndServe(); err != nil {
				log.WithError(err).Error("osc server stopped")
			}
		}()
	}

	pm := &playerModel{
		model:  m,
		engine: eng,
		keys:   &input.Handler{Transport: eng, Accompaniment: drums},
		fps:    config.fps,
	}
	setupCleanupOnExit(cancel)

	p := tea.NewProgram(pm, tea.WithAltScreen(), tea.WithReportFocus())
	if _, err := p.Run(); err != nil {
		return err
	}

	st := storage.StateFromSnapshot(sess.Audio, eng.Snapshot())
	st.Accompaniment = drums.Enabled()
	if err := storage.DoSave(config.project, st); err != nil {
		log.WithError(err).Error("practice state not saved")
	}
	return nil
}

// restoreState applies the saved practice state when it belongs to the same
// recording, then the session's loop if one was given.
func restoreState(eng *engine.Engine, drums *accompaniment.Player, m *model.Model, sess *storage.Session) {
	log := logger.WithComponent("main")
	st, err := storage.LoadState(config.project)
	if err != nil {
		log.WithError(err).Debug("no saved practice state")
	} else if sameFile(st.Audio, sess.Audio) {
		eng.SetPlaybackRate(st.PlaybackRate)
		eng.SetTranspose(st.Transpose)
		eng.SetAudioVolume(st.AudioVolume)
		eng.SetMetronomeVolume(st.MetronomeVolume)
		if st.LoopRegion != nil {
			eng.SetLoopRegion(*st.LoopRegion)
			eng.SetLoopEnabled(st.LoopEnabled)
		}
		eng.Seek(st.Position)
		if !cmdFlagChanged("drums") {
			drums.SetEnabled(st.Accompaniment)
			m.Accompaniment = st.Accompaniment
		}
		log.WithFields(logrus.Fields{"position": st.Position, "saved": st.SavedAt}).Info("restored practice state")
	}
	if sess.Loop != nil {
		eng.SetLoopRegion(*sess.Loop)
		eng.SetLoopEnabled(true)
	}
}

func cmdFlagChanged(name string) bool {
	f := rootCmd.PersistentFlags().Lookup(name)
	return f != nil && f.Changed
}

func sameFile(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}

// playerModel wraps the model and implements the tea.Model interface
type playerModel struct {
	model  *model.Model
	engine *engine.Engine
	keys   *input.Handler
	fps    int
}

// displayTickMsg fires once per frame. The frame loop is the display
// poller: it advances timing and redraws.
type displayTickMsg struct{}

func tickDisplay(fps int) tea.Cmd {
	if fps <= 0 {
		fps = 60
	}
	return tea.Tick(time.Second/time.Duration(fps), func(time.Time) tea.Msg {
		return displayTickMsg{}
	})
}

func (pm *playerModel) Init() tea.Cmd {
	return tickDisplay(pm.fps)
}

func (pm *playerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		pm.model.TermHeight = msg.Height
		pm.model.TermWidth = msg.Width
		return pm, nil

	case displayTickMsg:
		pm.engine.DisplayTick()
		pm.model.SetSnapshot(pm.engine.Snapshot())
		return pm, tickDisplay(pm.fps)

	case tea.FocusMsg:
		pm.engine.SetVisible(true)
		return pm, nil

	case tea.BlurMsg:
		pm.engine.SetVisible(false)
		return pm, nil

	case tea.KeyMsg:
		cmd := pm.keys.HandleKeyInput(pm.model, msg)
		pm.model.SetSnapshot(pm.engine.Snapshot())
		return pm, cmd
	}
	return pm, nil
}

func (pm *playerModel) View() string {
	return views.RenderPlayer(pm.model)
}

func setupCleanupOnExit(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-c
		cancel()
		os.Exit(0)
	}()
}
