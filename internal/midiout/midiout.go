// Package midiout plays metronome clicks and percussion hits on a MIDI
// output port using General MIDI drum notes.
package midiout

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"k8s.io/utils/clock"

	"github.com/schollz/beatkeeper/internal/accompaniment"
	"github.com/schollz/beatkeeper/internal/click"
	"github.com/schollz/beatkeeper/internal/logger"
)

// DrumChannel is the General MIDI percussion channel (10, zero based).
const DrumChannel = 9

// NoteLength is how long a note is held before its note off.
const NoteLength = 50 * time.Millisecond

var notes = map[accompaniment.Voice]uint8{
	accompaniment.Kick:  36,
	accompaniment.Snare: 38,
	accompaniment.HiHat: 42,
}

const (
	downbeatNote = 76 // hi wood block
	beatNote     = 77 // low wood block
)

// Sink sends notes through a send function.
type Sink struct {
	send    func(midi.Message) error
	clock   clock.Clock
	channel uint8
	log     *logrus.Entry

	mu     sync.Mutex
	closer func()
}

// New returns a sink that sends with send. Note offs are scheduled on clk.
func New(send func(midi.Message) error, clk clock.Clock) *Sink {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Sink{
		send:    send,
		clock:   clk,
		channel: DrumChannel,
		log:     logger.WithComponent("midi"),
	}
}

// Open opens the first output port whose name contains port
// (case-insensitive).
func Open(port string) (*Sink, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("open midi driver: %w", err)
	}
	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("list midi outputs: %w", err)
	}
	out, err := findOut(outs, port)
	if err != nil {
		drv.Close()
		return nil, err
	}
	if err := out.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("open %s: %w", out, err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		out.Close()
		drv.Close()
		return nil, err
	}
	s := New(send, nil)
	s.closer = func() {
		out.Close()
		drv.Close()
	}
	s.log.WithField("port", out.String()).Info("midi output opened")
	return s, nil
}

func findOut(outs []drivers.Out, port string) (drivers.Out, error) {
	var names []string
	for _, o := range outs {
		if strings.Contains(strings.ToLower(o.String()), strings.ToLower(port)) {
			return o, nil
		}
		names = append(names, o.String())
	}
	return nil, fmt.Errorf("no midi output matching %q (have %s)", port, strings.Join(names, ", "))
}

// Click implements click.Sink.
func (s *Sink) Click(a click.Accent, volume float64) {
	note := uint8(beatNote)
	if a.Downbeat {
		note = downbeatNote
	}
	s.note(note, a.Gain*volume)
}

// Hit implements accompaniment.Sink.
func (s *Sink) Hit(v accompaniment.Voice, gain float64) {
	if note, ok := notes[v]; ok {
		s.note(note, gain)
	}
}

func (s *Sink) note(key uint8, gain float64) {
	vel := Velocity(gain)
	if vel == 0 {
		return
	}
	if err := s.send(midi.NoteOn(s.channel, key, vel)); err != nil {
		s.log.WithError(err).Debug("note on failed")
		return
	}
	s.clock.AfterFunc(NoteLength, func() {
		if err := s.send(midi.NoteOff(s.channel, key)); err != nil {
			s.log.WithError(err).Debug("note off failed")
		}
	})
}

// Velocity maps a 0..1 gain to a MIDI velocity.
func Velocity(gain float64) uint8 {
	if gain <= 0 {
		return 0
	}
	if gain >= 1 {
		return 127
	}
	v := uint8(gain*127 + 0.5)
	if v == 0 {
		v = 1
	}
	return v
}

// Close releases the port.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closer != nil {
		s.closer()
		s.closer = nil
	}
}
