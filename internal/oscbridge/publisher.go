// Package oscbridge mirrors the engine over OSC: beats, clicks and
// percussion hits go out, transport commands come in.
package oscbridge

import (
	"context"

	"github.com/hypebeast/go-osc/osc"
	"github.com/sirupsen/logrus"

	"github.com/schollz/beatkeeper/internal/accompaniment"
	"github.com/schollz/beatkeeper/internal/click"
	"github.com/schollz/beatkeeper/internal/logger"
	"github.com/schollz/beatkeeper/internal/types"
)

// Sender is the part of *osc.Client the publisher uses.
type Sender interface {
	Send(packet osc.Packet) error
}

// Publisher sends engine events to an OSC listener.
type Publisher struct {
	send   Sender
	prefix string
	log    *logrus.Entry

	lastState types.PlaybackState
	lastBeat  [2]int
	hasBeat   bool
}

// NewPublisher returns a publisher sending to host:port.
func NewPublisher(host string, port int) *Publisher {
	return NewPublisherWithSender(osc.NewClient(host, port))
}

// NewPublisherWithSender wraps an existing sender.
func NewPublisherWithSender(s Sender) *Publisher {
	return &Publisher{
		send:   s,
		prefix: "/beatkeeper",
		log:    logger.WithComponent("osc"),
	}
}

func (p *Publisher) emit(addr string, args ...interface{}) {
	msg := osc.NewMessage(p.prefix+addr, args...)
	if err := p.send.Send(msg); err != nil {
		p.log.WithError(err).WithField("address", msg.Address).Debug("osc send failed")
	}
}

// Click implements click.Sink.
func (p *Publisher) Click(a click.Accent, volume float64) {
	down := int32(0)
	if a.Downbeat {
		down = 1
	}
	p.emit("/click", down, float32(a.Gain*volume))
}

// Hit implements accompaniment.Sink.
func (p *Publisher) Hit(v accompaniment.Voice, gain float64) {
	p.emit("/hit", string(v), float32(gain))
}

// Observe publishes transport changes and each new beat.
func (p *Publisher) Observe(s types.Snapshot) {
	if s.State != p.lastState {
		p.lastState = s.State
		p.emit("/state", s.State.String(), float32(s.CurrentTime))
		p.hasBeat = false
	}
	if !s.IsPlaying {
		return
	}
	beat := [2]int{s.CurrentMeasure, s.CurrentBeat}
	if p.hasBeat && beat == p.lastBeat {
		return
	}
	p.hasBeat = true
	p.lastBeat = beat
	fermata := int32(0)
	if s.IsInFermata {
		fermata = 1
	}
	p.emit("/beat", int32(s.CurrentMeasure), int32(s.CurrentBeat), float32(s.CurrentTime), fermata)
}

// Run publishes every snapshot until ctx is done or the channel closes.
func (p *Publisher) Run(ctx context.Context, snaps <-chan types.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-snaps:
			if !ok {
				return
			}
			p.Observe(s)
		}
	}
}
