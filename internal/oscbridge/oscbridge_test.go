package oscbridge

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schollz/beatkeeper/internal/accompaniment"
	"github.com/schollz/beatkeeper/internal/click"
	"github.com/schollz/beatkeeper/internal/types"
)

type recordingSender struct {
	msgs []*osc.Message
	err  error
}

func (r *recordingSender) Send(p osc.Packet) error {
	if m, ok := p.(*osc.Message); ok {
		r.msgs = append(r.msgs, m)
	}
	return r.err
}

func (r *recordingSender) addresses() []string {
	var out []string
	for _, m := range r.msgs {
		out = append(out, m.Address)
	}
	return out
}

func TestPublisherSinks(t *testing.T) {
	rec := &recordingSender{}
	p := NewPublisherWithSender(rec)

	p.Click(click.DownbeatAccent, 0.5)
	p.Hit(accompaniment.Snare, 0.8)

	require.Len(t, rec.msgs, 2)
	assert.Equal(t, "/beatkeeper/click", rec.msgs[0].Address)
	assert.Equal(t, []interface{}{int32(1), float32(0.5)}, rec.msgs[0].Arguments)
	assert.Equal(t, "/beatkeeper/hit", rec.msgs[1].Address)
	assert.Equal(t, []interface{}{"snare", float32(0.8)}, rec.msgs[1].Arguments)
}

func TestPublisherObserve(t *testing.T) {
	rec := &recordingSender{}
	p := NewPublisherWithSender(rec)

	playing := types.Snapshot{State: types.Playing, IsPlaying: true, CurrentMeasure: 2, CurrentBeat: 1, CurrentTime: 5.5}
	p.Observe(playing)
	p.Observe(playing)
	playing.CurrentBeat = 2
	p.Observe(playing)
	p.Observe(types.Snapshot{State: types.Paused, CurrentTime: 6})
	p.Observe(types.Snapshot{State: types.Paused, CurrentTime: 6})

	assert.Equal(t, []string{
		"/beatkeeper/state",
		"/beatkeeper/beat",
		"/beatkeeper/beat",
		"/beatkeeper/state",
	}, rec.addresses())
	assert.Equal(t, []interface{}{int32(2), int32(1), float32(5.5), int32(0)}, rec.msgs[1].Arguments)
	assert.Equal(t, []interface{}{"paused", float32(6)}, rec.msgs[3].Arguments)
}

func TestPublisherSendErrorsAreSwallowed(t *testing.T) {
	rec := &recordingSender{err: errors.New("no route")}
	p := NewPublisherWithSender(rec)
	assert.NotPanics(t, func() { p.Click(click.BeatAccent, 1) })
	assert.Len(t, rec.msgs, 1)
}

type fakeController struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeController) record(format string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeController) Play() { f.record("play") }
func (f *fakeController) Pause() { f.record("pause") }
func (f *fakeController) Stop() { f.record("stop") }
func (f *fakeController) TogglePlay() { f.record("toggle") }
func (f *fakeController) Seek(t float64) { f.record("seek %.2f", t) }
func (f *fakeController) SeekByMeasures(d int) { f.record("measures %d", d) }
func (f *fakeController) SeekToMeasure(n int) { f.record("measure %d", n) }
func (f *fakeController) SetPlaybackRate(r float64) { f.record("rate %.2f", r) }
func (f *fakeController) SetTranspose(n int) { f.record("transpose %d", n) }
func (f *fakeController) SetAudioVolume(v int) { f.record("volume %d", v) }
func (f *fakeController) SetMetronomeVolume(v int) { f.record("metronome %d", v) }
func (f *fakeController) SetLoopRegion(r types.LoopRegion) { f.record("loop %.1f-%.1f", r.Start, r.End) }
func (f *fakeController) SetLoopEnabled(on bool) { f.record("loop %v", on) }
func (f *fakeController) JumpToLoopStart() { f.record("jump") }

func TestControlDispatch(t *testing.T) {
	tests := []struct {
		msg  *osc.Message
		want string
	}{
		{osc.NewMessage("/beatkeeper/play"), "play"},
		{osc.NewMessage("/beatkeeper/pause"), "pause"},
		{osc.NewMessage("/beatkeeper/stop"), "stop"},
		{osc.NewMessage("/beatkeeper/toggle"), "toggle"},
		{osc.NewMessage("/beatkeeper/seek", float32(12.5)), "seek 12.50"},
		{osc.NewMessage("/beatkeeper/measure", int32(-2)), "measures -2"},
		{osc.NewMessage("/beatkeeper/goto", int32(12)), "measure 12"},
		{osc.NewMessage("/beatkeeper/rate", float32(0.75)), "rate 0.75"},
		{osc.NewMessage("/beatkeeper/transpose", int32(3)), "transpose 3"},
		{osc.NewMessage("/beatkeeper/volume", int32(70)), "volume 70"},
		{osc.NewMessage("/beatkeeper/metronome", float32(40)), "metronome 40"},
		{osc.NewMessage("/beatkeeper/loop/set", float32(10), float32(20)), "loop 10.0-20.0"},
		{osc.NewMessage("/beatkeeper/loop/enabled", int32(1)), "loop true"},
		{osc.NewMessage("/beatkeeper/loop/jump"), "jump"},
	}
	for _, tt := range tests {
		t.Run(tt.msg.Address, func(t *testing.T) {
			c := &fakeController{}
			d := osc.NewStandardDispatcher()
			require.NoError(t, Register(d, c))
			d.Dispatch(tt.msg)
			assert.Eventually(t, func() bool {
				calls := c.Calls()
				return len(calls) == 1 && calls[0] == tt.want
			}, time.Second, 5*time.Millisecond)
		})
	}
}

func TestControlRejectsBadArguments(t *testing.T) {
	c := &fakeController{}
	d := osc.NewStandardDispatcher()
	require.NoError(t, Register(d, c))

	d.Dispatch(osc.NewMessage("/beatkeeper/seek"))
	d.Dispatch(osc.NewMessage("/beatkeeper/seek", "soon"))
	d.Dispatch(osc.NewMessage("/beatkeeper/loop/set", float32(1)))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.Calls())
}

func TestArgConversion(t *testing.T) {
	f, err := floatArg([]interface{}{int32(3)}, 0)
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)

	n, err := intArg([]interface{}{float64(2.9)}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = intArg(nil, 0)
	assert.Error(t, err)
}

func TestNewServer(t *testing.T) {
	s, err := NewServer(9001, &fakeController{})
	require.NoError(t, err)
	assert.Equal(t, ":9001", s.Addr)
}
