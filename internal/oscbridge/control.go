package oscbridge

import (
	"fmt"

	"github.com/hypebeast/go-osc/osc"

	"github.com/schollz/beatkeeper/internal/logger"
	"github.com/schollz/beatkeeper/internal/types"
)

// Controller is the set of engine commands reachable over OSC.
type Controller interface {
	Play()
	Pause()
	Stop()
	TogglePlay()
	Seek(t float64)
	SeekByMeasures(delta int)
	SeekToMeasure(n int)
	SetPlaybackRate(rate float64)
	SetTranspose(semitones int)
	SetAudioVolume(v int)
	SetMetronomeVolume(v int)
	SetLoopRegion(r types.LoopRegion)
	SetLoopEnabled(enabled bool)
	JumpToLoopStart()
}

// Register adds the control handlers to d. Messages with missing or
// mistyped arguments are logged and dropped.
func Register(d *osc.StandardDispatcher, c Controller) error {
	log := logger.WithComponent("osc")
	handlers := map[string]func(args []interface{}) error{
		"/play":   func([]interface{}) error { c.Play(); return nil },
		"/pause":  func([]interface{}) error { c.Pause(); return nil },
		"/stop":   func([]interface{}) error { c.Stop(); return nil },
		"/toggle": func([]interface{}) error { c.TogglePlay(); return nil },
		"/seek": func(args []interface{}) error {
			t, err := floatArg(args, 0)
			if err == nil {
				c.Seek(t)
			}
			return err
		},
		"/measure": func(args []interface{}) error {
			n, err := intArg(args, 0)
			if err == nil {
				c.SeekByMeasures(n)
			}
			return err
		},
		"/goto": func(args []interface{}) error {
			n, err := intArg(args, 0)
			if err == nil {
				c.SeekToMeasure(n)
			}
			return err
		},
		"/rate": func(args []interface{}) error {
			r, err := floatArg(args, 0)
			if err == nil {
				c.SetPlaybackRate(r)
			}
			return err
		},
		"/transpose": func(args []interface{}) error {
			n, err := intArg(args, 0)
			if err == nil {
				c.SetTranspose(n)
			}
			return err
		},
		"/volume": func(args []interface{}) error {
			v, err := intArg(args, 0)
			if err == nil {
				c.SetAudioVolume(v)
			}
			return err
		},
		"/metronome": func(args []interface{}) error {
			v, err := intArg(args, 0)
			if err == nil {
				c.SetMetronomeVolume(v)
			}
			return err
		},
		"/loop/set": func(args []interface{}) error {
			start, err := floatArg(args, 0)
			if err != nil {
				return err
			}
			end, err := floatArg(args, 1)
			if err != nil {
				return err
			}
			c.SetLoopRegion(types.LoopRegion{Start: start, End: end})
			return nil
		},
		"/loop/enabled": func(args []interface{}) error {
			v, err := intArg(args, 0)
			if err == nil {
				c.SetLoopEnabled(v != 0)
			}
			return err
		},
		"/loop/jump": func([]interface{}) error { c.JumpToLoopStart(); return nil },
	}
	for addr, h := range handlers {
		addr, h := "/beatkeeper"+addr, h
		err := d.AddMsgHandler(addr, func(msg *osc.Message) {
			if err := h(msg.Arguments); err != nil {
				log.WithError(err).WithField("address", addr).Warn("ignoring osc message")
			}
		})
		if err != nil {
			return fmt.Errorf("register %s: %w", addr, err)
		}
	}
	return nil
}

// NewServer returns an OSC server on port dispatching to c.
func NewServer(port int, c Controller) (*osc.Server, error) {
	d := osc.NewStandardDispatcher()
	if err := Register(d, c); err != nil {
		return nil, err
	}
	return &osc.Server{Addr: fmt.Sprintf(":%d", port), Dispatcher: d}, nil
}

func floatArg(args []interface{}, i int) (float64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	switch v := args[i].(type) {
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, fmt.Errorf("argument %d is %T, not a number", i, args[i])
}

func intArg(args []interface{}, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	switch v := args[i].(type) {
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float32:
		return int(v), nil
	case float64:
		return int(v), nil
	}
	return 0, fmt.Errorf("argument %d is %T, not a number", i, args[i])
}
