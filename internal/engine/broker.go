package engine

import "github.com/schollz/beatkeeper/internal/types"

// TrySend sends v on c unless c is full.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// Subscribe returns a channel receiving a snapshot per tick and a function
// that cancels the subscription. Slow readers miss snapshots rather than
// stall the engine.
func (e *Engine) Subscribe(buffer int) (<-chan types.Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan types.Snapshot, buffer)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		close(ch)
		return ch, func() {}
	}
	e.subs = append(e.subs, ch)
	return ch, func() { e.unsubscribe(ch) }
}

func (e *Engine) unsubscribe(ch chan types.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, c := range e.subs {
		if c == ch {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (e *Engine) publishLocked() {
	snap := e.snapshotLocked()
	e.last = snap
	for _, ch := range e.subs {
		TrySend(ch, snap)
	}
}
