// Package hotkey provides a global hotkey listener using gohook.
// It emits the desired recording state: in "toggle" mode each press flips
// it, in "hold" mode press means record and release means stop.
package hotkey

import (
	"sync"

	hook "github.com/robotn/gohook"
)

// Modes.
const (
	ModeToggle = "toggle"
	ModeHold   = "hold"
)

// Listener manages a global hotkey and emits desired recording states.
type Listener struct {
	keys []string
	mode string
	ch   chan bool
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	want    bool
	held    bool
	current func() bool
}

// NewListener creates a Listener for the given key combo and mode.
// keys should be lowercase key names (e.g., ["ctrl", "shift", "space"]).
func NewListener(keys []string, mode string) *Listener {
	return &Listener{
		keys: keys,
		mode: mode,
		ch:   make(chan bool, 16),
		done: make(chan struct{}),
	}
}

// FollowState makes toggle mode flip the state reported by current instead
// of the listener's own idea of it, so a start that failed downstream does
// not cost an extra press.
func (l *Listener) FollowState(current func() bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = current
}

// Signals returns the channel of desired recording states.
// The channel is closed when the listener stops.
func (l *Listener) Signals() <-chan bool {
	return l.ch
}

// Start begins listening for the global hotkey.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	hook.Register(hook.KeyDown, l.keys, func(hook.Event) { l.press() })
	if l.mode == ModeHold {
		hook.Register(hook.KeyUp, l.keys, func(hook.Event) { l.release() })
	}

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}

func (l *Listener) press() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.mode == ModeHold {
		// Auto-repeat delivers KeyDown while the combo is held.
		if l.held {
			return
		}
		l.held = true
		l.emit(true)
		return
	}

	if l.current != nil {
		l.want = l.current()
	}
	l.emit(!l.want)
}

func (l *Listener) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return
	}
	l.held = false
	l.emit(false)
}

// emit records and sends the desired state. Callers hold l.mu.
func (l *Listener) emit(want bool) {
	l.want = want
	select {
	case l.ch <- want:
	default: // don't block the hook thread if the channel is full
	}
}
