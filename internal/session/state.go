// Package session implements the recording state machine: a toggle signal
// opens a capture stream and an encoder, the next one tears them down,
// finalizes the container and hands the artifact downstream.
package session

import "sync/atomic"

// State is the controller's recording state.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

// Flag is a shared desired-state toggle for the polled model. Any goroutine
// may set it; the controller samples it on a fixed period.
type Flag struct {
	v atomic.Bool
}

// Set stores the desired recording state.
func (f *Flag) Set(recording bool) { f.v.Store(recording) }

// Load returns the desired recording state.
func (f *Flag) Load() bool { return f.v.Load() }

// Toggle flips the flag and returns the new value.
func (f *Flag) Toggle() bool {
	for {
		old := f.v.Load()
		if f.v.CompareAndSwap(old, !old) {
			return !old
		}
	}
}
