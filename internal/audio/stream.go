package audio

import "fmt"

// DeviceInfo describes the default capture device.
type DeviceInfo struct {
	Name string
	Spec Spec
}

// Callback receives one block of raw interleaved little-endian samples in the
// stream's Spec().Format. It runs on the audio subsystem's thread and must
// not block.
type Callback func(raw []byte, frames uint32)

// Backend opens capture streams on the default input device.
type Backend interface {
	// DefaultInput probes the default input device. It fails with
	// ErrDeviceUnavailable when there is none.
	DefaultInput() (DeviceInfo, error)
	// Open builds a stream for want (zero fields mean device default) bound
	// to cb. The stream is not started. Failures wrap ErrStreamBuildFailed.
	Open(want Spec, cb Callback) (Stream, error)
	// Close releases the backend.
	Close() error
}

// Stream is one live capture stream. Its lifecycle is
// Open -> Start -> Pause -> Release.
type Stream interface {
	// Spec is the negotiated sample specification.
	Spec() Spec
	// Start begins invoking the callback.
	Start() error
	// Pause stops the device and returns only once no callback is running
	// and none will run again.
	Pause() error
	// Release frees all device resources. Safe to call more than once.
	Release() error
}

// Backend names accepted by NewBackend.
const (
	BackendMalgo = "malgo"
	BackendPulse = "pulse"
)

// NewBackend opens the named capture backend.
func NewBackend(name string) (Backend, error) {
	switch name {
	case BackendMalgo, "":
		b, err := NewMalgoBackend()
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendPulse:
		b, err := NewPulseBackend()
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("audio: unknown backend %q (supported: malgo, pulse)", name)
	}
}

// ParseSpec builds a requested Spec from config values. Zero values and an
// empty format mean device default.
func ParseSpec(sampleRate, channels int, format string) (Spec, error) {
	if sampleRate < 0 || channels < 0 {
		return Spec{}, fmt.Errorf("audio: invalid spec %dHz/%dch", sampleRate, channels)
	}
	f, err := ParseFormat(format)
	if err != nil {
		return Spec{}, err
	}
	return Spec{SampleRate: sampleRate, Channels: channels, Format: f}, nil
}
