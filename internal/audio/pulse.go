package audio

import (
	"fmt"
	"io"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

const (
	pulseDefaultRate = 16000
	pulseAppName     = "wavtoggle"
)

// PulseBackend records from the PulseAudio (or pipewire-pulse) default
// source without cgo. The server resamples to whatever Open requests.
type PulseBackend struct {
	client *pulse.Client
}

// NewPulseBackend connects to the PulseAudio server.
func NewPulseBackend() (*PulseBackend, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(pulseAppName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: connect pulse server: %v", ErrDeviceUnavailable, err)
	}
	return &PulseBackend{client: client}, nil
}

// DefaultInput reports the default source. Pulse converts on the server side,
// so the reported Spec is the one Open uses when nothing is requested.
func (b *PulseBackend) DefaultInput() (DeviceInfo, error) {
	source, err := b.client.DefaultSource()
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("%w: read default source: %v", ErrDeviceUnavailable, err)
	}
	return DeviceInfo{
		Name: source.ID(),
		Spec: pulseSpec(Spec{}),
	}, nil
}

// Open creates a record stream on the default source. Only mono and stereo
// s16/f32 streams are supported.
func (b *PulseBackend) Open(want Spec, cb Callback) (Stream, error) {
	spec := pulseSpec(want)

	var channels pulse.RecordOption
	switch spec.Channels {
	case 1:
		channels = pulse.RecordMono
	case 2:
		channels = pulse.RecordStereo
	default:
		return nil, fmt.Errorf("%w: pulse supports 1 or 2 channels, got %d", ErrStreamBuildFailed, spec.Channels)
	}

	var format byte
	switch spec.Format {
	case FormatS16:
		format = pulseproto.FormatInt16LE
	case FormatF32:
		format = pulseproto.FormatFloat32LE
	default:
		return nil, fmt.Errorf("%w: pulse supports s16 or f32, got %s", ErrStreamBuildFailed, spec.Format)
	}

	source, err := b.client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("%w: read default source: %v", ErrStreamBuildFailed, err)
	}

	s := &pulseStream{spec: spec, cb: cb, frameBytes: spec.Channels * spec.Format.BytesPerSample()}
	writer := pulse.NewWriter(writerFunc(s.onPCM), format)
	stream, err := b.client.NewRecord(
		writer,
		pulse.RecordSource(source),
		channels,
		pulse.RecordSampleRate(spec.SampleRate),
		pulse.RecordMediaName(pulseAppName+" recording"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create pulse record stream: %v", ErrStreamBuildFailed, err)
	}
	s.stream = stream
	return s, nil
}

// Close disconnects from the server.
func (b *PulseBackend) Close() error {
	b.client.Close()
	return nil
}

// pulseSpec fills the defaults Pulse needs explicitly.
func pulseSpec(want Spec) Spec {
	if want.SampleRate <= 0 {
		want.SampleRate = pulseDefaultRate
	}
	if want.Channels <= 0 {
		want.Channels = 1
	}
	if want.Format == FormatUnknown {
		want.Format = FormatS16
	}
	return want
}

type pulseStream struct {
	spec       Spec
	cb         Callback
	frameBytes int
	stream     *pulse.RecordStream

	mu       sync.Mutex
	stopped  bool
	released bool
	inflight sync.WaitGroup
}

func (s *pulseStream) Spec() Spec { return s.spec }

func (s *pulseStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return fmt.Errorf("audio: start on released stream")
	}
	s.stopped = false
	s.stream.Start()
	return nil
}

// Pause corks the stream and waits for any in-flight callback to return.
func (s *pulseStream) Pause() error {
	s.mu.Lock()
	if s.stopped || s.released {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.stream.Stop()
	s.inflight.Wait()
	return nil
}

func (s *pulseStream) Release() error {
	if err := s.Pause(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	s.stream.Close()
	return nil
}

// onPCM runs on the pulse client's reader goroutine.
func (s *pulseStream) onPCM(buf []byte) (int, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as stopped so Pause cannot miss it.
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	if s.frameBytes > 0 {
		s.cb(buf, uint32(len(buf)/s.frameBytes))
	}
	return len(buf), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
