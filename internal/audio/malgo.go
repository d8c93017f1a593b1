package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// MalgoBackend captures through miniaudio. Call Close when done.
type MalgoBackend struct {
	ctx *malgo.AllocatedContext
}

// NewMalgoBackend initializes the miniaudio context.
func NewMalgoBackend() (*MalgoBackend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: initializing audio context: %v", ErrDeviceUnavailable, err)
	}
	return &MalgoBackend{ctx: ctx}, nil
}

// DefaultInput finds the default capture device and probes its native
// format by initializing (but never starting) a device on it.
func (b *MalgoBackend) DefaultInput() (DeviceInfo, error) {
	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("%w: listing capture devices: %v", ErrDeviceUnavailable, err)
	}
	if len(infos) == 0 {
		return DeviceInfo{}, fmt.Errorf("%w: no capture devices", ErrDeviceUnavailable)
	}
	name := infos[0].Name()
	for i := range infos {
		if infos[i].IsDefault != 0 {
			name = infos[i].Name()
			break
		}
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	dev, err := malgo.InitDevice(b.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, _ []byte, _ uint32) {},
	})
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("%w: querying %q: %v", ErrDeviceUnavailable, name, err)
	}
	defer dev.Uninit()

	format, _ := formatFromMalgo(dev.CaptureFormat())
	return DeviceInfo{
		Name: name,
		Spec: Spec{
			SampleRate: int(dev.SampleRate()),
			Channels:   int(dev.CaptureChannels()),
			Format:     format,
		},
	}, nil
}

// Open builds a capture device for want. miniaudio converts to the requested
// rate, channel count and format when the hardware differs.
func (b *MalgoBackend) Open(want Spec, cb Callback) (Stream, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = formatToMalgo(want.Format)
	cfg.Capture.Channels = uint32(want.Channels)
	cfg.SampleRate = uint32(want.SampleRate)

	dev, err := malgo.InitDevice(b.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, in []byte, frameCount uint32) {
			cb(in, frameCount)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: initializing capture device: %v", ErrStreamBuildFailed, err)
	}

	format, ok := formatFromMalgo(dev.CaptureFormat())
	if !ok {
		dev.Uninit()
		return nil, fmt.Errorf("%w: unsupported sample format %d", ErrStreamBuildFailed, dev.CaptureFormat())
	}

	return &malgoStream{
		dev: dev,
		spec: Spec{
			SampleRate: int(dev.SampleRate()),
			Channels:   int(dev.CaptureChannels()),
			Format:     format,
		},
	}, nil
}

// Close releases the audio context.
func (b *MalgoBackend) Close() error {
	if b.ctx == nil {
		return nil
	}
	if err := b.ctx.Uninit(); err != nil {
		return fmt.Errorf("audio: uninitializing audio context: %w", err)
	}
	b.ctx.Free()
	b.ctx = nil
	return nil
}

type malgoStream struct {
	spec Spec

	mu       sync.Mutex
	dev      *malgo.Device
	started  bool
	released bool
}

func (s *malgoStream) Spec() Spec { return s.spec }

func (s *malgoStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return fmt.Errorf("audio: start on released stream")
	}
	if err := s.dev.Start(); err != nil {
		return fmt.Errorf("audio: starting capture device: %w", err)
	}
	s.started = true
	return nil
}

// Pause relies on ma_device_stop, which blocks until the device thread has
// left the data callback.
func (s *malgoStream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released || !s.started {
		return nil
	}
	s.started = false
	if err := s.dev.Stop(); err != nil {
		return fmt.Errorf("audio: stopping capture device: %w", err)
	}
	return nil
}

func (s *malgoStream) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	s.dev.Uninit()
	return nil
}

func formatToMalgo(f Format) malgo.FormatType {
	switch f {
	case FormatU8:
		return malgo.FormatU8
	case FormatS16:
		return malgo.FormatS16
	case FormatS24:
		return malgo.FormatS24
	case FormatS32:
		return malgo.FormatS32
	case FormatF32:
		return malgo.FormatF32
	default:
		return malgo.FormatUnknown
	}
}

func formatFromMalgo(f malgo.FormatType) (Format, bool) {
	switch f {
	case malgo.FormatU8:
		return FormatU8, true
	case malgo.FormatS16:
		return FormatS16, true
	case malgo.FormatS24:
		return FormatS24, true
	case malgo.FormatS32:
		return FormatS32, true
	case malgo.FormatF32:
		return FormatF32, true
	default:
		return FormatUnknown, false
	}
}
