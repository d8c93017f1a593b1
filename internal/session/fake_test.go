package session

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/chaz8081/wavtoggle/internal/audio"
)

// fakeBackend hands out fakeStreams with a fixed negotiated spec.
type fakeBackend struct {
	spec    audio.Spec
	openErr error

	mu      sync.Mutex
	streams []*fakeStream
	wants   []audio.Spec
}

func (b *fakeBackend) DefaultInput() (audio.DeviceInfo, error) {
	return audio.DeviceInfo{Name: "fake", Spec: b.spec}, nil
}

func (b *fakeBackend) Open(want audio.Spec, cb audio.Callback) (audio.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wants = append(b.wants, want)
	if b.openErr != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrStreamBuildFailed, b.openErr)
	}
	s := &fakeStream{spec: b.spec, cb: cb}
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *fakeBackend) Close() error { return nil }

func (b *fakeBackend) opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.streams)
}

func (b *fakeBackend) last() *fakeStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

// fakeStream delivers blocks only while started. Pause waits for a block in
// progress, like a real device stop.
type fakeStream struct {
	spec     audio.Spec
	cb       audio.Callback
	startErr error

	mu       sync.Mutex
	started  bool
	paused   bool
	released bool
}

func (s *fakeStream) Spec() audio.Spec { return s.spec }

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *fakeStream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	return nil
}

func (s *fakeStream) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	return nil
}

// feed runs the callback with raw if the stream is live and reports whether
// it did.
func (s *fakeStream) feed(raw []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.paused || s.released {
		return false
	}
	frameBytes := s.spec.Channels * s.spec.Format.BytesPerSample()
	s.cb(raw, uint32(len(raw)/frameBytes))
	return true
}

func (s *fakeStream) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// s16Block encodes n samples of a ramp as little-endian int16.
func s16Block(n int) []byte {
	raw := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(raw[2*i:], uint16(int16(i%1000-500)))
	}
	return raw
}

// f32Block encodes n samples of a ramp as little-endian float32.
func f32Block(n int) []byte {
	raw := make([]byte, 4*n)
	for i := 0; i < n; i++ {
		v := float32(i%200-100) / 100
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return raw
}

// recordingSubmitter collects submitted artifacts.
type recordingSubmitter struct {
	mu   sync.Mutex
	arts []*audio.Artifact
}

func (r *recordingSubmitter) Submit(a *audio.Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.arts = append(r.arts, a)
}

func (r *recordingSubmitter) artifacts() []*audio.Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*audio.Artifact(nil), r.arts...)
}
