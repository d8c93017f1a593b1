package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Sink is the seekable destination of one WAV container. The encoder seeks
// back to patch the RIFF and data chunk sizes when it finalizes.
type Sink interface {
	io.WriteSeeker
	// Close flushes and releases the destination.
	Close() error
	// Describe fills the location fields of a finished artifact.
	Describe(a *Artifact) error
	// Discard removes any partial output. Safe after Close.
	Discard() error
}

// FileSink writes the container to a file on disk.
type FileSink struct {
	f    *os.File
	path string
}

// CreateFile creates (or truncates) path and its parent directory.
func CreateFile(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audio: creating output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("audio: creating %s: %w", path, err)
	}
	return &FileSink{f: f, path: path}, nil
}

func (s *FileSink) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s *FileSink) Seek(offset int64, whence int) (int64, error) {
	return s.f.Seek(offset, whence)
}

// Close syncs and closes the file. Calling it twice is a no-op.
func (s *FileSink) Close() error {
	if s.f == nil {
		return nil
	}
	f := s.f
	s.f = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *FileSink) Describe(a *Artifact) error {
	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}
	a.Path = s.path
	a.Size = info.Size()
	return nil
}

func (s *FileSink) Discard() error {
	_ = s.Close()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// MemorySink keeps the container in memory. The zero value is ready to use.
type MemorySink struct {
	buf []byte
	pos int64
}

func (m *MemorySink) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		if end > int64(cap(m.buf)) {
			grown := make([]byte, end, 2*end)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *MemorySink) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = m.pos + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("audio: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("audio: seek to negative position")
	}
	m.pos = next
	return next, nil
}

func (m *MemorySink) Close() error { return nil }

// Bytes returns the container written so far.
func (m *MemorySink) Bytes() []byte { return m.buf }

func (m *MemorySink) Describe(a *Artifact) error {
	a.Data = m.buf
	a.Size = int64(len(m.buf))
	return nil
}

func (m *MemorySink) Discard() error {
	m.buf, m.pos = nil, 0
	return nil
}

// Artifact is one finalized recording, ready for the downstream consumer.
// Exactly one of Path and Data is set.
type Artifact struct {
	SessionID string
	Seq       int
	Spec      Spec
	Path      string
	Data      []byte
	Size      int64  // whole container, header included
	Samples   uint64 // interleaved samples written, all channels
	Dropped   uint64 // samples lost to lock contention
}

// HeaderSize is the size of the canonical PCM WAV header.
const HeaderSize = 44

// Empty reports whether the artifact holds no audio, i.e. is header-only.
func (a *Artifact) Empty() bool {
	return a.Samples == 0 || a.Size <= HeaderSize
}

// Duration is the recorded audio length.
func (a *Artifact) Duration() time.Duration {
	if a.Spec.SampleRate <= 0 || a.Spec.Channels <= 0 {
		return 0
	}
	frames := a.Samples / uint64(a.Spec.Channels)
	return time.Duration(frames) * time.Second / time.Duration(a.Spec.SampleRate)
}

// Name returns a file name suitable for uploads.
func (a *Artifact) Name() string {
	if a.Path != "" {
		return filepath.Base(a.Path)
	}
	if a.Seq > 0 {
		return fmt.Sprintf("recording_%d.wav", a.Seq)
	}
	return "recording.wav"
}

// Open returns a reader over the finished container.
func (a *Artifact) Open() (io.ReadCloser, error) {
	if a.Path != "" {
		return os.Open(a.Path)
	}
	return io.NopCloser(bytes.NewReader(a.Data)), nil
}

// Remove deletes the backing file, if any.
func (a *Artifact) Remove() error {
	if a.Path == "" {
		a.Data = nil
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
