// Package audio captures microphone input and encodes it into 16-bit PCM WAV
// containers. It provides the sample converters, the lockable encoder handle
// shared with the device callback, and the capture backends (malgo, PulseAudio).
package audio

import (
	"errors"
	"fmt"
	"strings"
)

// BitDepth is the on-disk sample width. Every recording is 16-bit signed PCM.
const BitDepth = 16

// pcmFormat is the WAV audio format tag for uncompressed integer PCM.
const pcmFormat = 1

var (
	// ErrDeviceUnavailable means no usable input device could be found or queried.
	ErrDeviceUnavailable = errors.New("audio: input device unavailable")
	// ErrStreamBuildFailed means the device refused the requested stream configuration.
	ErrStreamBuildFailed = errors.New("audio: stream build failed")
	// ErrStillBorrowed means Finalize was attempted while a lease was still held.
	ErrStillBorrowed = errors.New("audio: encoder still borrowed")
	// ErrAlreadyFinalized means the encoder was already finalized or abandoned.
	ErrAlreadyFinalized = errors.New("audio: encoder already finalized")
)

// EncoderIOError wraps a failure of the underlying container writer.
type EncoderIOError struct {
	Op  string // "append", "finalize", "close"
	Err error
}

func (e *EncoderIOError) Error() string {
	return fmt.Sprintf("audio: encoder %s: %v", e.Op, e.Err)
}

func (e *EncoderIOError) Unwrap() error { return e.Err }

// Format identifies a device-native sample representation.
type Format int

const (
	FormatUnknown Format = iota
	FormatU8
	FormatS16
	FormatS24
	FormatS32
	FormatF32
)

var formatNames = map[Format]string{
	FormatUnknown: "native",
	FormatU8:      "u8",
	FormatS16:     "s16",
	FormatS24:     "s24",
	FormatS32:     "s32",
	FormatF32:     "f32",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// BytesPerSample returns the packed size of one sample, or 0 for FormatUnknown.
func (f Format) BytesPerSample() int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16:
		return 2
	case FormatS24:
		return 3
	case FormatS32, FormatF32:
		return 4
	default:
		return 0
	}
}

// ParseFormat maps a config name ("f32", "s16", "native", ...) to a Format.
// An empty string means native.
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return FormatUnknown, nil
	}
	for f, n := range formatNames {
		if n == name {
			return f, nil
		}
	}
	return FormatUnknown, fmt.Errorf("audio: unknown sample format %q", name)
}

// Spec describes a capture stream. Zero fields in a requested Spec mean
// "use the device default".
type Spec struct {
	SampleRate int
	Channels   int
	Format     Format
}

func (s Spec) String() string {
	return fmt.Sprintf("%dHz/%dch/%s", s.SampleRate, s.Channels, s.Format)
}

// validate checks that s can be written to a WAV header.
func (s Spec) validate() error {
	if s.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be > 0, got %d", s.SampleRate)
	}
	if s.Channels <= 0 {
		return fmt.Errorf("audio: channels must be > 0, got %d", s.Channels)
	}
	return nil
}
