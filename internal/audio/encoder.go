package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Encoder is the lockable handle around one WAV encoder. The controller owns
// it; the device callback writes through a Lease. Finalize is only allowed
// once every lease has been released.
type Encoder struct {
	spec Spec
	sink Sink

	mu         sync.Mutex
	enc        *wav.Encoder
	buf        *goaudio.IntBuffer
	err        error // first append failure, reported by Finalize
	done       bool  // finalized or abandoned
	sinkClosed bool

	leases  atomic.Int32
	written atomic.Uint64
	dropped atomic.Uint64
}

// NewEncoder writes a 16-bit PCM WAV header for spec into sink and returns
// the handle. The header is written eagerly so that an empty recording still
// finalizes to a valid header-only container.
func NewEncoder(sink Sink, spec Spec) (*Encoder, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	e := &Encoder{
		spec: spec,
		sink: sink,
		enc:  wav.NewEncoder(sink, spec.SampleRate, BitDepth, spec.Channels, pcmFormat),
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: spec.Channels,
				SampleRate:  spec.SampleRate,
			},
			SourceBitDepth: BitDepth,
		},
	}
	if err := e.enc.Write(e.buf); err != nil {
		return nil, &EncoderIOError{Op: "header", Err: err}
	}
	return e, nil
}

// Spec returns the sample specification the container was created with.
func (e *Encoder) Spec() Spec { return e.spec }

// Written returns the number of samples accepted so far.
func (e *Encoder) Written() uint64 { return e.written.Load() }

// Dropped returns the number of samples discarded because the handle was
// busy, closed, or the writer had already failed.
func (e *Encoder) Dropped() uint64 { return e.dropped.Load() }

// Leases returns the number of outstanding leases.
func (e *Encoder) Leases() int { return int(e.leases.Load()) }

// Lease hands out a write token for the device callback.
func (e *Encoder) Lease() *Lease {
	e.leases.Add(1)
	return &Lease{enc: e}
}

// Finalize completes the container header and returns the artifact. The
// caller must hold exclusive ownership: with any lease outstanding it returns
// ErrStillBorrowed and leaves the handle untouched.
func (e *Encoder) Finalize() (*Artifact, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.done {
		return nil, ErrAlreadyFinalized
	}
	if n := e.leases.Load(); n > 0 {
		return nil, fmt.Errorf("%w: %d lease(s) outstanding", ErrStillBorrowed, n)
	}
	e.done = true

	if e.err != nil {
		e.closeSink()
		return nil, &EncoderIOError{Op: "append", Err: e.err}
	}
	if err := e.enc.Close(); err != nil {
		e.closeSink()
		return nil, &EncoderIOError{Op: "finalize", Err: err}
	}
	if err := e.closeSink(); err != nil {
		return nil, &EncoderIOError{Op: "close", Err: err}
	}

	a := &Artifact{
		Spec:    e.spec,
		Samples: e.written.Load(),
		Dropped: e.dropped.Load(),
	}
	if err := e.sink.Describe(a); err != nil {
		return nil, &EncoderIOError{Op: "stat", Err: err}
	}
	return a, nil
}

// Abandon releases the sink and removes any partial output without producing
// an artifact. Leases still held afterwards only drop samples.
func (e *Encoder) Abandon() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.done = true
	e.closeSink()
	return e.sink.Discard()
}

// closeSink closes the sink once. Callers hold e.mu.
func (e *Encoder) closeSink() error {
	if e.sinkClosed {
		return nil
	}
	e.sinkClosed = true
	return e.sink.Close()
}

// Lease is the device callback's hold on an Encoder.
type Lease struct {
	enc      *Encoder
	released atomic.Bool
}

// Append writes converted samples without blocking. If the handle is busy
// (or already finalized) the whole block is dropped and counted instead.
// It reports whether the block was written.
func (l *Lease) Append(samples []int) bool {
	if len(samples) == 0 {
		return true
	}
	e := l.enc
	if l.released.Load() || !e.mu.TryLock() {
		e.dropped.Add(uint64(len(samples)))
		return false
	}
	defer e.mu.Unlock()

	if e.done || e.err != nil {
		e.dropped.Add(uint64(len(samples)))
		return false
	}

	// The encoder only writes whole frames.
	whole := len(samples) - len(samples)%e.spec.Channels
	if whole < len(samples) {
		e.dropped.Add(uint64(len(samples) - whole))
	}

	e.buf.Data = samples[:whole]
	err := e.enc.Write(e.buf)
	e.buf.Data = nil
	if err != nil {
		e.err = err
		e.dropped.Add(uint64(whole))
		return false
	}
	e.written.Add(uint64(whole))
	return true
}

// Release returns the token to the encoder. Safe to call more than once.
func (l *Lease) Release() {
	if l.released.CompareAndSwap(false, true) {
		l.enc.leases.Add(-1)
	}
}
