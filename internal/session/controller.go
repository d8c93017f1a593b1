package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/wavtoggle/internal/audio"
	"github.com/chaz8081/wavtoggle/internal/observe"
)

// DefaultPollInterval is the sampling period of Poll when none is given.
const DefaultPollInterval = 100 * time.Millisecond

// Submitter receives finished recordings. It must not block.
type Submitter interface {
	Submit(a *audio.Artifact)
}

// Options configures a Controller.
type Options struct {
	// Output is the path template for recordings. A session with sequence
	// number n writes <dir>/<stem>_<n><ext>. Defaults to "recording.wav".
	Output string
	// InMemory keeps recordings in memory instead of writing files.
	InMemory bool
	// Spec is the requested stream spec. Zero fields use the device default.
	Spec audio.Spec

	Logger  *slog.Logger
	Metrics *observe.Metrics
}

// Controller serializes start/stop transitions of recording sessions.
type Controller struct {
	backend audio.Backend
	sub     Submitter
	opts    Options
	log     *slog.Logger
	met     *observe.Metrics

	mu    sync.Mutex
	state State
	cur   *session
	seq   int

	// recording mirrors state for readers that must not wait on mu.
	recording atomic.Bool

	// afterStart runs with the live encoder once a session is recording.
	afterStart func(*audio.Encoder)
}

// session is one live recording. The device callback only sees tap.
type session struct {
	id      string
	seq     int
	path    string
	started time.Time
	stream  audio.Stream
	enc     *audio.Encoder
	lease   *audio.Lease
	tap     atomic.Pointer[tap]
}

// tap is what the device callback needs to append a block.
type tap struct {
	lease   *audio.Lease
	format  audio.Format
	scratch []int
}

// NewController creates an idle controller. Finished recordings go to sub.
func NewController(backend audio.Backend, sub Submitter, opts Options) *Controller {
	if opts.Output == "" {
		opts.Output = "recording.wav"
	}
	c := &Controller{
		backend: backend,
		sub:     sub,
		opts:    opts,
		log:     opts.Logger,
		met:     opts.Metrics,
		state:   StateIdle,
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.met == nil {
		c.met = observe.DefaultMetrics()
	}
	return c
}

// State returns the last committed state without waiting for an
// in-progress transition. Safe to call from the hotkey hook thread.
func (c *Controller) State() State {
	if c.recording.Load() {
		return StateRecording
	}
	return StateIdle
}

// setState commits a transition. Callers hold c.mu.
func (c *Controller) setState(s State) {
	c.state = s
	c.recording.Store(s == StateRecording)
}

// Apply moves the controller toward the desired state. A signal matching the
// current state is a no-op. Errors are fatal only to the session concerned;
// the controller is always left in a consistent state and accepts the next
// signal.
func (c *Controller) Apply(ctx context.Context, recording bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case recording && c.state == StateIdle:
		return c.start(ctx)
	case !recording && c.state == StateRecording:
		return c.stop(ctx)
	default:
		return nil
	}
}

// Close stops an active session, finalizing and submitting it.
func (c *Controller) Close() error {
	return c.Apply(context.Background(), false)
}

// Run applies every desired state received on signals until ctx is done or
// signals is closed, then stops any active session.
func (c *Controller) Run(ctx context.Context, signals <-chan bool) error {
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case want, ok := <-signals:
			if !ok {
				c.shutdown()
				return nil
			}
			if err := c.Apply(ctx, want); err != nil {
				c.log.Error("session transition failed", "recording", want, "error", err)
			}
		}
	}
}

// Poll samples flag every period and applies it until ctx is done, then
// stops any active session.
func (c *Controller) Poll(ctx context.Context, flag *Flag, period time.Duration) error {
	if period <= 0 {
		period = DefaultPollInterval
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			want := flag.Load()
			if err := c.Apply(ctx, want); err != nil {
				c.log.Error("session transition failed", "recording", want, "error", err)
			}
		}
	}
}

func (c *Controller) shutdown() {
	if err := c.Close(); err != nil {
		c.log.Error("stopping session on shutdown", "error", err)
	}
}

// outputPath returns the deterministic file name for sequence number seq.
func (c *Controller) outputPath(seq int) string {
	dir := filepath.Dir(c.opts.Output)
	ext := filepath.Ext(c.opts.Output)
	stem := strings.TrimSuffix(filepath.Base(c.opts.Output), ext)
	if ext == "" {
		ext = ".wav"
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, seq, ext))
}

// start builds stream and encoder for a new session. Callers hold c.mu.
func (c *Controller) start(ctx context.Context) error {
	s := &session{
		id:  uuid.NewString(),
		seq: c.seq + 1,
	}
	log := c.log.With("session", s.id, "seq", s.seq)

	stream, err := c.backend.Open(c.opts.Spec, s.onSamples)
	if err != nil {
		c.met.RecordSessionEnd(ctx, observe.OutcomeStartFailed, 0, 0, 0)
		return fmt.Errorf("session: open stream: %w", err)
	}
	s.stream = stream
	spec := stream.Spec()

	var sink audio.Sink
	if c.opts.InMemory {
		sink = &audio.MemorySink{}
	} else {
		s.path = c.outputPath(s.seq)
		fs, err := audio.CreateFile(s.path)
		if err != nil {
			c.failStart(ctx, s)
			return fmt.Errorf("session: %w", err)
		}
		sink = fs
	}

	enc, err := audio.NewEncoder(sink, spec)
	if err != nil {
		_ = sink.Close()
		_ = sink.Discard()
		c.failStart(ctx, s)
		return fmt.Errorf("session: create encoder: %w", err)
	}
	s.enc = enc
	s.lease = enc.Lease()
	s.tap.Store(&tap{lease: s.lease, format: spec.Format})

	if err := stream.Start(); err != nil {
		c.failStart(ctx, s)
		return fmt.Errorf("session: start stream: %w", err)
	}

	s.started = time.Now()
	c.seq = s.seq
	c.cur = s
	c.setState(StateRecording)
	c.met.SessionsStarted.Add(ctx, 1)
	log.Info("recording started", "path", s.path, "spec", spec.String())

	if c.afterStart != nil {
		c.afterStart(enc)
	}
	return nil
}

// failStart releases whatever start built.
func (c *Controller) failStart(ctx context.Context, s *session) {
	if s.stream != nil {
		_ = s.stream.Pause()
		if err := s.stream.Release(); err != nil {
			c.log.Warn("releasing stream", "session", s.id, "error", err)
		}
	}
	s.tap.Store(nil)
	if s.lease != nil {
		s.lease.Release()
	}
	if s.enc != nil {
		if err := s.enc.Abandon(); err != nil {
			c.log.Warn("discarding partial recording", "session", s.id, "path", s.path, "error", err)
		}
	}
	c.met.RecordSessionEnd(ctx, observe.OutcomeStartFailed, 0, 0, 0)
}

// stop tears down the active session and submits its artifact. Callers hold
// c.mu. The controller is idle afterwards whatever happens.
func (c *Controller) stop(ctx context.Context) error {
	s := c.cur
	c.cur = nil
	c.setState(StateIdle)
	log := c.log.With("session", s.id, "seq", s.seq)

	// Once Pause returns the callback cannot run again, so every sample it
	// appended is in the encoder before Finalize.
	var streamErr error
	if err := s.stream.Pause(); err != nil {
		streamErr = fmt.Errorf("session: pause stream: %w", err)
	}
	if err := s.stream.Release(); err != nil {
		streamErr = errors.Join(streamErr, fmt.Errorf("session: release stream: %w", err))
	}
	if streamErr != nil {
		log.Warn("stopping stream", "error", streamErr)
	}
	s.tap.Store(nil)
	s.lease.Release()

	art, err := s.enc.Finalize()
	if err != nil {
		written, dropped := s.enc.Written(), s.enc.Dropped()
		if abErr := s.enc.Abandon(); abErr != nil {
			log.Warn("discarding partial recording", "path", s.path, "error", abErr)
		}
		c.met.RecordSessionEnd(ctx, observe.OutcomeAbandoned, written, dropped, 0)
		log.Error("recording abandoned", "path", s.path, "error", err)
		return fmt.Errorf("session: finalize: %w", err)
	}

	art.SessionID = s.id
	art.Seq = s.seq
	c.met.RecordSessionEnd(ctx, observe.OutcomeFinalized, art.Samples, art.Dropped, art.Duration())
	log.Info("recording finished",
		"path", art.Path,
		"samples", art.Samples,
		"dropped", art.Dropped,
		"bytes", art.Size,
		"duration", art.Duration().Round(time.Millisecond),
		"wall", time.Since(s.started).Round(time.Millisecond),
	)
	if art.Dropped > 0 {
		log.Warn("samples dropped during recording", "dropped", art.Dropped)
	}

	c.sub.Submit(art)
	return nil
}

// onSamples is the device callback. It runs on the audio thread and never
// blocks: a busy encoder drops the block.
func (s *session) onSamples(raw []byte, _ uint32) {
	t := s.tap.Load()
	if t == nil {
		return
	}
	t.scratch = audio.AppendSamples(t.scratch[:0], t.format, raw)
	t.lease.Append(t.scratch)
}
