// Package dispatch hands finished recordings to the downstream consumer:
// transcription first, then delivery of the text. Every artifact gets its own
// goroutine so a slow or failing consumer never holds up the next recording.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/wavtoggle/internal/audio"
	"github.com/chaz8081/wavtoggle/internal/observe"
)

// ErrEmptyArtifact means the recording held no audio (header only) or was
// shorter than the configured minimum, so it was not transcribed.
var ErrEmptyArtifact = errors.New("dispatch: empty recording")

// Stages reported in DownstreamError.
const (
	StageTranscribe = "transcribe"
	StageDeliver    = "deliver"
)

// DownstreamError is a failure of the consumer for one artifact.
type DownstreamError struct {
	Stage string
	Err   error
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("dispatch: %s: %v", e.Stage, e.Err)
}

func (e *DownstreamError) Unwrap() error { return e.Err }

// Transcriber turns a finished recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, a *audio.Artifact) (string, error)
}

// Deliverer puts text where the user wants it.
type Deliverer interface {
	Deliver(ctx context.Context, text string) error
}

// Result is the outcome of one dispatch job.
type Result struct {
	Artifact *audio.Artifact
	Text     string
	Err      error
	Elapsed  time.Duration
}

// Options configures a Dispatcher. The zero value is usable.
type Options struct {
	// MinDuration rejects recordings shorter than this as empty.
	MinDuration time.Duration
	// KeepRecordings leaves the WAV file on disk after the job.
	KeepRecordings bool
	// Timeout bounds each job. Zero means no limit.
	Timeout time.Duration
	// OnResult, if set, is called once per job from the job's goroutine.
	OnResult func(Result)

	Logger  *slog.Logger
	Metrics *observe.Metrics
}

// Dispatcher runs one goroutine per submitted artifact. Concurrency is not
// bounded; recordings arrive at human speed.
type Dispatcher struct {
	tr   Transcriber
	dl   Deliverer
	opts Options
	log  *slog.Logger
	met  *observe.Metrics

	wg sync.WaitGroup
}

// New creates a Dispatcher. A nil Deliverer discards the text.
func New(tr Transcriber, dl Deliverer, opts Options) *Dispatcher {
	d := &Dispatcher{tr: tr, dl: dl, opts: opts, log: opts.Logger, met: opts.Metrics}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.met == nil {
		d.met = observe.DefaultMetrics()
	}
	return d
}

// Submit takes ownership of a and processes it in the background. It never
// blocks and never reports errors to the caller.
func (d *Dispatcher) Submit(a *audio.Artifact) {
	if a == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(a)
	}()
}

// Wait blocks until every submitted job has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(a *audio.Artifact) {
	ctx := context.Background()
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	d.met.DispatchInflight.Add(ctx, 1)
	defer d.met.DispatchInflight.Add(ctx, -1)

	start := time.Now()
	text, err := d.process(ctx, a)
	res := Result{Artifact: a, Text: text, Err: err, Elapsed: time.Since(start)}

	log := d.log.With("session", a.SessionID, "seq", a.Seq)
	if !d.opts.KeepRecordings {
		if rmErr := a.Remove(); rmErr != nil {
			log.Warn("removing recording", "path", a.Path, "error", rmErr)
		}
	}

	var de *DownstreamError
	switch {
	case err == nil:
		d.met.RecordDispatch(ctx, observe.StatusDelivered)
		log.Info("delivered", "chars", len(text), "elapsed", res.Elapsed.Round(time.Millisecond))
	case errors.Is(err, ErrEmptyArtifact):
		d.met.RecordDispatch(ctx, observe.StatusEmpty)
		log.Info("skipping empty recording", "samples", a.Samples, "bytes", a.Size)
	case errors.As(err, &de) && de.Stage == StageDeliver:
		d.met.RecordDispatch(ctx, observe.StatusDeliverError)
		log.Error("delivery failed", "error", err)
	default:
		d.met.RecordDispatch(ctx, observe.StatusTranscribeError)
		log.Error("transcription failed", "error", err)
	}

	if d.opts.OnResult != nil {
		d.opts.OnResult(res)
	}
}

func (d *Dispatcher) process(ctx context.Context, a *audio.Artifact) (string, error) {
	if a.Empty() {
		return "", ErrEmptyArtifact
	}
	if d.opts.MinDuration > 0 && a.Duration() < d.opts.MinDuration {
		return "", fmt.Errorf("%w: %s is shorter than %s", ErrEmptyArtifact, a.Duration(), d.opts.MinDuration)
	}

	start := time.Now()
	text, err := d.tr.Transcribe(ctx, a)
	d.met.TranscribeDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return "", &DownstreamError{Stage: StageTranscribe, Err: err}
	}
	if text == "" {
		return "", nil
	}

	if d.dl != nil {
		if err := d.dl.Deliver(ctx, text); err != nil {
			return text, &DownstreamError{Stage: StageDeliver, Err: err}
		}
	}
	return text, nil
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, text string) error

func (f DelivererFunc) Deliver(ctx context.Context, text string) error {
	return f(ctx, text)
}
