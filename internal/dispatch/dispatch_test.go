package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/wavtoggle/internal/audio"
)

type fakeTranscriber struct {
	mu    sync.Mutex
	calls []*audio.Artifact
	text  string
	err   error
	block chan struct{}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, a *audio.Artifact) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, a)
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

func (f *fakeTranscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeDeliverer struct {
	mu  sync.Mutex
	got []string
	err error
}

func (f *fakeDeliverer) Deliver(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, text)
	return f.err
}

// oneSecond is a 16 kHz mono recording one second long.
func oneSecond(t *testing.T) *audio.Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recording_1.wav")
	if err := os.WriteFile(path, make([]byte, audio.HeaderSize+32000), 0o644); err != nil {
		t.Fatal(err)
	}
	return &audio.Artifact{
		SessionID: "s1",
		Seq:       1,
		Spec:      audio.Spec{SampleRate: 16000, Channels: 1, Format: audio.FormatS16},
		Path:      path,
		Size:      audio.HeaderSize + 32000,
		Samples:   16000,
	}
}

func collectResults(opts *Options) func() []Result {
	var mu sync.Mutex
	var results []Result
	opts.OnResult = func(r Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	}
	return func() []Result {
		mu.Lock()
		defer mu.Unlock()
		return append([]Result(nil), results...)
	}
}

func TestDispatchDeliversTextVerbatim(t *testing.T) {
	tr := &fakeTranscriber{text: "hello world "}
	dl := &fakeDeliverer{}
	opts := Options{}
	results := collectResults(&opts)

	d := New(tr, dl, opts)
	a := oneSecond(t)
	d.Submit(a)
	d.Wait()

	if len(dl.got) != 1 || dl.got[0] != "hello world " {
		t.Errorf("delivered %q, want [\"hello world \"]", dl.got)
	}
	rs := results()
	if len(rs) != 1 || rs[0].Err != nil || rs[0].Text != "hello world " {
		t.Fatalf("results = %+v", rs)
	}
	if _, err := os.Stat(a.Path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("recording should be removed after dispatch, stat err = %v", err)
	}
}

func TestDispatchKeepRecordings(t *testing.T) {
	d := New(&fakeTranscriber{text: "x"}, &fakeDeliverer{}, Options{KeepRecordings: true})
	a := oneSecond(t)
	d.Submit(a)
	d.Wait()

	if _, err := os.Stat(a.Path); err != nil {
		t.Errorf("recording should be kept: %v", err)
	}
}

func TestDispatchSkipsEmptyArtifact(t *testing.T) {
	tr := &fakeTranscriber{text: "should not happen"}
	dl := &fakeDeliverer{}
	opts := Options{}
	results := collectResults(&opts)

	d := New(tr, dl, opts)
	d.Submit(&audio.Artifact{
		Spec:    audio.Spec{SampleRate: 16000, Channels: 1},
		Data:    make([]byte, audio.HeaderSize),
		Size:    audio.HeaderSize,
		Samples: 0,
	})
	d.Wait()

	if tr.count() != 0 {
		t.Errorf("transcriber called %d times for empty recording", tr.count())
	}
	if len(dl.got) != 0 {
		t.Errorf("delivered %q for empty recording", dl.got)
	}
	rs := results()
	if len(rs) != 1 || !errors.Is(rs[0].Err, ErrEmptyArtifact) {
		t.Errorf("results = %+v, want one ErrEmptyArtifact", rs)
	}
}

func TestDispatchMinDuration(t *testing.T) {
	tr := &fakeTranscriber{text: "x"}
	opts := Options{MinDuration: 2 * time.Second}
	results := collectResults(&opts)

	d := New(tr, nil, opts)
	d.Submit(oneSecond(t))
	d.Wait()

	if tr.count() != 0 {
		t.Error("recording below minimum duration should not be transcribed")
	}
	if rs := results(); len(rs) != 1 || !errors.Is(rs[0].Err, ErrEmptyArtifact) {
		t.Errorf("results = %+v, want ErrEmptyArtifact", rs)
	}
}

func TestDispatchTranscribeFailure(t *testing.T) {
	cause := errors.New("503 service unavailable")
	dl := &fakeDeliverer{}
	opts := Options{}
	results := collectResults(&opts)

	d := New(&fakeTranscriber{err: cause}, dl, opts)
	a := oneSecond(t)
	d.Submit(a)
	d.Wait()

	rs := results()
	if len(rs) != 1 {
		t.Fatalf("got %d results, want 1", len(rs))
	}
	var de *DownstreamError
	if !errors.As(rs[0].Err, &de) || de.Stage != StageTranscribe {
		t.Fatalf("Err = %v, want DownstreamError at %s", rs[0].Err, StageTranscribe)
	}
	if !errors.Is(rs[0].Err, cause) {
		t.Error("DownstreamError should unwrap to the cause")
	}
	if len(dl.got) != 0 {
		t.Error("nothing should be delivered after a transcription failure")
	}
	if _, err := os.Stat(a.Path); !errors.Is(err, os.ErrNotExist) {
		t.Error("recording should be removed even when transcription fails")
	}
}

func TestDispatchDeliverFailure(t *testing.T) {
	opts := Options{}
	results := collectResults(&opts)

	d := New(&fakeTranscriber{text: "hi "}, &fakeDeliverer{err: errors.New("no display")}, opts)
	d.Submit(oneSecond(t))
	d.Wait()

	var de *DownstreamError
	rs := results()
	if len(rs) != 1 || !errors.As(rs[0].Err, &de) || de.Stage != StageDeliver {
		t.Fatalf("results = %+v, want DownstreamError at %s", rs, StageDeliver)
	}
	if rs[0].Text != "hi " {
		t.Errorf("Text = %q, want transcription kept on delivery failure", rs[0].Text)
	}
}

func TestDispatchEmptyTranscriptNotDelivered(t *testing.T) {
	dl := &fakeDeliverer{}
	d := New(&fakeTranscriber{text: ""}, dl, Options{})
	d.Submit(oneSecond(t))
	d.Wait()

	if len(dl.got) != 0 {
		t.Errorf("delivered %q for an empty transcript", dl.got)
	}
}

func TestDispatchJobsRunConcurrently(t *testing.T) {
	tr := &fakeTranscriber{text: "x", block: make(chan struct{})}
	d := New(tr, &fakeDeliverer{}, Options{KeepRecordings: true})

	d.Submit(oneSecond(t))
	d.Submit(oneSecond(t))

	deadline := time.Now().Add(2 * time.Second)
	for tr.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d of 2 jobs started while the first was blocked", tr.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(tr.block)
	d.Wait()
}

func TestDispatchTimeout(t *testing.T) {
	tr := &fakeTranscriber{block: make(chan struct{})}
	opts := Options{Timeout: 20 * time.Millisecond}
	results := collectResults(&opts)

	d := New(tr, nil, opts)
	d.Submit(oneSecond(t))
	d.Wait()

	rs := results()
	if len(rs) != 1 || !errors.Is(rs[0].Err, context.DeadlineExceeded) {
		t.Errorf("results = %+v, want deadline exceeded", rs)
	}
}

func TestSubmitNilIsIgnored(t *testing.T) {
	d := New(&fakeTranscriber{}, nil, Options{})
	d.Submit(nil)
	d.Wait()
}
