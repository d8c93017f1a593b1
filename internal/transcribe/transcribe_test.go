package transcribe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/chaz8081/wavtoggle/internal/audio"
	"github.com/chaz8081/wavtoggle/internal/config"
)

// capturedRequest is what the fake server saw.
type capturedRequest struct {
	path     string
	auth     string
	model    string
	prompt   string
	language string
	format   string
	filename string
	file     []byte
}

func newServer(t *testing.T, status int, body string) (*httptest.Server, func() capturedRequest) {
	t.Helper()
	var mu sync.Mutex
	var got capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		req := capturedRequest{
			path:     r.URL.Path,
			auth:     r.Header.Get("Authorization"),
			model:    r.FormValue("model"),
			prompt:   r.FormValue("prompt"),
			language: r.FormValue("language"),
			format:   r.FormValue("response_format"),
		}
		if f, hdr, err := r.FormFile("file"); err == nil {
			req.filename = hdr.Filename
			req.file, _ = io.ReadAll(f)
			f.Close()
		}
		mu.Lock()
		got = req
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, func() capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return got
	}
}

func newTestClient(t *testing.T, baseURL string, mutate func(*config.TranscribeConfig)) *Client {
	t.Helper()
	cfg := config.Default().Transcribe
	cfg.BaseURL = baseURL + "/v1/"
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(&cfg, "Bearer sk-test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func wavArtifact() *audio.Artifact {
	data := make([]byte, audio.HeaderSize+3200)
	copy(data, "RIFF")
	return &audio.Artifact{
		Seq:     3,
		Spec:    audio.Spec{SampleRate: 16000, Channels: 1, Format: audio.FormatS16},
		Data:    data,
		Size:    int64(len(data)),
		Samples: 1600,
	}
}

func TestTranscribe(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `{"text": "  Hello there, world.\n"}`)
	c := newTestClient(t, srv.URL, func(tc *config.TranscribeConfig) {
		tc.Prompt = "Dictation."
		tc.Language = "en"
	})

	a := wavArtifact()
	text, err := c.Transcribe(context.Background(), a)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "Hello there, world. " {
		t.Errorf("Transcribe() = %q, want trimmed text plus one trailing space", text)
	}

	req := got()
	if req.path != "/v1/audio/transcriptions" {
		t.Errorf("path = %q", req.path)
	}
	if req.auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want %q", req.auth, "Bearer sk-test")
	}
	if req.model != "whisper-1" {
		t.Errorf("model = %q", req.model)
	}
	if req.prompt != "Dictation." || req.language != "en" {
		t.Errorf("prompt = %q, language = %q", req.prompt, req.language)
	}
	if req.format != "json" {
		t.Errorf("response_format = %q, want json", req.format)
	}
	if req.filename != "recording_3.wav" {
		t.Errorf("filename = %q, want recording_3.wav", req.filename)
	}
	if len(req.file) != len(a.Data) {
		t.Errorf("uploaded %d bytes, want %d", len(req.file), len(a.Data))
	}
}

func TestTranscribeOmitsEmptyPrompt(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `{"text": "ok"}`)
	c := newTestClient(t, srv.URL, nil)

	if _, err := c.Transcribe(context.Background(), wavArtifact()); err != nil {
		t.Fatal(err)
	}
	if p := got().prompt; p != "" {
		t.Errorf("prompt = %q, want omitted", p)
	}
}

func TestTranscribeEmptyText(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"text": "   "}`)
	c := newTestClient(t, srv.URL, nil)

	_, err := c.Transcribe(context.Background(), wavArtifact())
	if !errors.Is(err, ErrNoText) {
		t.Errorf("Transcribe() error = %v, want ErrNoText", err)
	}
}

func TestTranscribeServerError(t *testing.T) {
	srv, _ := newServer(t, http.StatusBadRequest, `{"error": {"message": "bad audio", "type": "invalid_request_error"}}`)
	c := newTestClient(t, srv.URL, nil)

	_, err := c.Transcribe(context.Background(), wavArtifact())
	if err == nil {
		t.Fatal("Transcribe() should fail on a 400 response")
	}
}

func TestTranscribeFromFile(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `{"text": "from disk"}`)
	c := newTestClient(t, srv.URL, nil)

	sink, err := audio.CreateFile(t.TempDir() + "/take_1.wav")
	if err != nil {
		t.Fatal(err)
	}
	enc, err := audio.NewEncoder(sink, audio.Spec{SampleRate: 16000, Channels: 1, Format: audio.FormatS16})
	if err != nil {
		t.Fatal(err)
	}
	lease := enc.Lease()
	lease.Append(make([]int, 1600))
	lease.Release()
	a, err := enc.Finalize()
	if err != nil {
		t.Fatal(err)
	}

	text, err := c.Transcribe(context.Background(), a)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "from disk " {
		t.Errorf("Transcribe() = %q", text)
	}
	if req := got(); req.filename != "take_1.wav" || int64(len(req.file)) != a.Size {
		t.Errorf("uploaded %q (%d bytes), want take_1.wav (%d bytes)", req.filename, len(req.file), a.Size)
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(&config.TranscribeConfig{Model: "whisper-1"}, "", nil); err == nil {
		t.Error("New() without base url should fail")
	}
	if _, err := New(&config.TranscribeConfig{BaseURL: "http://localhost/"}, "", nil); err == nil {
		t.Error("New() without model should fail")
	}
}
