// Package transcribe sends finished recordings to a speech-to-text server
// speaking the OpenAI audio transcription API (OpenAI itself, or a local
// whisper.cpp server).
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/chaz8081/wavtoggle/internal/audio"
	"github.com/chaz8081/wavtoggle/internal/config"
)

// ErrNoText means the server answered without a transcript.
var ErrNoText = errors.New("transcribe: response has no text")

const maxRetries = 2

// Client transcribes recordings. It is safe for concurrent use.
type Client struct {
	client      oai.Client
	model       string
	prompt      string
	language    string
	temperature float64
	log         *slog.Logger
}

// New creates a Client for cfg. apiKey may be empty for servers that do not
// check it.
func New(cfg *config.TranscribeConfig, apiKey string, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("transcribe: base url must not be empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("transcribe: model must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(strings.TrimPrefix(strings.TrimSpace(apiKey), "Bearer ")),
		option.WithMaxRetries(maxRetries),
	}

	return &Client{
		client:      oai.NewClient(opts...),
		model:       cfg.Model,
		prompt:      cfg.Prompt,
		language:    cfg.Language,
		temperature: cfg.Temperature,
		log:         logger,
	}, nil
}

// Transcribe uploads a and returns the transcript, trimmed and followed by a
// single space so consecutive dictations stay separated.
func (c *Client) Transcribe(ctx context.Context, a *audio.Artifact) (string, error) {
	r, err := a.Open()
	if err != nil {
		return "", fmt.Errorf("transcribe: open recording: %w", err)
	}
	defer r.Close()

	params := oai.AudioTranscriptionNewParams{
		File:           oai.File(r, a.Name(), "audio/wav"),
		Model:          oai.AudioModel(c.model),
		ResponseFormat: oai.AudioResponseFormatJSON,
		Temperature:    oai.Float(c.temperature),
	}
	if c.prompt != "" {
		params.Prompt = oai.String(c.prompt)
	}
	if c.language != "" {
		params.Language = oai.String(c.language)
	}

	c.log.Debug("uploading recording", "name", a.Name(), "bytes", a.Size, "model", c.model)
	resp, err := c.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcribe: request: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrNoText
	}
	return text + " ", nil
}
