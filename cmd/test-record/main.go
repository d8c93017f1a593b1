// Command test-record is a manual test for capture. It records the default
// input for a fixed time through the session controller, polling a toggle
// flag, and prints where the WAV went. With --transcribe it also sends the
// recording to the configured server and prints the text.
//
// Usage:
//
//	go run ./cmd/test-record [--seconds 5] [--out /tmp/take.wav] [--transcribe]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/chaz8081/wavtoggle/internal/audio"
	"github.com/chaz8081/wavtoggle/internal/config"
	"github.com/chaz8081/wavtoggle/internal/dispatch"
	"github.com/chaz8081/wavtoggle/internal/session"
	"github.com/chaz8081/wavtoggle/internal/transcribe"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath(), "path to config file")
	seconds := flag.Float64("seconds", 5, "recording length")
	out := flag.String("out", "", "output path template (default: audio.output from config)")
	doTranscribe := flag.Bool("transcribe", false, "transcribe the recording and print the text")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := config.Default()
	if _, err := os.Stat(*configPath); err == nil {
		if cfg, err = config.Load(*configPath); err != nil {
			exit(err)
		}
	}
	if *out != "" {
		cfg.Audio.Output = *out
	}

	spec, err := audio.ParseSpec(cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.Format)
	if err != nil {
		exit(err)
	}
	backend, err := audio.NewBackend(cfg.Audio.Backend)
	if err != nil {
		exit(err)
	}
	defer backend.Close()

	dev, err := backend.DefaultInput()
	if err != nil {
		exit(err)
	}
	fmt.Printf("Device: %s (native %s)\n", dev.Name, dev.Spec)

	var tr dispatch.Transcriber = noTranscriber{}
	if *doTranscribe {
		key, _, err := config.ResolveAPIKey(&cfg.Transcribe)
		if err != nil {
			exit(err)
		}
		if tr, err = transcribe.New(&cfg.Transcribe, key, logger); err != nil {
			exit(err)
		}
	}

	printText := dispatch.DelivererFunc(func(_ context.Context, text string) error {
		fmt.Printf("Transcript: %q\n", text)
		return nil
	})
	dispatcher := dispatch.New(tr, printText, dispatch.Options{
		KeepRecordings: true,
		Timeout:        cfg.Transcribe.Timeout,
		OnResult: func(r dispatch.Result) {
			fmt.Printf("Recording: %s (%d bytes, %s, %d dropped samples)\n",
				r.Artifact.Name(), r.Artifact.Size, r.Artifact.Duration(), r.Artifact.Dropped)
			if r.Artifact.Path != "" {
				fmt.Println("Saved to", r.Artifact.Path)
			}
			if r.Err != nil {
				fmt.Println("Error:", r.Err)
			}
		},
		Logger: logger,
	})

	controller := session.NewController(backend, dispatcher, session.Options{
		Output:   cfg.Audio.Output,
		InMemory: cfg.Audio.InMemory,
		Spec:     spec,
		Logger:   logger,
	})

	var toggle session.Flag
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- controller.Poll(ctx, &toggle, cfg.Audio.PollInterval) }()

	length := time.Duration(*seconds * float64(time.Second))
	fmt.Printf("Recording for %s...\n", length)
	toggle.Set(true)
	time.Sleep(length)
	toggle.Set(false)

	// Let the poller observe the falling edge before stopping it.
	for controller.State() == session.StateRecording {
		time.Sleep(cfg.Audio.PollInterval)
	}
	cancel()
	<-done
	dispatcher.Wait()
}

// noTranscriber skips transcription, so the dispatcher only reports the file.
type noTranscriber struct{}

func (noTranscriber) Transcribe(context.Context, *audio.Artifact) (string, error) {
	return "", nil
}

func exit(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
