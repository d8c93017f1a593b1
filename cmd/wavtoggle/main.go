// Command wavtoggle records the microphone while a global hotkey is toggled
// on, then transcribes the recording and types or pastes the text.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/chaz8081/wavtoggle/internal/audio"
	"github.com/chaz8081/wavtoggle/internal/config"
	"github.com/chaz8081/wavtoggle/internal/dispatch"
	"github.com/chaz8081/wavtoggle/internal/hotkey"
	"github.com/chaz8081/wavtoggle/internal/inject"
	"github.com/chaz8081/wavtoggle/internal/observe"
	"github.com/chaz8081/wavtoggle/internal/session"
	"github.com/chaz8081/wavtoggle/internal/transcribe"
)

// version is set at build time.
var version = "dev"

// shutdownGrace bounds how long in-flight transcriptions may finish on exit.
const shutdownGrace = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/wavtoggle/config.yaml)")
	initConfig := flag.Bool("init", false, "write the default config file and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("wavtoggle", version)
		return
	}

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			fatal("writing default config", err)
		}
		if path == "" {
			fmt.Println("Config already exists at", config.DefaultConfigPath())
		} else {
			fmt.Println("Wrote", path)
		}
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("config", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal("config validation", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	printBanner(cfg)

	if err := run(cfg, logger); err != nil {
		fatal("wavtoggle", err)
	}

	// Exit directly to avoid gohook's C cleanup crash.
	// The OS reclaims the event hook on process exit.
	os.Exit(0)
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metricsSrv, shutdownMetrics, err := setupMetrics(ctx, cfg.Metrics.Listen)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownMetrics(sctx); err != nil {
			logger.Warn("shutting down metrics", "error", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	spec, err := audio.ParseSpec(cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.Format)
	if err != nil {
		return err
	}
	backend, err := audio.NewBackend(cfg.Audio.Backend)
	if err != nil {
		return fmt.Errorf("%w\n\nEnsure microphone access is granted to this terminal", err)
	}
	defer backend.Close()

	dev, err := backend.DefaultInput()
	if err != nil {
		return fmt.Errorf("%w\n\nEnsure a microphone is connected and access is granted", err)
	}
	logger.Info("input device ready", "device", dev.Name, "native", dev.Spec.String(), "requested", spec.String())

	apiKey, created, err := config.ResolveAPIKey(&cfg.Transcribe)
	if err != nil {
		return err
	}
	if created {
		logger.Warn("created API key file, add your key to it", "path", cfg.Transcribe.APIKeyFile)
	}
	if apiKey == "" && strings.Contains(cfg.Transcribe.BaseURL, "api.openai.com") {
		logger.Warn("no API key configured; transcription requests will be rejected")
	}

	transcriber, err := transcribe.New(&cfg.Transcribe, apiKey, logger)
	if err != nil {
		return err
	}
	injector, err := inject.NewInjector(cfg.Inject.Method, cfg.Inject.PasteDelay, logger)
	if err != nil {
		return err
	}

	dispatcher := dispatch.New(transcriber, injector, dispatch.Options{
		MinDuration:    cfg.Audio.MinDuration,
		KeepRecordings: cfg.Transcribe.KeepRecordings,
		Timeout:        cfg.Transcribe.Timeout,
		OnResult: func(r dispatch.Result) {
			if r.Err == nil && r.Text != "" {
				logger.Debug("transcript", "seq", r.Artifact.Seq, "text", r.Text)
			}
		},
		Logger:  logger,
		Metrics: metrics,
	})

	controller := session.NewController(backend, dispatcher, session.Options{
		Output:   cfg.Audio.Output,
		InMemory: cfg.Audio.InMemory,
		Spec:     spec,
		Logger:   logger,
		Metrics:  metrics,
	})

	listener := hotkey.NewListener(cfg.Hotkey.Keys, cfg.Hotkey.Mode)
	listener.FollowState(func() bool { return controller.State() == session.StateRecording })
	go listener.Start()

	logger.Info("ready", "hotkey", strings.Join(cfg.Hotkey.Keys, "+"), "mode", cfg.Hotkey.Mode)

	g, gctx := errgroup.WithContext(ctx)
	if metricsSrv != nil {
		g.Go(func() error {
			logger.Info("serving metrics", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return metricsSrv.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		defer cancel()
		defer listener.Stop()
		err := controller.Run(gctx, listener.Signals())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	runErr := g.Wait()

	logger.Info("shutting down, waiting for transcriptions")
	waitDone := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownGrace):
		logger.Warn("transcriptions still running at exit")
	}
	logger.Info("goodbye")
	return runErr
}

// setupMetrics installs the Prometheus exporter and builds the /metrics
// server for listen. An empty listen address disables both.
func setupMetrics(ctx context.Context, listen string) (*http.Server, func(context.Context) error, error) {
	if listen == "" {
		return nil, func(context.Context) error { return nil }, nil
	}

	shutdown, err := observe.InitProvider(ctx, version)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv, shutdown, nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		slog.Info("config loaded", "path", defaultPath)
		return cfg, nil
	}

	slog.Info("no config file found, using defaults (run with -init to write one)")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	rate := "device"
	if cfg.Audio.SampleRate > 0 {
		rate = fmt.Sprintf("%dHz", cfg.Audio.SampleRate)
	}
	out := cfg.Audio.Output
	if cfg.Audio.InMemory {
		out = "(in memory)"
	}
	fmt.Println("=== wavtoggle ===")
	fmt.Printf("  Hotkey:  %s (%s mode)\n", strings.Join(cfg.Hotkey.Keys, "+"), cfg.Hotkey.Mode)
	fmt.Printf("  Audio:   %s via %s, %s, %dch\n", out, cfg.Audio.Backend, rate, cfg.Audio.Channels)
	fmt.Printf("  Server:  %s (%s)\n", cfg.Transcribe.BaseURL, cfg.Transcribe.Model)
	fmt.Printf("  Inject:  %s\n", cfg.Inject.Method)
	if cfg.Metrics.Listen != "" {
		fmt.Printf("  Metrics: http://%s/metrics\n", cfg.Metrics.Listen)
	}
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("=================")
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
