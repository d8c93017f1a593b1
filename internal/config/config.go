package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Hotkey     HotkeyConfig     `yaml:"hotkey"`
	Audio      AudioConfig      `yaml:"audio"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Inject     InjectConfig     `yaml:"inject"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	LogLevel   string           `yaml:"log_level"`
}

// HotkeyConfig holds hotkey-related settings.
type HotkeyConfig struct {
	Keys []string `yaml:"keys"`
	Mode string   `yaml:"mode"` // "toggle" or "hold"
}

// AudioConfig holds audio capture settings. Zero sample_rate or channels and
// an empty format use the device default.
type AudioConfig struct {
	Backend      string        `yaml:"backend"` // "malgo" or "pulse"
	SampleRate   int           `yaml:"sample_rate"`
	Channels     int           `yaml:"channels"`
	Format       string        `yaml:"format"`
	Output       string        `yaml:"output"` // recordings are <stem>_<n><ext>
	InMemory     bool          `yaml:"in_memory"`
	MinDuration  time.Duration `yaml:"min_duration"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// TranscribeConfig holds the speech-to-text endpoint settings. Any server
// speaking the OpenAI transcription API works, including whisper.cpp's.
type TranscribeConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key,omitempty"`
	APIKeyFile     string        `yaml:"api_key_file"`
	Model          string        `yaml:"model"`
	Prompt         string        `yaml:"prompt"`
	Temperature    float64       `yaml:"temperature"`
	Language       string        `yaml:"language"`
	Timeout        time.Duration `yaml:"timeout"`
	KeepRecordings bool          `yaml:"keep_recordings"`
}

// InjectConfig holds text delivery settings.
type InjectConfig struct {
	Method     string        `yaml:"method"` // "type", "paste" or "clipboard"
	PasteDelay time.Duration `yaml:"paste_delay"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables the endpoint
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "wavtoggle")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		Hotkey: HotkeyConfig{
			Keys: []string{"ctrl", "shift", "space"},
			Mode: "toggle",
		},
		Audio: AudioConfig{
			Backend:      "malgo",
			SampleRate:   16000,
			Channels:     1,
			Format:       "s16",
			Output:       filepath.Join(home, ".local", "share", "wavtoggle", "recordings", "recording.wav"),
			MinDuration:  300 * time.Millisecond,
			PollInterval: 100 * time.Millisecond,
		},
		Transcribe: TranscribeConfig{
			BaseURL:     "https://api.openai.com/v1/",
			APIKeyFile:  filepath.Join(DefaultConfigDir(), "apikey.yaml"),
			Model:       "whisper-1",
			Temperature: 0,
			Timeout:     60 * time.Second,
		},
		Inject: InjectConfig{
			Method:     "paste",
			PasteDelay: 50 * time.Millisecond,
		},
		LogLevel: "info",
	}
}

// defaultHeader is prepended to the file written by WriteDefault.
const defaultHeader = `# wavtoggle configuration
# Press the hotkey to start recording, press it again to transcribe.
# The API key is read from transcribe.api_key, $OPENAI_API_KEY, or
# transcribe.api_key_file, in that order.

`

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there. It returns the path written, or "" if a file was already
// present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing default config: %w", err)
	}
	return path, nil
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Audio.Output = expandTilde(cfg.Audio.Output)
	cfg.Transcribe.APIKeyFile = expandTilde(cfg.Transcribe.APIKeyFile)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if len(c.Hotkey.Keys) == 0 {
		return fmt.Errorf("hotkey.keys must not be empty")
	}

	switch c.Hotkey.Mode {
	case "hold", "toggle":
	default:
		return fmt.Errorf("hotkey.mode must be \"hold\" or \"toggle\", got %q", c.Hotkey.Mode)
	}

	switch c.Audio.Backend {
	case "malgo", "pulse":
	default:
		return fmt.Errorf("audio.backend must be \"malgo\" or \"pulse\", got %q", c.Audio.Backend)
	}

	if c.Audio.SampleRate < 0 {
		return fmt.Errorf("audio.sample_rate must be >= 0")
	}

	if c.Audio.Channels < 0 {
		return fmt.Errorf("audio.channels must be >= 0")
	}

	switch strings.ToLower(c.Audio.Format) {
	case "", "native", "u8", "s16", "s24", "s32", "f32":
	default:
		return fmt.Errorf("audio.format must be one of native, u8, s16, s24, s32, f32, got %q", c.Audio.Format)
	}

	if !c.Audio.InMemory && c.Audio.Output == "" {
		return fmt.Errorf("audio.output must not be empty unless audio.in_memory is set")
	}

	if c.Audio.MinDuration < 0 {
		return fmt.Errorf("audio.min_duration must be >= 0")
	}

	if c.Audio.PollInterval < 0 {
		return fmt.Errorf("audio.poll_interval must be >= 0")
	}

	if c.Transcribe.BaseURL == "" {
		return fmt.Errorf("transcribe.base_url must not be empty")
	}

	if c.Transcribe.Model == "" {
		return fmt.Errorf("transcribe.model must not be empty")
	}

	if c.Transcribe.Temperature < 0 || c.Transcribe.Temperature > 1 {
		return fmt.Errorf("transcribe.temperature must be between 0 and 1, got %v", c.Transcribe.Temperature)
	}

	switch c.Inject.Method {
	case "type", "paste", "clipboard":
	default:
		return fmt.Errorf("inject.method must be \"type\", \"paste\" or \"clipboard\", got %q", c.Inject.Method)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a log_level value to a slog.Level. Unknown values
// mean info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
