// Package inject delivers transcribed text to the active application by
// simulated typing, clipboard paste, or by leaving it on the clipboard.
package inject

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/go-vgo/robotgo"
)

// Delivery methods.
const (
	MethodType      = "type"
	MethodPaste     = "paste"
	MethodClipboard = "clipboard"
)

// restoreDelay is how long the pasted text stays on the clipboard before the
// previous content is put back.
const restoreDelay = 100 * time.Millisecond

// TextInjector is anything that can put text in front of the user.
type TextInjector interface {
	Inject(text string) error
}

// Clipboard reads and writes the system clipboard.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// Keyboard simulates key input.
type Keyboard interface {
	Type(text string)
	Tap(key string, modifiers ...string) error
}

// Injector handles typing or pasting text into the active application.
type Injector struct {
	method     string
	pasteDelay time.Duration
	modifier   string
	clip       Clipboard
	keys       Keyboard
	log        *slog.Logger
}

var _ TextInjector = (*Injector)(nil)

// NewInjector creates an Injector using the system clipboard and keyboard.
// pasteDelay is the settle time between setting the clipboard and sending
// the paste chord.
func NewInjector(method string, pasteDelay time.Duration, logger *slog.Logger) (*Injector, error) {
	return newInjector(method, pasteDelay, systemClipboard{}, robotKeyboard{}, logger)
}

func newInjector(method string, pasteDelay time.Duration, clip Clipboard, keys Keyboard, logger *slog.Logger) (*Injector, error) {
	switch method {
	case MethodType, MethodPaste, MethodClipboard:
	default:
		return nil, fmt.Errorf("inject: unknown method %q", method)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{
		method:     method,
		pasteDelay: pasteDelay,
		modifier:   pasteModifier(runtime.GOOS),
		clip:       clip,
		keys:       keys,
		log:        logger,
	}, nil
}

// pasteModifier returns the paste chord modifier for goos.
func pasteModifier(goos string) string {
	if goos == "darwin" {
		return "cmd"
	}
	return "ctrl"
}

// Inject sends text to the active application using the configured method.
func (inj *Injector) Inject(text string) error {
	return inj.Deliver(context.Background(), text)
}

// Deliver is Inject with cancellation of the paste delays.
func (inj *Injector) Deliver(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	switch inj.method {
	case MethodClipboard:
		if err := inj.clip.WriteAll(text); err != nil {
			return fmt.Errorf("inject: write to clipboard: %w", err)
		}
		return nil
	case MethodPaste:
		return inj.paste(ctx, text)
	default:
		inj.keys.Type(text)
		return nil
	}
}

// paste puts text on the clipboard, sends the paste chord and restores the
// previous clipboard content.
func (inj *Injector) paste(ctx context.Context, text string) error {
	prev, err := inj.clip.ReadAll()
	restore := err == nil
	if err != nil {
		inj.log.Debug("reading clipboard", "error", err)
	}

	if err := inj.clip.WriteAll(text); err != nil {
		return fmt.Errorf("inject: write to clipboard: %w", err)
	}
	if err := sleep(ctx, inj.pasteDelay); err != nil {
		return err
	}
	if err := inj.keys.Tap("v", inj.modifier); err != nil {
		return fmt.Errorf("inject: key tap %s+v: %w", inj.modifier, err)
	}
	if err := sleep(ctx, restoreDelay); err != nil {
		return err
	}

	// Best effort. An unreadable clipboard is left holding the text.
	if !restore {
		return nil
	}
	if err := inj.clip.WriteAll(prev); err != nil {
		inj.log.Warn("restoring clipboard", "error", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type systemClipboard struct{}

func (systemClipboard) ReadAll() (string, error)   { return clipboard.ReadAll() }
func (systemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

type robotKeyboard struct{}

func (robotKeyboard) Type(text string) { robotgo.Type(text) }

func (robotKeyboard) Tap(key string, modifiers ...string) error {
	args := make([]interface{}, len(modifiers))
	for i, m := range modifiers {
		args[i] = m
	}
	return robotgo.KeyTap(key, args...)
}
