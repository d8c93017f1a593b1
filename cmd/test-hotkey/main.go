// Command test-hotkey is a manual test for the global hotkey listener.
// Run it, then press Ctrl+Shift+Space to see the desired recording states.
// Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-hotkey [--mode toggle|hold] [--keys ctrl,shift,space]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chaz8081/wavtoggle/internal/hotkey"
)

func main() {
	mode := flag.String("mode", hotkey.ModeToggle, "hotkey mode: toggle or hold")
	keyList := flag.String("keys", "ctrl,shift,space", "comma-separated key combo")
	flag.Parse()

	keys := strings.Split(*keyList, ",")
	fmt.Printf("Listening for %s in %q mode...\n", strings.Join(keys, "+"), *mode)
	fmt.Println("Press Ctrl+C to exit.")

	listener := hotkey.NewListener(keys, *mode)

	// Handle Ctrl+C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		listener.Stop()
	}()

	go func() {
		for recording := range listener.Signals() {
			if recording {
				fmt.Println(">>> RECORD")
			} else {
				fmt.Println("<<< STOP")
			}
		}
		fmt.Println("Signal channel closed.")
	}()

	// Blocks until stopped
	listener.Start()
	fmt.Println("Done.")
}
