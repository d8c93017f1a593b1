// Command test-inject is a manual test for text delivery.
// It waits 3 seconds, then types, pastes or copies test text.
// Focus a text editor before the countdown finishes.
//
// Usage:
//
//	go run ./cmd/test-inject [--method type|paste|clipboard] [--delay 50ms]
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chaz8081/wavtoggle/internal/inject"
)

func main() {
	method := flag.String("method", inject.MethodPaste, "inject method: type, paste or clipboard")
	delay := flag.Duration("delay", 50*time.Millisecond, "settle time before the paste chord")
	text := flag.String("text", "Hello from wavtoggle! ", "text to deliver")
	flag.Parse()

	inj, err := inject.NewInjector(*method, *delay, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	fmt.Printf("Will inject %q using %q method in 3 seconds...\n", *text, *method)
	fmt.Println("Focus a text editor now!")

	for i := 3; i > 0; i-- {
		fmt.Printf("%d...\n", i)
		time.Sleep(time.Second)
	}

	if err := inj.Inject(*text); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nDone!")
}
