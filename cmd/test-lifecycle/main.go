// Command test-lifecycle is a manual test for the lifecycle listener.
// Run it, then send SIGUSR1 (background) or SIGUSR2 (foreground) to the
// printed PID to see events.
// Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-lifecycle
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaz8081/blemsg/internal/lifecycle"
)

func main() {
	fmt.Printf("Listening for lifecycle signals (pid %d)...\n", os.Getpid())
	fmt.Printf("  kill -USR1 %d   -> background\n", os.Getpid())
	fmt.Printf("  kill -USR2 %d   -> foreground\n", os.Getpid())
	fmt.Println("Press Ctrl+C to exit.")

	listener := lifecycle.NewListener()

	// Handle Ctrl+C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		listener.Stop()
	}()

	// Read events
	go func() {
		for ev := range listener.Events() {
			switch ev.Type {
			case lifecycle.EventBackground:
				fmt.Println("<<< BACKGROUND (busy)")
			case lifecycle.EventForeground:
				fmt.Println(">>> FOREGROUND (ready)")
			}
		}
		fmt.Println("Event channel closed.")
	}()

	// Blocks until stopped
	listener.Start()
	fmt.Println("Done.")
}
