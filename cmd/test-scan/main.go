// Command test-scan is a manual test for the central transport.
// It scans for responders advertising the messaging service and lists
// every peer found.
//
// Usage:
//
//	go run ./cmd/test-scan [--timeout 5s] [--service uuid]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/chaz8081/blemsg/internal/ble"
	"github.com/chaz8081/blemsg/internal/ble/protocol"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Second, "how long to scan")
	service := flag.String("service", protocol.DefaultServiceUUID, "service UUID to look for")
	flag.Parse()

	id, err := uuid.Parse(*service)
	if err != nil {
		fmt.Printf("Error: invalid service UUID: %v\n", err)
		os.Exit(1)
	}

	central := ble.NewTinyGoCentral()
	defer central.Close()
	if err := central.Enable(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Scanning for %s for %s...\n", id, *timeout)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	peers, err := ble.ScanForPeers(ctx, central, id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if len(peers) == 0 {
		fmt.Println("No responders found.")
		return
	}
	for _, p := range peers {
		fmt.Printf("  %-20s %s  RSSI %d\n", p.Name, p.Address, p.RSSI)
	}
	fmt.Println("\nDone!")
}
