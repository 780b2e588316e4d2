package ble

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ScanForPeers scans for advertisers of service until ctx is done and
// returns every distinct peer seen, in discovery order. It replaces the
// central's event handler, so it must not be used on a central owned by an
// Initiator. The central must already be enabled.
func ScanForPeers(ctx context.Context, central Central, service uuid.UUID) ([]Peer, error) {
	var mu sync.Mutex
	var peers []Peer
	seen := make(map[string]bool)

	central.SetEventHandler(func(ev CentralEvent) {
		d, ok := ev.(PeerDiscovered)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if seen[d.Peer.Address] {
			return
		}
		seen[d.Peer.Address] = true
		peers = append(peers, d.Peer)
	})
	defer central.SetEventHandler(nil)

	if err := central.Scan(service, ScanOptions{}); err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	<-ctx.Done()
	if err := central.StopScan(); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	return peers, nil
}
