package ble

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestScanForPeers(t *testing.T) {
	central := newMockCentral()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var (
		result []Peer
		err    error
	)
	go func() {
		defer close(done)
		result, err = ScanForPeers(ctx, central, testIDs.Service)
	}()

	// Wait for the scan request before delivering advertisements.
	deadline := time.Now().Add(2 * time.Second)
	for central.scanCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("scan never started")
		}
		time.Sleep(time.Millisecond)
	}

	central.Emit(RadioStateChanged{State: RadioPoweredOn})
	central.Emit(PeerDiscovered{Peer: testPeer})
	central.Emit(PeerDiscovered{Peer: otherPeer})
	dup := testPeer
	dup.ID = 9
	central.Emit(PeerDiscovered{Peer: dup})
	cancel()
	<-done

	if err != nil {
		t.Fatalf("ScanForPeers() error = %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("got %d peers, want 2", len(result))
	}
	if result[0].Name != "Pixel-7" {
		t.Errorf("Name = %q, want %q", result[0].Name, "Pixel-7")
	}
	if result[0].Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Address = %q, want %q", result[0].Address, "AA:BB:CC:DD:EE:FF")
	}
	if central.scans[0].service != testIDs.Service {
		t.Errorf("scan service = %s, want %s", central.scans[0].service, testIDs.Service)
	}
	if central.stopScans != 1 {
		t.Errorf("stopScans = %d, want 1", central.stopScans)
	}
}

func TestScanForPeersEmpty(t *testing.T) {
	central := newMockCentral()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	result, err := ScanForPeers(ctx, central, testIDs.Service)
	if err != nil {
		t.Fatalf("ScanForPeers() error = %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("got %d peers, want 0", len(result))
	}
}

func TestScanForPeersScanError(t *testing.T) {
	central := newMockCentral()
	central.scanErr = errors.New("adapter off")

	_, err := ScanForPeers(context.Background(), central, testIDs.Service)
	if !errors.Is(err, central.scanErr) {
		t.Errorf("ScanForPeers() error = %v, want wrapped %v", err, central.scanErr)
	}
}
