package ble

import (
	"bytes"
	"errors"
	"testing"

	"github.com/chaz8081/blemsg/internal/ble/protocol"
)

func TestBuildTree(t *testing.T) {
	tree := BuildTree(testIDs, "Pixel-7")

	if tree.Service.UUID != testIDs.Service || !tree.Service.Primary {
		t.Fatalf("service = %+v, want primary %s", tree.Service, testIDs.Service)
	}
	if len(tree.Service.Characteristics) != 3 {
		t.Fatalf("characteristics = %d, want 3", len(tree.Service.Characteristics))
	}

	tests := []struct {
		id    protocol.Characteristic
		props Properties
		perms Permissions
		value []byte
	}{
		{protocol.DeviceInfo, PropertyRead, PermissionReadable, []byte("Pixel-7")},
		{protocol.Message, PropertyWrite, PermissionWriteable, nil},
		{protocol.ReadyToReceive, PropertyRead | PropertyNotify, PermissionReadable, nil},
	}
	for i, tt := range tests {
		t.Run(tt.id.String(), func(t *testing.T) {
			c, ok := tree.Characteristic(tt.id)
			if !ok {
				t.Fatalf("Characteristic(%v) not found", tt.id)
			}
			if tree.Service.Characteristics[i] != c {
				t.Errorf("characteristic %d is not %v", i, tt.id)
			}
			want, _ := testIDs.UUID(tt.id)
			if c.UUID != want {
				t.Errorf("UUID = %s, want %s", c.UUID, want)
			}
			if c.Properties != tt.props {
				t.Errorf("Properties = %b, want %b", c.Properties, tt.props)
			}
			if c.Permissions != tt.perms {
				t.Errorf("Permissions = %b, want %b", c.Permissions, tt.perms)
			}
			if !bytes.Equal(c.Value, tt.value) {
				t.Errorf("Value = %q, want %q", c.Value, tt.value)
			}
		})
	}
}

func TestBuildTreeInvalidDescriptor(t *testing.T) {
	tree := BuildTree(testIDs, string([]byte{0xff}))
	c, _ := tree.Characteristic(protocol.DeviceInfo)
	if c.Value != nil {
		t.Errorf("Value = %x, want nil", c.Value)
	}
}

func TestNilTreeCharacteristic(t *testing.T) {
	var tree *Tree
	if _, ok := tree.Characteristic(protocol.Message); ok {
		t.Error("nil tree returned a characteristic")
	}
}

func TestPublishTreeReplaces(t *testing.T) {
	p := newMockPeripheral()

	for range 2 {
		if err := publishTree(p, BuildTree(testIDs, "Pixel-7")); err != nil {
			t.Fatalf("publishTree() error = %v", err)
		}
	}
	if len(p.services) != 1 {
		t.Fatalf("services = %d, want 1", len(p.services))
	}
	if got := len(p.services[0].Characteristics); got != 3 {
		t.Errorf("characteristics = %d, want 3", got)
	}
	if p.removeCalls != 2 {
		t.Errorf("removeCalls = %d, want 2", p.removeCalls)
	}
}

func TestPublishTreeError(t *testing.T) {
	p := newMockPeripheral()
	p.addErr = errors.New("boom")
	err := publishTree(p, BuildTree(testIDs, "x"))
	if !errors.Is(err, p.addErr) {
		t.Errorf("publishTree() error = %v, want wrapped %v", err, p.addErr)
	}
}
