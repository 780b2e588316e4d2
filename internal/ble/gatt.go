package ble

import (
	"fmt"

	"github.com/chaz8081/blemsg/internal/ble/protocol"
)

// Tree is the GATT object tree the Responder publishes: one primary
// service holding exactly the DeviceInfo, Message and ReadyToReceive
// characteristics.
type Tree struct {
	Service *LocalService
	chars   map[protocol.Characteristic]*LocalCharacteristic
}

// BuildTree assembles a fresh tree. DeviceInfo carries descriptor as UTF-8
// and has no value if descriptor is not valid UTF-8. ReadyToReceive starts
// without a value until the flag is first set.
func BuildTree(ids protocol.Identifiers, descriptor string) *Tree {
	info, _ := protocol.EncodeText(descriptor)

	chars := map[protocol.Characteristic]*LocalCharacteristic{
		protocol.DeviceInfo: {
			UUID:        ids.DeviceInfo,
			Properties:  PropertyRead,
			Permissions: PermissionReadable,
			Value:       info,
		},
		protocol.Message: {
			UUID:        ids.Message,
			Properties:  PropertyWrite,
			Permissions: PermissionWriteable,
		},
		protocol.ReadyToReceive: {
			UUID:        ids.ReadyToReceive,
			Properties:  PropertyRead | PropertyNotify,
			Permissions: PermissionReadable,
		},
	}

	svc := &LocalService{UUID: ids.Service, Primary: true}
	for _, id := range protocol.Characteristics {
		svc.Characteristics = append(svc.Characteristics, chars[id])
	}
	return &Tree{Service: svc, chars: chars}
}

// Characteristic returns the local characteristic for id.
func (t *Tree) Characteristic(id protocol.Characteristic) (*LocalCharacteristic, bool) {
	if t == nil {
		return nil, false
	}
	c, ok := t.chars[id]
	return c, ok
}

// publishTree registers t with the peripheral. Earlier registrations are
// removed first; registering the same service twice faults on some stacks.
func publishTree(p Peripheral, t *Tree) error {
	if err := p.RemoveAllServices(); err != nil {
		return fmt.Errorf("ble: remove services: %w", err)
	}
	if err := p.AddService(t.Service); err != nil {
		return fmt.Errorf("ble: add service %s: %w", t.Service.UUID, err)
	}
	return nil
}
