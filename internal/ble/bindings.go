package ble

import "github.com/chaz8081/blemsg/internal/ble/protocol"

// Bindings maps logical characteristic identities to the characteristics
// discovered on the connected peer. It is owned by a single session.
type Bindings struct {
	ids protocol.Identifiers
	m   map[protocol.Characteristic]RemoteCharacteristic
}

// NewBindings returns an empty table resolving identities with ids.
func NewBindings(ids protocol.Identifiers) *Bindings {
	return &Bindings{
		ids: ids,
		m:   make(map[protocol.Characteristic]RemoteCharacteristic),
	}
}

// Bind records every characteristic whose identifier resolves to a known
// identity and returns how many were bound. Unrecognized identifiers are
// skipped.
func (b *Bindings) Bind(chars []RemoteCharacteristic) int {
	n := 0
	for _, c := range chars {
		id, ok := b.ids.Resolve(c.UUID)
		if !ok {
			continue
		}
		b.m[id] = c
		n++
	}
	return n
}

// Lookup returns the characteristic bound to id.
func (b *Bindings) Lookup(id protocol.Characteristic) (RemoteCharacteristic, bool) {
	c, ok := b.m[id]
	return c, ok
}

// Identify resolves the logical identity of a discovered characteristic.
func (b *Bindings) Identify(c RemoteCharacteristic) (protocol.Characteristic, bool) {
	return b.ids.Resolve(c.UUID)
}

// Len returns the number of bound identities.
func (b *Bindings) Len() int {
	return len(b.m)
}

// Reset drops every binding.
func (b *Bindings) Reset() {
	clear(b.m)
}
