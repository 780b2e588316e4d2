//go:build !darwin

package ble

import (
	"bytes"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"
)

// TinyGoPeripheral implements Peripheral over tinygo-org/bluetooth.
//
// The stack answers reads from the stored characteristic values and
// acknowledges writes by itself, so Respond only records the outcome.
// Services cannot be unregistered; adding a service that is already
// registered rebinds its characteristics to the new tree and stores the
// new values.
type TinyGoPeripheral struct {
	adapter *bluetooth.Adapter
	adv     *bluetooth.Advertisement
	log     *slog.Logger

	nextReq atomic.Uint64

	mu         sync.Mutex
	handler    func(PeripheralEvent)
	registered map[uuid.UUID]map[uuid.UUID]*bluetooth.Characteristic
	handles    map[*LocalCharacteristic]*bluetooth.Characteristic
	// centrals holds the addresses of connected centrals in connect order.
	centrals []string
}

// NewTinyGoPeripheral creates a Peripheral on the default adapter.
func NewTinyGoPeripheral() (*TinyGoPeripheral, error) {
	return &TinyGoPeripheral{
		adapter:    bluetooth.DefaultAdapter,
		log:        slog.With("transport", "peripheral"),
		registered: make(map[uuid.UUID]map[uuid.UUID]*bluetooth.Characteristic),
		handles:    make(map[*LocalCharacteristic]*bluetooth.Characteristic),
	}, nil
}

// Enable powers the adapter and reports the resulting radio state.
func (p *TinyGoPeripheral) Enable() error {
	if err := p.adapter.Enable(); err != nil {
		p.emit(RadioStateChanged{State: RadioUnsupported})
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	p.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		central := device.Address.String()
		p.trackCentral(central, connected)
		if connected {
			p.emit(CentralConnected{Central: central})
		} else {
			p.emit(CentralDisconnected{Central: central})
		}
	})
	p.adv = p.adapter.DefaultAdvertisement()
	p.emit(RadioStateChanged{State: RadioPoweredOn})
	return nil
}

func (p *TinyGoPeripheral) SetEventHandler(h func(PeripheralEvent)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

func (p *TinyGoPeripheral) emit(ev PeripheralEvent) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// RemoveAllServices forgets the local bindings. Registered services stay
// with the stack and are rebound by the next AddService.
func (p *TinyGoPeripheral) RemoveAllServices() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.handles)
	return nil
}

func (p *TinyGoPeripheral) AddService(svc *LocalService) error {
	p.mu.Lock()
	existing, ok := p.registered[svc.UUID]
	p.mu.Unlock()
	if ok {
		return p.rebind(svc, existing)
	}

	svcID, err := toBluetoothUUID(svc.UUID)
	if err != nil {
		return fmt.Errorf("ble: parse service UUID: %w", err)
	}
	bt := &bluetooth.Service{UUID: svcID}
	byUUID := make(map[uuid.UUID]*bluetooth.Characteristic, len(svc.Characteristics))
	handles := make(map[*LocalCharacteristic]*bluetooth.Characteristic, len(svc.Characteristics))

	for _, c := range svc.Characteristics {
		charID, err := toBluetoothUUID(c.UUID)
		if err != nil {
			return fmt.Errorf("ble: parse characteristic UUID: %w", err)
		}
		h := new(bluetooth.Characteristic)
		byUUID[c.UUID] = h
		handles[c] = h

		cfg := bluetooth.CharacteristicConfig{
			Handle: h,
			UUID:   charID,
			Value:  c.Value,
			Flags:  characteristicFlags(c),
		}
		if c.Properties&PropertyWrite != 0 {
			cfg.WriteEvent = p.writeHandler(c.UUID)
		}
		bt.Characteristics = append(bt.Characteristics, cfg)
	}

	if err := p.adapter.AddService(bt); err != nil {
		return fmt.Errorf("ble: add service %s: %w", svc.UUID, err)
	}

	p.mu.Lock()
	p.registered[svc.UUID] = byUUID
	for c, h := range handles {
		p.handles[c] = h
	}
	p.mu.Unlock()
	return nil
}

func (p *TinyGoPeripheral) rebind(svc *LocalService, byUUID map[uuid.UUID]*bluetooth.Characteristic) error {
	for _, c := range svc.Characteristics {
		h, ok := byUUID[c.UUID]
		if !ok {
			return fmt.Errorf("ble: service %s already registered without characteristic %s", svc.UUID, c.UUID)
		}
		p.mu.Lock()
		p.handles[c] = h
		p.mu.Unlock()
		if c.Value == nil {
			continue
		}
		if _, err := h.Write(c.Value); err != nil {
			return fmt.Errorf("ble: store value of %s: %w", c.UUID, err)
		}
	}
	return nil
}

func (p *TinyGoPeripheral) trackCentral(central string, connected bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.centrals = slices.DeleteFunc(p.centrals, func(c string) bool { return c == central })
	if connected {
		p.centrals = append(p.centrals, central)
	}
}

// writer names the central behind a write. BlueZ does not say which
// connection wrote, so with a single central connected its address is used,
// matching CentralConnected. Otherwise the connection handle is reported.
func (p *TinyGoPeripheral) writer(client bluetooth.Connection) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.centrals) == 1 {
		return p.centrals[0]
	}
	return fmt.Sprintf("connection-%d", client)
}

func (p *TinyGoPeripheral) writeHandler(char uuid.UUID) func(bluetooth.Connection, int, []byte) {
	return func(client bluetooth.Connection, offset int, value []byte) {
		p.emit(WriteRequested{Requests: []Request{{
			ID:             p.nextReq.Add(1),
			Central:        p.writer(client),
			Characteristic: char,
			Offset:         offset,
			Value:          bytes.Clone(value),
		}}})
	}
}

func characteristicFlags(c *LocalCharacteristic) bluetooth.CharacteristicPermissions {
	var flags bluetooth.CharacteristicPermissions
	if c.Properties&PropertyRead != 0 && c.Permissions&PermissionReadable != 0 {
		flags |= bluetooth.CharacteristicReadPermission
	}
	if c.Properties&PropertyWrite != 0 && c.Permissions&PermissionWriteable != 0 {
		flags |= bluetooth.CharacteristicWritePermission
	}
	if c.Properties&PropertyNotify != 0 {
		flags |= bluetooth.CharacteristicNotifyPermission
	}
	return flags
}

func (p *TinyGoPeripheral) StartAdvertising(adv Advertisement) error {
	if p.adv == nil {
		return fmt.Errorf("ble: adapter not enabled")
	}
	ids := make([]bluetooth.UUID, 0, len(adv.ServiceUUIDs))
	for _, id := range adv.ServiceUUIDs {
		bt, err := toBluetoothUUID(id)
		if err != nil {
			return fmt.Errorf("ble: parse service UUID: %w", err)
		}
		ids = append(ids, bt)
	}
	if err := p.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    adv.LocalName,
		ServiceUUIDs: ids,
	}); err != nil {
		return fmt.Errorf("ble: configure advertisement: %w", err)
	}
	if err := p.adv.Start(); err != nil {
		return fmt.Errorf("ble: start advertising: %w", err)
	}
	return nil
}

func (p *TinyGoPeripheral) StopAdvertising() error {
	if p.adv == nil {
		return nil
	}
	if err := p.adv.Stop(); err != nil {
		return fmt.Errorf("ble: stop advertising: %w", err)
	}
	return nil
}

// UpdateValue stores value and notifies subscribed centrals.
func (p *TinyGoPeripheral) UpdateValue(c *LocalCharacteristic, value []byte) error {
	p.mu.Lock()
	h, ok := p.handles[c]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("ble: characteristic %s is not published", c.UUID)
	}
	if _, err := h.Write(value); err != nil {
		return fmt.Errorf("ble: update %s: %w", c.UUID, err)
	}
	return nil
}

func (p *TinyGoPeripheral) Respond(req Request, result ATTResult, _ []byte) error {
	if result != ATTSuccess {
		p.log.Debug("[BLE] request rejected", "request", req.ID, "characteristic", req.Characteristic, "result", result)
	}
	return nil
}

// Compile-time check that TinyGoPeripheral implements Peripheral.
var _ Peripheral = (*TinyGoPeripheral)(nil)
