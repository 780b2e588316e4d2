package ble

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"
)

// maxAttributeLen is the largest value an ATT attribute can hold.
const maxAttributeLen = 512

var errCentralClosed = errors.New("ble: central closed")

// TinyGoCentral implements Central over tinygo-org/bluetooth.
// On macOS, peer addresses are CoreBluetooth UUIDs, not MAC addresses.
//
// tinygo's central API is blocking. Requests are executed one at a time by
// a worker goroutine in the order they were made and their results are
// delivered as events. Scanning runs on its own goroutine.
type TinyGoCentral struct {
	adapter *bluetooth.Adapter
	log     *slog.Logger

	work chan func()
	quit chan struct{}
	once sync.Once

	nextID  atomic.Uint64
	scanGen atomic.Uint64

	// mu protects handler, peers and scanDone.
	mu       sync.Mutex
	handler  func(CentralEvent)
	peers    map[uint64]*tinygoPeer
	scanDone chan struct{}
}

type tinygoPeer struct {
	peer    Peer
	address bluetooth.Address
	device  *bluetooth.Device

	// connecting is set while a Connect request is queued or in flight.
	// cancelled records a CancelConnection that arrived in the meantime.
	connecting bool
	cancelled  bool
}

// NewTinyGoCentral creates a Central on the default adapter and starts its
// worker. Call Enable once the event handler is registered.
func NewTinyGoCentral() *TinyGoCentral {
	c := &TinyGoCentral{
		adapter: bluetooth.DefaultAdapter,
		log:     slog.With("transport", "central"),
		work:    make(chan func(), queueSize),
		quit:    make(chan struct{}),
		peers:   make(map[uint64]*tinygoPeer),
	}
	go c.worker()
	return c
}

// Enable powers the adapter and reports the resulting radio state.
func (c *TinyGoCentral) Enable() error {
	if err := c.adapter.Enable(); err != nil {
		c.emit(RadioStateChanged{State: RadioUnsupported})
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	// tinygo fires this with connected=false when a peripheral drops.
	c.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr := device.Address.String()
		c.mu.Lock()
		var lost []Peer
		for id, tp := range c.peers {
			if tp.device != nil && tp.address.String() == addr {
				lost = append(lost, tp.peer)
				delete(c.peers, id)
			}
		}
		c.mu.Unlock()
		for _, p := range lost {
			c.emit(PeerDisconnected{Peer: p})
		}
	})

	c.emit(RadioStateChanged{State: RadioPoweredOn})
	return nil
}

// Close stops the worker. Pending requests are discarded.
func (c *TinyGoCentral) Close() error {
	c.once.Do(func() { close(c.quit) })
	return nil
}

func (c *TinyGoCentral) SetEventHandler(h func(CentralEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *TinyGoCentral) emit(ev CentralEvent) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (c *TinyGoCentral) worker() {
	for {
		select {
		case <-c.quit:
			return
		case fn := <-c.work:
			fn()
		}
	}
}

func (c *TinyGoCentral) do(fn func()) error {
	select {
	case <-c.quit:
		return errCentralClosed
	case c.work <- fn:
		return nil
	}
}

func (c *TinyGoCentral) Scan(service uuid.UUID, opts ScanOptions) error {
	target, err := toBluetoothUUID(service)
	if err != nil {
		return fmt.Errorf("ble: parse service UUID: %w", err)
	}

	gen := c.scanGen.Add(1)
	done := make(chan struct{})

	c.mu.Lock()
	prev := c.scanDone
	c.scanDone = done
	c.pruneSightings()
	c.mu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		if c.scanGen.Load() != gen {
			return
		}

		seen := make(map[string]bool)
		err := c.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if c.scanGen.Load() != gen {
				_ = adapter.StopScan()
				return
			}
			if !result.HasServiceUUID(target) {
				return
			}
			addr := result.Address.String()
			if !opts.AllowDuplicates {
				if seen[addr] {
					return
				}
				seen[addr] = true
			}

			p := Peer{
				ID:      c.nextID.Add(1),
				Address: addr,
				Name:    result.LocalName(),
				RSSI:    int(result.RSSI),
			}
			c.mu.Lock()
			c.peers[p.ID] = &tinygoPeer{peer: p, address: result.Address}
			c.mu.Unlock()
			c.emit(PeerDiscovered{Peer: p})
		})
		if err != nil {
			c.log.Warn("[BLE] scan ended", "error", err)
		}
	}()
	return nil
}

// pruneSightings drops peers that were seen but never connected. Peers with
// a connect attempt pending are kept so a later cancel can still find them.
// c.mu must be held.
func (c *TinyGoCentral) pruneSightings() {
	for id, tp := range c.peers {
		if tp.device == nil && !tp.connecting {
			delete(c.peers, id)
		}
	}
}

func (c *TinyGoCentral) StopScan() error {
	c.scanGen.Add(1)
	if err := c.adapter.StopScan(); err != nil {
		return fmt.Errorf("ble: stop scan: %w", err)
	}
	return nil
}

func (c *TinyGoCentral) lookup(p Peer) (*tinygoPeer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tp, ok := c.peers[p.ID]
	if !ok {
		return nil, fmt.Errorf("ble: unknown peer %s", p)
	}
	return tp, nil
}

func (c *TinyGoCentral) device(p Peer) (*bluetooth.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tp, ok := c.peers[p.ID]
	if !ok || tp.device == nil {
		return nil, fmt.Errorf("ble: peer %s not connected", p)
	}
	return tp.device, nil
}

func (c *TinyGoCentral) forget(p Peer) {
	c.mu.Lock()
	delete(c.peers, p.ID)
	c.mu.Unlock()
}

func (c *TinyGoCentral) Connect(p Peer) error {
	tp, err := c.lookup(p)
	if err != nil {
		return err
	}
	c.mu.Lock()
	tp.connecting = true
	tp.cancelled = false
	c.mu.Unlock()

	err = c.do(func() {
		device, err := c.adapter.Connect(tp.address, bluetooth.ConnectionParams{})
		if err != nil {
			c.forget(p)
			c.emit(ConnectFailed{Peer: p, Err: fmt.Errorf("ble: connect to %s: %w", p.Address, err)})
			return
		}
		if !c.attach(tp, &device) {
			c.log.Info("[BLE] connect cancelled, dropping link", "peer", p)
			c.forget(p)
			if err := device.Disconnect(); err != nil {
				c.log.Warn("[BLE] disconnect failed", "peer", p, "error", err)
			}
			return
		}
		c.emit(PeerConnected{Peer: p})
	})
	if err != nil {
		c.mu.Lock()
		tp.connecting = false
		c.mu.Unlock()
	}
	return err
}

// attach records the established link on tp. It reports false when the
// attempt was cancelled while the link was being set up.
func (c *TinyGoCentral) attach(tp *tinygoPeer, device *bluetooth.Device) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	tp.connecting = false
	if tp.cancelled {
		return false
	}
	tp.device = device
	return true
}

// markCancelled flags a pending connect attempt so that attach refuses it.
// It reports whether an attempt was pending.
func (c *TinyGoCentral) markCancelled(p Peer) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	tp, ok := c.peers[p.ID]
	if !ok || !tp.connecting {
		return false
	}
	tp.cancelled = true
	return true
}

func (c *TinyGoCentral) CancelConnection(p Peer) error {
	if c.markCancelled(p) {
		// The Connect request disconnects the link once it completes.
		return nil
	}
	return c.do(func() {
		device, err := c.device(p)
		c.forget(p)
		if err != nil {
			return
		}
		if err := device.Disconnect(); err != nil {
			c.log.Warn("[BLE] disconnect failed", "peer", p, "error", err)
		}
	})
}

func (c *TinyGoCentral) DiscoverServices(p Peer, filter []uuid.UUID) error {
	var ids []bluetooth.UUID
	for _, id := range filter {
		bt, err := toBluetoothUUID(id)
		if err != nil {
			return fmt.Errorf("ble: parse service UUID: %w", err)
		}
		ids = append(ids, bt)
	}
	return c.do(func() {
		device, err := c.device(p)
		if err != nil {
			c.emit(ServicesDiscovered{Peer: p, Err: err})
			return
		}
		svcs, err := device.DiscoverServices(ids)
		if err != nil {
			c.emit(ServicesDiscovered{Peer: p, Err: fmt.Errorf("ble: discover services: %w", err)})
			return
		}
		out := make([]RemoteService, 0, len(svcs))
		for i := range svcs {
			id, err := fromBluetoothUUID(svcs[i].UUID())
			if err != nil {
				continue
			}
			out = append(out, RemoteService{UUID: id, Handle: &svcs[i]})
		}
		c.emit(ServicesDiscovered{Peer: p, Services: out})
	})
}

func (c *TinyGoCentral) DiscoverCharacteristics(p Peer, service RemoteService) error {
	svc, ok := service.Handle.(*bluetooth.DeviceService)
	if !ok {
		return fmt.Errorf("ble: service %s was not discovered by this central", service.UUID)
	}
	return c.do(func() {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			c.emit(CharacteristicsDiscovered{Peer: p, Service: service, Err: fmt.Errorf("ble: discover characteristics: %w", err)})
			return
		}
		out := make([]RemoteCharacteristic, 0, len(chars))
		for i := range chars {
			id, err := fromBluetoothUUID(chars[i].UUID())
			if err != nil {
				continue
			}
			out = append(out, RemoteCharacteristic{UUID: id, Handle: &chars[i]})
		}
		c.emit(CharacteristicsDiscovered{Peer: p, Service: service, Characteristics: out})
	})
}

func characteristicHandle(rc RemoteCharacteristic) (*bluetooth.DeviceCharacteristic, error) {
	ch, ok := rc.Handle.(*bluetooth.DeviceCharacteristic)
	if !ok {
		return nil, fmt.Errorf("ble: characteristic %s was not discovered by this central", rc.UUID)
	}
	return ch, nil
}

func (c *TinyGoCentral) ReadValue(p Peer, rc RemoteCharacteristic) error {
	ch, err := characteristicHandle(rc)
	if err != nil {
		return err
	}
	return c.do(func() {
		buf := make([]byte, maxAttributeLen)
		n, err := ch.Read(buf)
		if err != nil {
			c.emit(ValueUpdated{Peer: p, Characteristic: rc, Err: fmt.Errorf("ble: read %s: %w", rc.UUID, err)})
			return
		}
		c.emit(ValueUpdated{Peer: p, Characteristic: rc, Value: buf[:n]})
	})
}

func (c *TinyGoCentral) SetNotify(p Peer, rc RemoteCharacteristic, enabled bool) error {
	ch, err := characteristicHandle(rc)
	if err != nil {
		return err
	}
	return c.do(func() {
		var cb func([]byte)
		if enabled {
			cb = func(buf []byte) {
				c.emit(ValueUpdated{Peer: p, Characteristic: rc, Value: bytes.Clone(buf)})
			}
		}
		if err := ch.EnableNotifications(cb); err != nil {
			c.log.Warn("[BLE] set notify failed", "characteristic", rc.UUID, "enabled", enabled, "error", err)
		}
	})
}

func (c *TinyGoCentral) WriteValue(p Peer, rc RemoteCharacteristic, data []byte) error {
	ch, err := characteristicHandle(rc)
	if err != nil {
		return err
	}
	data = bytes.Clone(data)
	return c.do(func() {
		if err := writeCharacteristic(ch, data); err != nil {
			c.emit(WriteCompleted{Peer: p, Characteristic: rc, Err: fmt.Errorf("ble: write %s: %w", rc.UUID, err)})
			return
		}
		c.emit(WriteCompleted{Peer: p, Characteristic: rc})
	})
}

func toBluetoothUUID(id uuid.UUID) (bluetooth.UUID, error) {
	return bluetooth.ParseUUID(id.String())
}

func fromBluetoothUUID(id bluetooth.UUID) (uuid.UUID, error) {
	return uuid.Parse(id.String())
}

// Compile-time check that TinyGoCentral implements Central.
var _ Central = (*TinyGoCentral)(nil)
