package ble

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/chaz8081/blemsg/internal/ble/protocol"
)

// InitiatorState is the connection lifecycle state of an Initiator.
type InitiatorState int32

const (
	InitiatorIdle InitiatorState = iota
	InitiatorScanning
	InitiatorConnecting
	InitiatorDiscoveringServices
	InitiatorDiscoveringCharacteristics
	InitiatorReady
	InitiatorDisconnected
)

func (s InitiatorState) String() string {
	switch s {
	case InitiatorIdle:
		return "idle"
	case InitiatorScanning:
		return "scanning"
	case InitiatorConnecting:
		return "connecting"
	case InitiatorDiscoveringServices:
		return "discovering-services"
	case InitiatorDiscoveringCharacteristics:
		return "discovering-characteristics"
	case InitiatorReady:
		return "ready"
	case InitiatorDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("initiator-state(%d)", int32(s))
	}
}

// InitiatorObserver receives the events an Initiator surfaces. Methods are
// called on the session goroutine and must not block.
type InitiatorObserver interface {
	// OnConnected is called with the peer's device descriptor once it has
	// been read.
	OnConnected(descriptor string)
	OnDisconnected()
	// OnReadinessChanged reports every flow-control value received from the
	// peer. Callers are expected to hold back Send while ready is false.
	OnReadinessChanged(ready bool)
}

// InitiatorOptions configures an Initiator.
type InitiatorOptions struct {
	Identifiers protocol.Identifiers
	// EnforceReadiness drops Send calls while the peer's last reported flag
	// is not ready. When false, gating is left to the caller.
	EnforceReadiness bool
}

// DefaultInitiatorOptions returns the default identifiers with
// caller-side gating.
func DefaultInitiatorOptions() InitiatorOptions {
	return InitiatorOptions{Identifiers: protocol.DefaultIdentifiers()}
}

// connection is the peer an Initiator owns from the moment it chooses to
// connect until teardown.
type connection struct {
	peer Peer
	// linked is set once the transport reports the link established.
	linked bool
}

// Initiator scans for a Responder, connects to the first one found,
// discovers and binds its characteristics, tracks its flow-control flag and
// writes messages to it.
type Initiator struct {
	central  Central
	observer InitiatorObserver
	opts     InitiatorOptions
	log      *slog.Logger
	queue    *queue[CentralEvent]

	state atomic.Int32

	// Owned by the session goroutine.
	radio    RadioState
	started  bool
	conn     *connection
	bindings *Bindings
	ready    bool
}

type startInitiator struct{}

type sendMessage struct {
	text string
}

type disconnectPeer struct{}

func (startInitiator) centralEvent() {}
func (sendMessage) centralEvent()    {}
func (disconnectPeer) centralEvent() {}

// NewInitiator creates an Initiator bound to central. A nil observer
// discards events.
func NewInitiator(central Central, observer InitiatorObserver, opts InitiatorOptions) *Initiator {
	if observer == nil {
		observer = nopInitiatorObserver{}
	}
	s := &Initiator{
		central:  central,
		observer: observer,
		opts:     opts,
		log:      slog.With("role", "initiator"),
		queue:    newQueue[CentralEvent](),
		bindings: NewBindings(opts.Identifiers),
	}
	central.SetEventHandler(func(ev CentralEvent) {
		if err := s.queue.post(ev); err != nil {
			s.log.Debug("[BLE] dropping transport event", "event", fmt.Sprintf("%T", ev), "error", err)
		}
	})
	return s
}

// Run processes events until ctx is cancelled.
func (s *Initiator) Run(ctx context.Context) error {
	return s.queue.run(ctx, s.handle)
}

// Start begins scanning for a Responder once the radio is powered on.
func (s *Initiator) Start() error {
	return s.queue.post(startInitiator{})
}

// Send writes text to the connected Responder's message characteristic.
// It is a no-op unless the session is ready and the characteristic was
// discovered.
func (s *Initiator) Send(text string) error {
	return s.queue.post(sendMessage{text: text})
}

// Disconnect drops the current connection and resumes scanning.
func (s *Initiator) Disconnect() error {
	return s.queue.post(disconnectPeer{})
}

// State returns the current lifecycle state. Safe for concurrent use.
func (s *Initiator) State() InitiatorState {
	return InitiatorState(s.state.Load())
}

func (s *Initiator) setState(st InitiatorState) {
	prev := InitiatorState(s.state.Swap(int32(st)))
	if prev != st {
		s.log.Debug("[BLE] state", "from", prev, "to", st)
	}
}

func (s *Initiator) handle(ev CentralEvent) {
	switch ev := ev.(type) {
	case startInitiator:
		s.start()
	case sendMessage:
		s.send(ev.text)
	case disconnectPeer:
		s.disconnect()
	case RadioStateChanged:
		s.radioChanged(ev.State)
	case PeerDiscovered:
		s.peerDiscovered(ev.Peer)
	case PeerConnected:
		s.peerConnected(ev.Peer)
	case ConnectFailed:
		if s.owns(ev.Peer) {
			s.log.Warn("[BLE] connect failed", "peer", ev.Peer, "error", ev.Err)
			s.teardown(false)
		}
	case PeerDisconnected:
		if s.owns(ev.Peer) {
			s.log.Info("[BLE] peer disconnected", "peer", ev.Peer, "error", ev.Err)
			s.teardown(false)
		}
	case ServicesDiscovered:
		s.servicesDiscovered(ev)
	case CharacteristicsDiscovered:
		s.characteristicsDiscovered(ev)
	case ValueUpdated:
		s.valueUpdated(ev)
	case WriteCompleted:
		if s.owns(ev.Peer) && ev.Err != nil {
			s.log.Warn("[BLE] message write failed", "peer", ev.Peer, "error", ev.Err)
		}
	case ServicesInvalidated:
		if s.owns(ev.Peer) && slices.Contains(ev.Services, s.opts.Identifiers.Service) {
			s.log.Info("[BLE] service invalidated", "peer", ev.Peer)
			s.teardown(true)
		}
	default:
		s.log.Debug("[BLE] unhandled event", "event", fmt.Sprintf("%T", ev))
	}
}

// owns reports whether p is the peer of the current connection.
func (s *Initiator) owns(p Peer) bool {
	return s.conn != nil && s.conn.peer.ID == p.ID
}

func (s *Initiator) start() {
	s.started = true
	if s.radio != RadioPoweredOn {
		s.log.Info("[BLE] waiting for radio", "radio", s.radio)
		return
	}
	switch s.State() {
	case InitiatorIdle, InitiatorDisconnected:
		s.startScanning()
	}
}

func (s *Initiator) startScanning() {
	err := s.central.Scan(s.opts.Identifiers.Service, ScanOptions{AllowDuplicates: false})
	if err != nil {
		s.log.Warn("[BLE] scan failed", "error", err)
		s.setState(InitiatorIdle)
		return
	}
	s.setState(InitiatorScanning)
	s.log.Info("[BLE] scanning", "service", s.opts.Identifiers.Service)
}

func (s *Initiator) radioChanged(st RadioState) {
	s.radio = st
	if st == RadioPoweredOn {
		if s.started {
			switch s.State() {
			case InitiatorIdle, InitiatorDisconnected:
				s.startScanning()
			}
		}
		return
	}

	s.log.Warn("[BLE] radio unavailable", "radio", st)
	wasScanning := s.State() == InitiatorScanning
	if s.conn != nil {
		s.teardown(true)
	}
	if wasScanning {
		if err := s.central.StopScan(); err != nil {
			s.log.Warn("[BLE] stop scan failed", "error", err)
		}
	}
	s.setState(InitiatorIdle)
}

func (s *Initiator) peerDiscovered(p Peer) {
	if s.State() != InitiatorScanning {
		return
	}
	if err := s.central.StopScan(); err != nil {
		s.log.Warn("[BLE] stop scan failed", "error", err)
	}

	s.conn = &connection{peer: p}
	s.setState(InitiatorConnecting)
	s.log.Info("[BLE] connecting", "peer", p, "rssi", p.RSSI)
	if err := s.central.Connect(p); err != nil {
		s.log.Warn("[BLE] connect request failed", "peer", p, "error", err)
		s.teardown(false)
	}
}

func (s *Initiator) peerConnected(p Peer) {
	if !s.owns(p) || s.State() != InitiatorConnecting {
		return
	}
	s.conn.linked = true
	s.setState(InitiatorDiscoveringServices)
	s.log.Info("[BLE] connected", "peer", p)
	if err := s.central.DiscoverServices(p, []uuid.UUID{s.opts.Identifiers.Service}); err != nil {
		s.log.Warn("[BLE] discover services failed", "peer", p, "error", err)
		s.teardown(true)
	}
}

func (s *Initiator) servicesDiscovered(ev ServicesDiscovered) {
	if !s.owns(ev.Peer) || s.State() != InitiatorDiscoveringServices {
		return
	}
	if ev.Err != nil {
		s.log.Warn("[BLE] service discovery failed", "peer", ev.Peer, "error", ev.Err)
		s.teardown(true)
		return
	}
	if len(ev.Services) == 0 {
		s.log.Warn("[BLE] peer reported no services", "peer", ev.Peer)
	}

	s.setState(InitiatorDiscoveringCharacteristics)
	for _, svc := range ev.Services {
		if err := s.central.DiscoverCharacteristics(ev.Peer, svc); err != nil {
			s.log.Warn("[BLE] discover characteristics failed", "service", svc.UUID, "error", err)
			if svc.UUID == s.opts.Identifiers.Service {
				s.teardown(true)
				return
			}
		}
	}
}

func (s *Initiator) characteristicsDiscovered(ev CharacteristicsDiscovered) {
	if !s.owns(ev.Peer) {
		return
	}
	switch s.State() {
	case InitiatorDiscoveringCharacteristics, InitiatorReady:
	default:
		return
	}
	if ev.Service.UUID != s.opts.Identifiers.Service {
		return
	}
	if ev.Err != nil {
		s.log.Warn("[BLE] characteristic discovery failed", "peer", ev.Peer, "error", ev.Err)
		s.teardown(true)
		return
	}

	n := s.bindings.Bind(ev.Characteristics)
	s.log.Info("[BLE] characteristics bound", "found", len(ev.Characteristics), "bound", n)
	s.setState(InitiatorReady)
	s.initialRead(ev.Peer)
}

// initialRead requests the descriptor and flag and subscribes to the flag.
// Characteristics the peer lacks are skipped.
func (s *Initiator) initialRead(p Peer) {
	if c, ok := s.bindings.Lookup(protocol.DeviceInfo); ok {
		if err := s.central.ReadValue(p, c); err != nil {
			s.log.Warn("[BLE] read device info failed", "error", err)
		}
	}
	if c, ok := s.bindings.Lookup(protocol.ReadyToReceive); ok {
		if err := s.central.ReadValue(p, c); err != nil {
			s.log.Warn("[BLE] read ready flag failed", "error", err)
		}
		if err := s.central.SetNotify(p, c, true); err != nil {
			s.log.Warn("[BLE] subscribe ready flag failed", "error", err)
		}
	}
}

func (s *Initiator) valueUpdated(ev ValueUpdated) {
	if !s.owns(ev.Peer) || s.State() != InitiatorReady {
		return
	}
	id, ok := s.bindings.Identify(ev.Characteristic)
	if !ok {
		return
	}
	if ev.Err != nil {
		s.log.Warn("[BLE] value update failed", "characteristic", id, "error", ev.Err)
		return
	}

	switch id {
	case protocol.DeviceInfo:
		descriptor, ok := protocol.DecodeText(ev.Value)
		if !ok {
			s.log.Debug("[BLE] dropping malformed device info", "len", len(ev.Value))
			return
		}
		s.log.Info("[BLE] device info", "descriptor", descriptor)
		s.observer.OnConnected(descriptor)
	case protocol.ReadyToReceive:
		if ev.Value == nil {
			return
		}
		s.ready = protocol.DecodeReady(ev.Value)
		s.log.Debug("[BLE] ready flag", "ready", s.ready)
		s.observer.OnReadinessChanged(s.ready)
	}
}

func (s *Initiator) send(text string) {
	data, ok := protocol.EncodeText(text)
	if !ok {
		s.log.Debug("[BLE] dropping message that is not valid UTF-8")
		return
	}
	if s.conn == nil || s.State() != InitiatorReady {
		s.log.Debug("[BLE] not ready, message dropped", "state", s.State())
		return
	}
	c, ok := s.bindings.Lookup(protocol.Message)
	if !ok {
		s.log.Debug("[BLE] peer has no message characteristic, message dropped")
		return
	}
	if s.opts.EnforceReadiness && !s.ready {
		s.log.Debug("[BLE] peer busy, message dropped")
		return
	}
	if err := s.central.WriteValue(s.conn.peer, c, data); err != nil {
		s.log.Warn("[BLE] write message failed", "error", err)
	}
}

func (s *Initiator) disconnect() {
	if s.conn == nil {
		return
	}
	s.teardown(true)
}

// teardown releases the owned connection and clears every per-connection
// binding. The disconnect is surfaced only for a link that was established.
// It resumes scanning while the radio is available.
func (s *Initiator) teardown(cancel bool) {
	conn := s.conn
	s.conn = nil
	s.bindings.Reset()
	s.ready = false
	s.setState(InitiatorDisconnected)
	if conn != nil && conn.linked {
		s.observer.OnDisconnected()
	}

	if cancel && conn != nil {
		if err := s.central.CancelConnection(conn.peer); err != nil {
			s.log.Warn("[BLE] cancel connection failed", "peer", conn.peer, "error", err)
		}
	}
	if s.started && s.radio == RadioPoweredOn {
		s.startScanning()
	}
}

type nopInitiatorObserver struct{}

func (nopInitiatorObserver) OnConnected(string)      {}
func (nopInitiatorObserver) OnDisconnected()         {}
func (nopInitiatorObserver) OnReadinessChanged(bool) {}
