package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/chaz8081/blemsg/internal/ble/protocol"
)

// ResponderState is the lifecycle state of a Responder.
type ResponderState int32

const (
	ResponderIdle ResponderState = iota
	ResponderAdvertising
	ResponderServing
)

func (s ResponderState) String() string {
	switch s {
	case ResponderIdle:
		return "idle"
	case ResponderAdvertising:
		return "advertising"
	case ResponderServing:
		return "serving"
	default:
		return fmt.Sprintf("responder-state(%d)", int32(s))
	}
}

// ResponderObserver receives the messages a Responder accepts. It is called
// on the session goroutine and must not block.
type ResponderObserver interface {
	OnMessage(text string)
}

// Lifecycle is a source of foreground/background transitions of the
// hosting process. Observe registers fn and returns a function that
// deregisters it.
type Lifecycle interface {
	Observe(fn func(foreground bool)) (cancel func())
}

// ResponderOptions configures a Responder.
type ResponderOptions struct {
	Identifiers protocol.Identifiers
	// Descriptor is published in the DeviceInfo characteristic.
	Descriptor string
	// LocalName is the advertised local name.
	LocalName string
}

// DefaultResponderOptions returns options with the default identifiers.
func DefaultResponderOptions(descriptor string) ResponderOptions {
	return ResponderOptions{
		Identifiers: protocol.DefaultIdentifiers(),
		Descriptor:  descriptor,
		LocalName:   "blemsg",
	}
}

// Responder advertises the messaging service, answers reads of the device
// descriptor and flow-control flag, accepts message writes and broadcasts
// flag changes to subscribed centrals.
type Responder struct {
	peripheral Peripheral
	observer   ResponderObserver
	lifecycle  Lifecycle
	opts       ResponderOptions
	log        *slog.Logger
	queue      *queue[PeripheralEvent]

	state atomic.Int32

	// Owned by the session goroutine.
	radio    RadioState
	started  bool
	tree     *Tree
	centrals map[string]struct{}
}

type startResponder struct{}

type setReady struct {
	ready bool
}

type lifecycleChanged struct {
	foreground bool
}

func (startResponder) peripheralEvent()   {}
func (setReady) peripheralEvent()         {}
func (lifecycleChanged) peripheralEvent() {}

// NewResponder creates a Responder bound to peripheral. lifecycle may be
// nil; when set it is observed for as long as Run executes.
func NewResponder(peripheral Peripheral, observer ResponderObserver, lifecycle Lifecycle, opts ResponderOptions) *Responder {
	if observer == nil {
		observer = nopResponderObserver{}
	}
	s := &Responder{
		peripheral: peripheral,
		observer:   observer,
		lifecycle:  lifecycle,
		opts:       opts,
		log:        slog.With("role", "responder"),
		queue:      newQueue[PeripheralEvent](),
		centrals:   make(map[string]struct{}),
	}
	peripheral.SetEventHandler(func(ev PeripheralEvent) {
		if err := s.queue.post(ev); err != nil {
			s.log.Debug("[BLE] dropping transport event", "event", fmt.Sprintf("%T", ev), "error", err)
		}
	})
	return s
}

// Run processes events until ctx is cancelled. The lifecycle source is
// observed only while Run executes.
func (s *Responder) Run(ctx context.Context) error {
	if s.lifecycle != nil {
		cancel := s.lifecycle.Observe(func(foreground bool) {
			if err := s.queue.post(lifecycleChanged{foreground: foreground}); err != nil {
				s.log.Debug("[BLE] dropping lifecycle transition", "error", err)
			}
		})
		defer cancel()
	}
	return s.queue.run(ctx, s.handle)
}

// Start publishes the service and begins advertising once the radio is
// powered on.
func (s *Responder) Start() error {
	return s.queue.post(startResponder{})
}

// SetReady sets the flow-control flag and notifies subscribed centrals.
func (s *Responder) SetReady(ready bool) error {
	return s.queue.post(setReady{ready: ready})
}

// State returns the current lifecycle state. Safe for concurrent use.
func (s *Responder) State() ResponderState {
	return ResponderState(s.state.Load())
}

func (s *Responder) setState(st ResponderState) {
	prev := ResponderState(s.state.Swap(int32(st)))
	if prev != st {
		s.log.Debug("[BLE] state", "from", prev, "to", st)
	}
}

func (s *Responder) handle(ev PeripheralEvent) {
	switch ev := ev.(type) {
	case startResponder:
		s.started = true
		if s.radio == RadioPoweredOn {
			s.publish()
		} else {
			s.log.Info("[BLE] waiting for radio", "radio", s.radio)
		}
	case setReady:
		s.setReady(ev.ready)
	case lifecycleChanged:
		s.log.Info("[BLE] lifecycle", "foreground", ev.foreground)
		s.setReady(ev.foreground)
	case RadioStateChanged:
		s.radioChanged(ev.State)
	case ReadRequested:
		s.readRequested(ev.Request)
	case WriteRequested:
		for _, req := range ev.Requests {
			s.writeRequested(req)
		}
	case CentralConnected:
		s.centrals[ev.Central] = struct{}{}
		s.log.Info("[BLE] central connected", "central", ev.Central)
		if s.State() != ResponderIdle {
			s.setState(ResponderServing)
		}
	case CentralDisconnected:
		delete(s.centrals, ev.Central)
		s.log.Info("[BLE] central disconnected", "central", ev.Central)
		if len(s.centrals) == 0 && s.State() == ResponderServing {
			s.setState(ResponderAdvertising)
		}
	case CentralSubscribed:
		s.log.Info("[BLE] central subscribed", "central", ev.Central, "characteristic", ev.Characteristic)
	case CentralUnsubscribed:
		s.log.Info("[BLE] central unsubscribed", "central", ev.Central, "characteristic", ev.Characteristic)
	default:
		s.log.Debug("[BLE] unhandled event", "event", fmt.Sprintf("%T", ev))
	}
}

func (s *Responder) radioChanged(st RadioState) {
	s.radio = st
	switch st {
	case RadioPoweredOn:
		if s.started {
			s.publish()
		}
	case RadioPoweredOff:
		s.log.Warn("[BLE] radio powered off")
		if err := s.peripheral.StopAdvertising(); err != nil {
			s.log.Warn("[BLE] stop advertising failed", "error", err)
		}
		clear(s.centrals)
		s.setState(ResponderIdle)
	default:
		s.log.Warn("[BLE] unsupported radio state", "radio", st)
	}
}

// publish builds the tree on first use, advertises and signals ready.
func (s *Responder) publish() {
	if s.tree == nil {
		if err := s.buildTree(); err != nil {
			s.log.Error("[BLE] publish service failed", "error", err)
			return
		}
	}

	adv := Advertisement{
		LocalName:    s.opts.LocalName,
		ServiceUUIDs: []uuid.UUID{s.opts.Identifiers.Service},
	}
	if err := s.peripheral.StartAdvertising(adv); err != nil {
		s.log.Warn("[BLE] start advertising failed", "error", err)
	}
	if len(s.centrals) > 0 {
		s.setState(ResponderServing)
	} else {
		s.setState(ResponderAdvertising)
	}
	s.log.Info("[BLE] advertising", "service", s.opts.Identifiers.Service, "name", s.opts.LocalName)
	s.setReady(true)
}

// buildTree registers a fresh tree, replacing any earlier registration.
func (s *Responder) buildTree() error {
	tree := BuildTree(s.opts.Identifiers, s.opts.Descriptor)
	if err := publishTree(s.peripheral, tree); err != nil {
		return err
	}
	s.tree = tree
	return nil
}

func (s *Responder) setReady(ready bool) {
	c, ok := s.tree.Characteristic(protocol.ReadyToReceive)
	if !ok {
		return
	}
	value := protocol.EncodeReady(ready)
	if err := s.peripheral.UpdateValue(c, value); err != nil {
		s.log.Warn("[BLE] notify ready flag failed", "ready", ready, "error", err)
	}
	c.Value = value
	s.log.Debug("[BLE] ready flag", "ready", ready)
}

func (s *Responder) readRequested(req Request) {
	id, ok := s.opts.Identifiers.Resolve(req.Characteristic)
	switch {
	case ok && id == protocol.DeviceInfo:
		info, _ := protocol.EncodeText(s.opts.Descriptor)
		s.respond(req, ATTSuccess, info)
	case ok && id == protocol.ReadyToReceive:
		c, found := s.tree.Characteristic(protocol.ReadyToReceive)
		if !found {
			s.respond(req, ATTUnlikelyError, nil)
			return
		}
		s.respond(req, ATTSuccess, c.Value)
	default:
		s.respond(req, ATTReadNotPermitted, nil)
	}
}

func (s *Responder) writeRequested(req Request) {
	id, ok := s.opts.Identifiers.Resolve(req.Characteristic)
	if !ok || id != protocol.Message {
		s.log.Debug("[BLE] write to unknown characteristic", "characteristic", req.Characteristic)
		s.respond(req, ATTWriteNotPermitted, nil)
		return
	}
	s.handleMessage(req.Value)
	s.respond(req, ATTSuccess, nil)
}

// handleMessage asserts busy before surfacing the message. A malformed
// payload leaves the flag asserted.
func (s *Responder) handleMessage(data []byte) {
	s.setReady(false)

	text, ok := protocol.DecodeText(data)
	if !ok {
		s.log.Debug("[BLE] dropping malformed message", "len", len(data))
		return
	}
	s.log.Info("[BLE] message received", "len", len(data))
	s.observer.OnMessage(text)
}

func (s *Responder) respond(req Request, result ATTResult, value []byte) {
	if err := s.peripheral.Respond(req, result, value); err != nil {
		s.log.Warn("[BLE] respond failed", "request", req.ID, "result", result, "error", err)
	}
}

type nopResponderObserver struct{}

func (nopResponderObserver) OnMessage(string) {}
