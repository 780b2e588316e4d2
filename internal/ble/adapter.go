// Package ble implements the two roles of the blemsg messaging protocol over
// a BLE GATT link: the Initiator, which scans for and connects to a
// Responder, and the Responder, which advertises the messaging service and
// serves its characteristics. Both roles are event-driven state machines
// reacting to an asynchronous transport.
package ble

import (
	"fmt"

	"github.com/google/uuid"
)

// RadioState mirrors the power/availability states reported by BLE stacks.
type RadioState int

const (
	RadioUnknown RadioState = iota
	RadioResetting
	RadioUnsupported
	RadioUnauthorized
	RadioPoweredOff
	RadioPoweredOn
)

func (s RadioState) String() string {
	switch s {
	case RadioUnknown:
		return "unknown"
	case RadioResetting:
		return "resetting"
	case RadioUnsupported:
		return "unsupported"
	case RadioUnauthorized:
		return "unauthorized"
	case RadioPoweredOff:
		return "poweredOff"
	case RadioPoweredOn:
		return "poweredOn"
	default:
		return fmt.Sprintf("radio(%d)", int(s))
	}
}

// Peer is a remote advertiser seen by a scan. ID is assigned by the
// transport and is unique per sighting, so callbacks that reference an
// earlier connection to the same device never match a newer one.
type Peer struct {
	ID      uint64
	Address string
	Name    string
	RSSI    int
}

func (p Peer) String() string {
	if p.Name != "" {
		return fmt.Sprintf("%s (%s)", p.Name, p.Address)
	}
	return p.Address
}

// RemoteService is a service discovered on a connected peer.
// Handle is opaque to sessions; only the transport that produced it uses it.
type RemoteService struct {
	UUID   uuid.UUID
	Handle any
}

// RemoteCharacteristic is a characteristic discovered on a connected peer.
type RemoteCharacteristic struct {
	UUID   uuid.UUID
	Handle any
}

// ScanOptions configures a scan request.
type ScanOptions struct {
	// AllowDuplicates reports every advertisement instead of only the
	// first sighting of each peer.
	AllowDuplicates bool
}

// Central is the initiator side of the radio. Every method only issues a
// request; outcomes arrive later as CentralEvents.
type Central interface {
	// SetEventHandler registers the function every event is delivered to.
	SetEventHandler(handler func(CentralEvent))
	// Scan looks for advertisers announcing the given service identifier.
	Scan(service uuid.UUID, opts ScanOptions) error
	StopScan() error
	Connect(peer Peer) error
	// CancelConnection tears down a pending or established connection.
	CancelConnection(peer Peer) error
	// DiscoverServices discovers the services in filter (all when empty).
	DiscoverServices(peer Peer, filter []uuid.UUID) error
	// DiscoverCharacteristics discovers every characteristic of service.
	DiscoverCharacteristics(peer Peer, service RemoteService) error
	ReadValue(peer Peer, c RemoteCharacteristic) error
	SetNotify(peer Peer, c RemoteCharacteristic, enabled bool) error
	// WriteValue writes with acknowledgment.
	WriteValue(peer Peer, c RemoteCharacteristic, data []byte) error
}

// CentralEvent is a callback delivered by a Central.
type CentralEvent interface {
	centralEvent()
}

// RadioStateChanged reports a change of the radio's availability. It is
// delivered by both Central and Peripheral transports.
type RadioStateChanged struct {
	State RadioState
}

type PeerDiscovered struct {
	Peer Peer
}

type PeerConnected struct {
	Peer Peer
}

type ConnectFailed struct {
	Peer Peer
	Err  error
}

// PeerDisconnected reports link loss. Err is nil for a clean disconnect.
type PeerDisconnected struct {
	Peer Peer
	Err  error
}

type ServicesDiscovered struct {
	Peer     Peer
	Services []RemoteService
	Err      error
}

type CharacteristicsDiscovered struct {
	Peer            Peer
	Service         RemoteService
	Characteristics []RemoteCharacteristic
	Err             error
}

// ValueUpdated carries both read completions and notifications.
type ValueUpdated struct {
	Peer           Peer
	Characteristic RemoteCharacteristic
	Value          []byte
	Err            error
}

type WriteCompleted struct {
	Peer           Peer
	Characteristic RemoteCharacteristic
	Err            error
}

// ServicesInvalidated reports services that disappeared from a connected
// peer, typically because the responding application went away.
type ServicesInvalidated struct {
	Peer     Peer
	Services []uuid.UUID
}

func (RadioStateChanged) centralEvent()         {}
func (PeerDiscovered) centralEvent()            {}
func (PeerConnected) centralEvent()             {}
func (ConnectFailed) centralEvent()             {}
func (PeerDisconnected) centralEvent()          {}
func (ServicesDiscovered) centralEvent()        {}
func (CharacteristicsDiscovered) centralEvent() {}
func (ValueUpdated) centralEvent()              {}
func (WriteCompleted) centralEvent()            {}
func (ServicesInvalidated) centralEvent()       {}

// Properties is the bitmask of operations a local characteristic supports.
type Properties int

const (
	PropertyRead Properties = 1 << iota
	PropertyWrite
	PropertyNotify
)

// Permissions is the bitmask of access a local characteristic grants.
type Permissions int

const (
	PermissionReadable Permissions = 1 << iota
	PermissionWriteable
)

// LocalCharacteristic is a characteristic published by the Responder.
type LocalCharacteristic struct {
	UUID        uuid.UUID
	Properties  Properties
	Permissions Permissions
	Value       []byte
}

// LocalService is a service published by the Responder.
type LocalService struct {
	UUID            uuid.UUID
	Primary         bool
	Characteristics []*LocalCharacteristic
}

// Advertisement is the payload the Responder broadcasts.
type Advertisement struct {
	LocalName    string
	ServiceUUIDs []uuid.UUID
}

// ATTResult is the status returned to a central for a read or write request.
type ATTResult byte

const (
	ATTSuccess           ATTResult = 0x00
	ATTReadNotPermitted  ATTResult = 0x02
	ATTWriteNotPermitted ATTResult = 0x03
	ATTUnlikelyError     ATTResult = 0x0E
)

func (r ATTResult) String() string {
	switch r {
	case ATTSuccess:
		return "success"
	case ATTReadNotPermitted:
		return "readNotPermitted"
	case ATTWriteNotPermitted:
		return "writeNotPermitted"
	case ATTUnlikelyError:
		return "unlikelyError"
	default:
		return fmt.Sprintf("att(0x%02x)", byte(r))
	}
}

// Request is a read or write request from a central.
type Request struct {
	ID             uint64
	Central        string
	Characteristic uuid.UUID
	Offset         int
	Value          []byte // write payload
}

// Peripheral is the responder side of the radio.
type Peripheral interface {
	SetEventHandler(handler func(PeripheralEvent))
	RemoveAllServices() error
	AddService(service *LocalService) error
	StartAdvertising(adv Advertisement) error
	StopAdvertising() error
	// UpdateValue pushes value to every central subscribed to c.
	UpdateValue(c *LocalCharacteristic, value []byte) error
	// Respond answers a request; value is the read payload, if any.
	Respond(req Request, result ATTResult, value []byte) error
}

// PeripheralEvent is a callback delivered by a Peripheral.
type PeripheralEvent interface {
	peripheralEvent()
}

type ReadRequested struct {
	Request Request
}

// WriteRequested carries every write the stack batched together.
type WriteRequested struct {
	Requests []Request
}

type CentralConnected struct {
	Central string
}

type CentralDisconnected struct {
	Central string
}

type CentralSubscribed struct {
	Central        string
	Characteristic uuid.UUID
}

type CentralUnsubscribed struct {
	Central        string
	Characteristic uuid.UUID
}

func (RadioStateChanged) peripheralEvent()   {}
func (ReadRequested) peripheralEvent()       {}
func (WriteRequested) peripheralEvent()      {}
func (CentralConnected) peripheralEvent()    {}
func (CentralDisconnected) peripheralEvent() {}
func (CentralSubscribed) peripheralEvent()   {}
func (CentralUnsubscribed) peripheralEvent() {}
