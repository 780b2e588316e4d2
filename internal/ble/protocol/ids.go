package protocol

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Characteristic is the logical identity of one of the three characteristics
// of the messaging service.
type Characteristic int

const (
	// DeviceInfo is the read-only device descriptor.
	DeviceInfo Characteristic = iota
	// Message is the write-only message inbox.
	Message
	// ReadyToReceive is the read+notify flow-control flag.
	ReadyToReceive
)

// Characteristics lists every logical identity in declaration order.
var Characteristics = []Characteristic{DeviceInfo, Message, ReadyToReceive}

func (c Characteristic) String() string {
	switch c {
	case DeviceInfo:
		return "device-info"
	case Message:
		return "message"
	case ReadyToReceive:
		return "ready-to-receive"
	default:
		return fmt.Sprintf("characteristic(%d)", int(c))
	}
}

// Default identifiers of the messaging service and its characteristics.
const (
	DefaultServiceUUID        = "92ec9b0c-dc90-4fcb-8964-ad53c740e34e"
	DefaultDeviceInfoUUID     = "8f7adfb1-e65f-4b0d-997f-480bc1d9e621"
	DefaultMessageUUID        = "8385b969-33ef-403e-ba17-ed86d0f8ff9c"
	DefaultReadyToReceiveUUID = "136dc021-86fa-4096-bdc5-e36544166249"
)

// Identifiers holds the 128-bit identifiers a deployment agrees on. Both
// peers must use the same values.
type Identifiers struct {
	Service        uuid.UUID
	DeviceInfo     uuid.UUID
	Message        uuid.UUID
	ReadyToReceive uuid.UUID
}

// DefaultIdentifiers returns the identifiers used when none are configured.
func DefaultIdentifiers() Identifiers {
	return Identifiers{
		Service:        uuid.MustParse(DefaultServiceUUID),
		DeviceInfo:     uuid.MustParse(DefaultDeviceInfoUUID),
		Message:        uuid.MustParse(DefaultMessageUUID),
		ReadyToReceive: uuid.MustParse(DefaultReadyToReceiveUUID),
	}
}

// Validate checks that every identifier is set and that no two collide.
func (ids Identifiers) Validate() error {
	all := []struct {
		name string
		id   uuid.UUID
	}{
		{"service", ids.Service},
		{DeviceInfo.String(), ids.DeviceInfo},
		{Message.String(), ids.Message},
		{ReadyToReceive.String(), ids.ReadyToReceive},
	}
	seen := make(map[uuid.UUID]string, len(all))
	for _, e := range all {
		if e.id == uuid.Nil {
			return fmt.Errorf("protocol: %s identifier must not be nil", e.name)
		}
		if prev, ok := seen[e.id]; ok {
			return fmt.Errorf("protocol: %s and %s share identifier %s", prev, e.name, e.id)
		}
		seen[e.id] = e.name
	}
	return nil
}

// ErrUnknownCharacteristic is returned by UUID for values outside the enum.
var ErrUnknownCharacteristic = errors.New("protocol: unknown characteristic")

// UUID returns the identifier assigned to c.
func (ids Identifiers) UUID(c Characteristic) (uuid.UUID, error) {
	switch c {
	case DeviceInfo:
		return ids.DeviceInfo, nil
	case Message:
		return ids.Message, nil
	case ReadyToReceive:
		return ids.ReadyToReceive, nil
	default:
		return uuid.Nil, ErrUnknownCharacteristic
	}
}

// Resolve maps a transport-level identifier to its logical identity.
// Unrecognized identifiers (including the service identifier) report false.
func (ids Identifiers) Resolve(id uuid.UUID) (Characteristic, bool) {
	switch id {
	case uuid.Nil:
		return 0, false
	case ids.DeviceInfo:
		return DeviceInfo, true
	case ids.Message:
		return Message, true
	case ids.ReadyToReceive:
		return ReadyToReceive, true
	default:
		return 0, false
	}
}
