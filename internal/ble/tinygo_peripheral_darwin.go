package ble

import "errors"

// ErrPeripheralUnsupported is returned on platforms where the BLE stack
// cannot act as a peripheral.
var ErrPeripheralUnsupported = errors.New("ble: peripheral role is not supported on this platform")

// TinyGoPeripheral is unavailable on macOS: tinygo-org/bluetooth has no
// CoreBluetooth peripheral manager.
type TinyGoPeripheral struct {
	Peripheral
}

// NewTinyGoPeripheral always fails on macOS.
func NewTinyGoPeripheral() (*TinyGoPeripheral, error) {
	return nil, ErrPeripheralUnsupported
}

// Enable always fails on macOS.
func (p *TinyGoPeripheral) Enable() error {
	return ErrPeripheralUnsupported
}
