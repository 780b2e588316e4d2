//go:build !darwin && !windows

package ble

import "tinygo.org/x/bluetooth"

// writeCharacteristic writes data to ch. BlueZ picks the ATT operation from
// the characteristic properties when no write type is given, so a
// characteristic that only allows write still gets a write request.
func writeCharacteristic(ch *bluetooth.DeviceCharacteristic, data []byte) error {
	_, err := ch.WriteWithoutResponse(data)
	return err
}
