//go:build darwin || windows

package ble

import "tinygo.org/x/bluetooth"

// writeCharacteristic performs an acknowledged write.
func writeCharacteristic(ch *bluetooth.DeviceCharacteristic, data []byte) error {
	_, err := ch.Write(data)
	return err
}
