// Package protocol implements the wire encodings shared by both roles of the
// blemsg BLE protocol: the identifiers of the messaging service, the logical
// characteristic identities, the one-byte flow-control flag and the UTF-8
// text payloads.
package protocol

import "unicode/utf8"

// Flow-control wire values. Any byte other than ReadyByte means not ready.
const (
	NotReadyByte byte = 0x00
	ReadyByte    byte = 0x01
)

// EncodeReady encodes the flow-control flag as its single-byte wire value.
func EncodeReady(ready bool) []byte {
	if ready {
		return []byte{ReadyByte}
	}
	return []byte{NotReadyByte}
}

// DecodeReady decodes a flow-control value. Only the first byte is
// significant; empty input decodes as not ready.
func DecodeReady(data []byte) bool {
	return len(data) > 0 && data[0] == ReadyByte
}

// EncodeText returns the UTF-8 payload for text, no length prefix.
// It reports false if text is not valid UTF-8.
func EncodeText(text string) ([]byte, bool) {
	if !utf8.ValidString(text) {
		return nil, false
	}
	return []byte(text), true
}

// DecodeText decodes a whole characteristic value as UTF-8 text.
// A nil value (no value delivered) and malformed UTF-8 both report false.
func DecodeText(data []byte) (string, bool) {
	if data == nil || !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}
