package protocol

import (
	"bytes"
	"testing"
)

func TestEncodeReady(t *testing.T) {
	if got := EncodeReady(true); !bytes.Equal(got, []byte{0x01}) {
		t.Errorf("EncodeReady(true) = %x, want 01", got)
	}
	if got := EncodeReady(false); !bytes.Equal(got, []byte{0x00}) {
		t.Errorf("EncodeReady(false) = %x, want 00", got)
	}
}

func TestDecodeReady(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"nil", nil, false},
		{"empty", []byte{}, false},
		{"ready", []byte{0x01}, true},
		{"not ready", []byte{0x00}, false},
		{"ready with trailing bytes", []byte{0x01, 0x00, 0xFF}, true},
		{"two", []byte{0x02}, false},
		{"all bits", []byte{0xFF}, false},
		{"ready in second byte only", []byte{0x00, 0x01}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeReady(tt.data); got != tt.want {
				t.Errorf("DecodeReady(%x) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
}

func TestDecodeReadyEveryFirstByte(t *testing.T) {
	for b := 0; b < 256; b++ {
		want := b == 0x01
		if got := DecodeReady([]byte{byte(b), 0x01}); got != want {
			t.Errorf("DecodeReady(%02x 01) = %v, want %v", b, got, want)
		}
	}
}

func TestReadyRoundTrip(t *testing.T) {
	for _, ready := range []bool{true, false} {
		if got := DecodeReady(EncodeReady(ready)); got != ready {
			t.Errorf("DecodeReady(EncodeReady(%v)) = %v", ready, got)
		}
	}
}

func TestEncodeText(t *testing.T) {
	got, ok := EncodeText("hello")
	if !ok {
		t.Fatal("EncodeText(\"hello\") reported failure")
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Errorf("EncodeText(\"hello\") = %x", got)
	}

	// Multi-byte runes are carried as-is, no length prefix.
	got, ok = EncodeText("привет")
	if !ok || !bytes.Equal(got, []byte("привет")) {
		t.Errorf("EncodeText(\"привет\") = %x, %v", got, ok)
	}

	if _, ok := EncodeText(string([]byte{0xff, 0xfe})); ok {
		t.Error("EncodeText() should fail for invalid UTF-8")
	}
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		want   string
		wantOK bool
	}{
		{"nil value", nil, "", false},
		{"empty value", []byte{}, "", true},
		{"ascii", []byte("Pixel-7"), "Pixel-7", true},
		{"multi-byte", []byte("héllo"), "héllo", true},
		{"invalid start byte", []byte{0xff}, "", false},
		{"truncated rune", []byte{0xe2, 0x82}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DecodeText(tt.data)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("DecodeText(%x) = %q, %v, want %q, %v", tt.data, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
