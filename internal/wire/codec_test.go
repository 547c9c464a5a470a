package wire

import (
	"testing"

	"github.com/leandrodaf/midijack/sdk/contracts"
)

func TestEncodeLayout(t *testing.T) {
	e := contracts.Message{Source: 0x01020304, Status: 0x90, Data: [2]byte{0x40, 0x7F}}
	want := uint64(0x007F409001020304)
	if got := Encode(e); got != want {
		t.Errorf("Expected 0x%016X, got 0x%016X", want, got)
	}
}

func TestEncodeHighBitsDoNotBleed(t *testing.T) {
	e := contracts.Message{Source: -1, Status: 0xFF, Data: [2]byte{0x80, 0xFF}}
	w := Encode(e)
	if w>>56 != 0 {
		t.Errorf("Expected zero top byte, got 0x%02X", w>>56)
	}
	if uint32(w) != 0xFFFFFFFF {
		t.Errorf("Expected id bits 0xFFFFFFFF, got 0x%08X", uint32(w))
	}
	if byte(w>>40) != 0x80 {
		t.Errorf("Expected data[0] 0x80, got 0x%02X", byte(w>>40))
	}
}

func TestRoundTrip(t *testing.T) {
	ids := []uint32{0, 1, 0x7F, 0x80, 0xFF, 0x8000, 0x7FFFFFFF, 0x80000000, 0xDEADBEEF, 0xFFFFFFFF}
	bytes := []byte{0x00, 0x01, 0x7F, 0x80, 0xF0, 0xFF}

	for _, id := range ids {
		for _, status := range bytes {
			for _, d0 := range bytes {
				for _, d1 := range bytes {
					in := contracts.Message{Source: contracts.EndpointID(int32(id)), Status: status, Data: [2]byte{d0, d1}}
					out := Decode(Encode(in))
					if out != in {
						t.Fatalf("Round trip mismatch: in %v, out %v", in, out)
					}
				}
			}
		}
	}
}

func TestDecodeIgnoresTopByte(t *testing.T) {
	e := Decode(0xAB7F409000000005)
	want := contracts.Message{Source: 5, Status: 0x90, Data: [2]byte{0x40, 0x7F}}
	if e != want {
		t.Errorf("Expected %v, got %v", want, e)
	}
}

func TestShortMessage(t *testing.T) {
	msg := Decode(0x00003CC000000007).ShortMessage()
	if msg != [3]byte{0xC0, 0x3C, 0x00} {
		t.Errorf("Expected C0 3C 00, got % X", msg[:])
	}
}
