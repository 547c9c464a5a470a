// Package wire packs a single MIDI event into the 64-bit value exchanged with the host.
//
// Layout, least significant byte first:
//
//	bytes 0-3  endpoint id (uint32)
//	byte  4    status
//	byte  5    data[0]
//	byte  6    data[1]
//	byte  7    zero
//
// A zero word is also the "queue empty" sentinel of the polling surface, so a
// genuine event from endpoint 0 with status 0 cannot be told apart from it.
package wire

import "github.com/leandrodaf/midijack/sdk/contracts"

const (
	statusShift = 32
	data0Shift  = 40
	data1Shift  = 48
)

// Encode packs e. Every field is masked to its width before shifting.
func Encode(e contracts.Message) uint64 {
	w := uint64(uint32(e.Source))
	w |= (uint64(e.Status) & 0xFF) << statusShift
	w |= (uint64(e.Data[0]) & 0xFF) << data0Shift
	w |= (uint64(e.Data[1]) & 0xFF) << data1Shift
	return w
}

// Decode unpacks w. The top byte is ignored.
func Decode(w uint64) contracts.Message {
	return contracts.Message{
		Source: contracts.EndpointID(int32(uint32(w))),
		Status: byte(w >> statusShift),
		Data:   [2]byte{byte(w >> data0Shift), byte(w >> data1Shift)},
	}
}
