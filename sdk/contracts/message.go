package contracts

import "fmt"

// Message is one MIDI message together with the endpoint it came from or goes to.
// Only short messages are represented: a status byte and up to two data bytes.
type Message struct {
	Source EndpointID
	Status byte
	Data   [2]byte
}

// ShortMessage returns the 3-byte form written to a send port. Unused data
// bytes are sent as they are, so callers zero-fill them.
func (m Message) ShortMessage() [3]byte {
	return [3]byte{m.Status, m.Data[0], m.Data[1]}
}

func (m Message) String() string {
	return fmt.Sprintf("(%X) %02X %02X %02X", uint32(m.Source), m.Status, m.Data[0], m.Data[1])
}
