package contracts

import "fmt"

// EndpointID identifies one directional port. It is derived from platform port metadata,
// is stable while the physical connection lasts and must be treated as opaque.
type EndpointID int32

// Direction tells which way MIDI data flows through a port, seen from the device.
type Direction int

const (
	// Output ports send data out of the device into this process.
	Output Direction = iota
	// Input ports accept data written by this process.
	Input
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// PortInfo describes one port of a device as reported by the platform.
type PortInfo struct {
	Number    int        // Port number within the device.
	Name      string     // Display name of the port.
	Direction Direction  // Data direction.
	ID        EndpointID // Stable identifier derived from the port metadata.
}

func (p PortInfo) String() string {
	return fmt.Sprintf("%s #%d %q (%d)", p.Direction, p.Number, p.Name, p.ID)
}

// Endpoint is a snapshot of a registered port.
type Endpoint struct {
	ID        EndpointID
	Name      string
	Direction Direction
}
