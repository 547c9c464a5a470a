// Package platform holds pieces shared by the native MIDI adapters: endpoint
// identifier derivation, a static device descriptor and the hot-plug scanner
// used where the operating system offers no attach notifications.
package platform

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/leandrodaf/midijack/sdk/contracts"
)

// PortID derives an endpoint identifier from port metadata. The same device,
// port number, direction and name always hash to the same value.
func PortID(device string, number int, dir contracts.Direction, name string) contracts.EndpointID {
	d := xxhash.New()
	_, _ = d.WriteString(device)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.Itoa(number))
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(dir.String())
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(name)
	sum := d.Sum64()
	return contracts.EndpointID(int32(uint32(sum ^ sum>>32)))
}

// Device is a plain contracts.DeviceDescriptor.
type Device struct {
	DeviceID   string
	DeviceName string
	PortList   []contracts.PortInfo
}

func (d *Device) ID() string                  { return d.DeviceID }
func (d *Device) Name() string                { return d.DeviceName }
func (d *Device) Ports() []contracts.PortInfo { return d.PortList }

// AddPort appends a port, deriving its identifier from the device and port metadata.
func (d *Device) AddPort(number int, dir contracts.Direction, name string) contracts.PortInfo {
	p := contracts.PortInfo{
		Number:    number,
		Name:      name,
		Direction: dir,
		ID:        PortID(d.DeviceID, number, dir, name),
	}
	d.PortList = append(d.PortList, p)
	return p
}

// fingerprint identifies the port layout of a device; a change means the
// device has to be detached and attached again.
func fingerprint(d contracts.DeviceDescriptor) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(d.ID())
	for _, p := range d.Ports() {
		_, _ = h.WriteString(p.String())
	}
	return h.Sum64()
}
