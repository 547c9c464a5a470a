package contracts

// FrameSink receives raw bytes delivered by a native receive callback. The slice is only
// valid for the duration of the call.
type FrameSink func(p []byte)

// ReceiveSource is an opened port that delivers inbound bytes.
type ReceiveSource interface {
	Connect(sink FrameSink) // Starts delivering bytes to sink.
	Close() error           // Stops delivery and releases the port.
}

// SendHandle is an opened port that accepts outbound bytes.
type SendHandle interface {
	Send(b []byte, offset, length int) error // Writes b[offset:offset+length] to the port.
	Close() error                            // Releases the port.
}

// DeviceHandle is an opened device.
type DeviceHandle interface {
	OpenOutputPort(number int) (ReceiveSource, error)
	OpenInputPort(number int) (SendHandle, error)
	Close() error
}

// DeviceDescriptor describes a device known to the platform.
type DeviceDescriptor interface {
	ID() string        // Platform identity of the device, stable while it is attached.
	Name() string      // Display name.
	Ports() []PortInfo // All ports of the device.
}

// DeviceCallback is notified, on platform threads, when devices come and go.
type DeviceCallback interface {
	OnDeviceAttached(desc DeviceDescriptor)
	OnDeviceDetached(desc DeviceDescriptor)
}

// Platform is the native MIDI subsystem as seen by the bridge.
type Platform interface {
	EnumerateDevices() ([]DeviceDescriptor, error)
	// OpenDevice opens desc asynchronously. onOpened runs later on a platform
	// thread with the handle, or with nil when the device could not be opened.
	OpenDevice(desc DeviceDescriptor, onOpened func(DeviceHandle))
	SetDeviceCallback(cb DeviceCallback)
	Close() error
}
