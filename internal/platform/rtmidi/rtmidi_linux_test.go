//go:build linux && cgo
// +build linux,cgo

package rtmidi

import "testing"

func TestClientName(t *testing.T) {
	tests := []struct {
		port string
		want string
	}{
		{"Launchkey MK2:Launchkey MK2 MIDI 1 20:0", "Launchkey MK2"},
		{"Midi Through:Midi Through Port-0 14:0", "Midi Through"},
		{"NoClient", "NoClient"},
		{":odd", ":odd"},
	}
	for _, tt := range tests {
		if got := clientName(tt.port); got != tt.want {
			t.Errorf("clientName(%q) = %q, want %q", tt.port, got, tt.want)
		}
	}
}

func TestReceiveSourceForwardsToSink(t *testing.T) {
	rs := &receiveSource{}
	rs.handle([]byte{0x90, 0x40, 0x7F}, 0)

	var got []byte
	rs.Connect(func(p []byte) { got = append(got, p...) })
	rs.handle([]byte{0x90, 0x40, 0x7F}, 12)
	if string(got) != string([]byte{0x90, 0x40, 0x7F}) {
		t.Errorf("Expected forwarded bytes, got % X", got)
	}
}
