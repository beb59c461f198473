// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"math"
	"net"
	"testing"
	"time"

	"beatpulse/internal/pulse"
)

func TestPackLayout(t *testing.T) {
	p := NewPacker(nil)
	state := pulse.State{
		PulseActive: true,
		Level:       0.42,
		BPM:         128,
		Running:     true,
	}
	const ts = int64(1700000000123456789)

	pkt := p.pack(state, ts)

	if len(pkt) != packetSize {
		t.Fatalf("packet length = %d, want %d", len(pkt), packetSize)
	}

	if seq := binary.BigEndian.Uint32(pkt[0:4]); seq != 1 {
		t.Errorf("sequence = %d, want 1", seq)
	}
	if got := int64(binary.BigEndian.Uint64(pkt[4:12])); got != ts {
		t.Errorf("timestamp = %d, want %d", got, ts)
	}
	level := math.Float32frombits(binary.BigEndian.Uint32(pkt[12:16]))
	if math.Abs(float64(level)-0.42) > 1e-6 {
		t.Errorf("level = %g, want 0.42", level)
	}
	if bpm := binary.BigEndian.Uint16(pkt[16:18]); bpm != 128 {
		t.Errorf("bpm = %d, want 128", bpm)
	}
	if flags := pkt[18]; flags != flagPulse|flagRunning {
		t.Errorf("flags = %08b, want %08b", flags, flagPulse|flagRunning)
	}
}

func TestPackFlags(t *testing.T) {
	tests := []struct {
		desc  string
		state pulse.State
		want  uint8
	}{
		{"idle", pulse.State{}, 0},
		{"pulse only", pulse.State{PulseActive: true}, flagPulse},
		{"running only", pulse.State{Running: true}, flagRunning},
		{"pulse and running", pulse.State{PulseActive: true, Running: true}, flagPulse | flagRunning},
	}

	for _, tt := range tests {
		p := NewPacker(nil)
		pkt := p.pack(tt.state, 0)
		if got := pkt[18]; got != tt.want {
			t.Errorf("%s: flags = %08b, want %08b", tt.desc, got, tt.want)
		}
	}
}

func TestPackSequenceIncrements(t *testing.T) {
	p := NewPacker(nil)
	for want := uint32(1); want <= 5; want++ {
		pkt := p.pack(pulse.State{}, 0)
		if seq := binary.BigEndian.Uint32(pkt[0:4]); seq != want {
			t.Fatalf("sequence = %d, want %d", seq, want)
		}
	}
}

func TestPackerRejectsUnknownPayload(t *testing.T) {
	p := NewPacker(nil)
	if err := p.Send("not a state"); err == nil {
		t.Error("Send accepted a non-state payload")
	}
}

func TestSenderRoundTrip(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()

	sender, err := NewSender(conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	defer sender.Close()

	packer := NewPacker(sender)
	if err := packer.Send(pulse.State{BPM: 120, Running: true}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 64)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if n != packetSize {
		t.Fatalf("received %d bytes, want %d", n, packetSize)
	}
	if bpm := binary.BigEndian.Uint16(buf[16:18]); bpm != 120 {
		t.Errorf("bpm = %d, want 120", bpm)
	}
	if buf[18] != flagRunning {
		t.Errorf("flags = %08b, want %08b", buf[18], flagRunning)
	}
}

func TestSenderCloseIsIdempotent(t *testing.T) {
	sender, err := NewSender("127.0.0.1:9090")
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	if err := sender.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := sender.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := sender.Send([]byte{1}); err == nil {
		t.Error("Send succeeded on a closed sender")
	}
}
