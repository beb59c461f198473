// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"beatpulse/internal/pulse"
)

/*
State packet layout (BigEndian):

	| Field     | Type    | Bytes | Description                      |
	|-----------|---------|-------|----------------------------------|
	| Sequence  | uint32  | 4     | Monotonically increasing         |
	| Timestamp | int64   | 8     | Nanoseconds since epoch          |
	| Level     | float32 | 4     | Normalized input level           |
	| BPM       | uint16  | 2     | Displayed tempo, 0 = none        |
	| Flags     | uint8   | 1     | bit0 = pulse active, bit1 = running |
*/
const (
	packetSize = 19

	flagPulse   = 1 << 0
	flagRunning = 1 << 1
)

// Packer implements transport.Transport by packing state snapshots into
// binary packets and handing them to a Sender. Not safe for concurrent
// Send; the broadcaster is the single caller.
type Packer struct {
	sender *Sender
	seq    uint32
	buf    *bytes.Buffer // Reused across packets
}

// NewPacker wraps a Sender.
func NewPacker(sender *Sender) *Packer {
	return &Packer{
		sender: sender,
		buf:    bytes.NewBuffer(make([]byte, 0, packetSize)),
	}
}

// Send packs one pulse.State and transmits it.
func (p *Packer) Send(data any) error {
	state, ok := data.(pulse.State)
	if !ok {
		return fmt.Errorf("udp: unsupported payload %T", data)
	}
	return p.sender.Send(p.pack(state, time.Now().UnixNano()))
}

// pack encodes one snapshot into the reusable packet buffer.
func (p *Packer) pack(state pulse.State, timestampNs int64) []byte {
	p.seq++
	p.buf.Reset()

	var flags uint8
	if state.PulseActive {
		flags |= flagPulse
	}
	if state.Running {
		flags |= flagRunning
	}

	binary.Write(p.buf, binary.BigEndian, p.seq)
	binary.Write(p.buf, binary.BigEndian, timestampNs)
	binary.Write(p.buf, binary.BigEndian, float32(state.Level))
	binary.Write(p.buf, binary.BigEndian, uint16(state.BPM))
	binary.Write(p.buf, binary.BigEndian, flags)

	return p.buf.Bytes()
}

// Close closes the underlying sender.
func (p *Packer) Close() error {
	return p.sender.Close()
}
