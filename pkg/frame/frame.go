// Package frame provides the fixed-capacity Ethernet frame buffer shared by
// the raw socket backends and the proxy protocol encapsulation.
package frame

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/strix/pkg/eui"
)

const (
	// HeaderLen is the length of the untagged Ethernet header: destination
	// MAC, source MAC and Ethertype.
	HeaderLen = 14

	// MaxFrameSize is the largest Ethernet frame carried by the stack,
	// including a single VLAN tag.
	MaxFrameSize = 1522

	// EthertypeAVTP is the IEEE-assigned Ethertype for AVTP, the transport
	// under AVDECC (0x22F0).
	EthertypeAVTP = 0x22F0
)

// Buffer is a fixed-capacity Ethernet frame. The backing array is allocated
// once; Len is the authoritative wire length and octets beyond it are
// unspecified. The first 14 octets are interpreted as the Ethernet header by
// the MAC accessors.
type Buffer struct {
	buf [MaxFrameSize]byte
	n   int
}

// NewBuffer returns an empty frame buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Len returns the current wire length.
func (b *Buffer) Len() int { return b.n }

// Cap returns the fixed capacity of the backing array.
func (b *Buffer) Cap() int { return len(b.buf) }

// Bytes returns the valid portion of the frame. The slice aliases the
// buffer's backing array.
func (b *Buffer) Bytes() []byte { return b.buf[:b.n] }

// Payload returns the octets after the Ethernet header, or nil when the
// frame is shorter than a header.
func (b *Buffer) Payload() []byte {
	if b.n < HeaderLen {
		return nil
	}
	return b.buf[HeaderLen:b.n]
}

// SetLen sets the wire length directly, for callers that filled the backing
// array through Raw.
func (b *Buffer) SetLen(n int) error {
	if n < 0 || n > len(b.buf) {
		return fmt.Errorf("frame length %d out of range [0, %d]", n, len(b.buf))
	}
	b.n = n
	return nil
}

// Raw exposes the whole backing array for receive paths that fill the frame
// in place before calling SetLen.
func (b *Buffer) Raw() []byte { return b.buf[:] }

// Clear resets the wire length to zero.
func (b *Buffer) Clear() { b.n = 0 }

// Append copies p onto the end of the frame. It fails when the frame would
// exceed its capacity, leaving the buffer unchanged.
func (b *Buffer) Append(p []byte) error {
	if b.n+len(p) > len(b.buf) {
		return fmt.Errorf("append of %d octets overflows frame (%d/%d used)", len(p), b.n, len(b.buf))
	}
	copy(b.buf[b.n:], p)
	b.n += len(p)
	return nil
}

// AppendOctet copies a single octet onto the end of the frame.
func (b *Buffer) AppendOctet(o byte) error {
	if b.n+1 > len(b.buf) {
		return fmt.Errorf("append overflows frame (%d/%d used)", b.n, len(b.buf))
	}
	b.buf[b.n] = o
	b.n++
	return nil
}

// SetHeader writes the Ethernet header at the start of the frame and resets
// the length to HeaderLen, discarding any previous payload.
func (b *Buffer) SetHeader(dst, src eui.EUI48, ethertype uint16) {
	copy(b.buf[0:6], dst[:])
	copy(b.buf[6:12], src[:])
	binary.BigEndian.PutUint16(b.buf[12:14], ethertype)
	b.n = HeaderLen
}

// DA returns the destination MAC from the frame header.
func (b *Buffer) DA() eui.EUI48 {
	var e eui.EUI48
	copy(e[:], b.buf[0:6])
	return e
}

// SA returns the source MAC from the frame header.
func (b *Buffer) SA() eui.EUI48 {
	var e eui.EUI48
	copy(e[:], b.buf[6:12])
	return e
}

// SetDA overwrites the destination MAC in the frame header.
func (b *Buffer) SetDA(e eui.EUI48) { copy(b.buf[0:6], e[:]) }

// SetSA overwrites the source MAC in the frame header.
func (b *Buffer) SetSA(e eui.EUI48) { copy(b.buf[6:12], e[:]) }

// Ethertype returns the Ethertype from the frame header.
func (b *Buffer) Ethertype() uint16 {
	return binary.BigEndian.Uint16(b.buf[12:14])
}

// SwapSourceDestination exchanges the destination and source MAC fields so
// the frame can be sent back to its originator.
func (b *Buffer) SwapSourceDestination() {
	for i := 0; i < 6; i++ {
		b.buf[i], b.buf[i+6] = b.buf[i+6], b.buf[i]
	}
}
