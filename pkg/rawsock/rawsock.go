// Package rawsock defines the link-layer transceiver abstraction used by the
// AVDECC stack: MAC-level Ethernet frames in and out, no IP processing.
// Backends live in the subpackages — wiznet for register-level MAC-RAW
// Ethernet controllers and afpacket for Linux hosts.
package rawsock

import (
	"time"

	"firestige.xyz/strix/pkg/eui"
	"firestige.xyz/strix/pkg/frame"
)

// RawSocket moves Ethernet frames between frame buffers and the wire.
// Implementations are single-owner: calls are never made concurrently and
// SendFrame must not be reentered.
type RawSocket interface {
	// RecvFrame polls for the next available frame. It returns false and
	// leaves f unchanged when nothing is pending; a frame too large for f
	// is discarded and also reported as false. Ethertype filtering is done
	// by the backend; multicast group matching is the caller's job.
	// Backends may return immediately on an empty queue, so a polling
	// caller must pace its own loop.
	RecvFrame(f *frame.Buffer) bool

	// SendFrame transmits one Ethernet frame assembled from f followed by
	// the optional gather buffers data1 and data2. The frame must begin
	// with the destination MAC (the standard Ethernet header layout);
	// backends read the destination from its first six octets. Blocks
	// until the transmit completes or the backend's own timeout fires,
	// returning false on timeout or device error.
	SendFrame(f *frame.Buffer, data1, data2 []byte) bool

	// SendReplyFrame is SendFrame after swapping the destination and
	// source MAC fields of f, addressing the frame to its originator.
	SendReplyFrame(f *frame.Buffer, data1, data2 []byte) bool

	// JoinMulticast records a multicast group for upper-layer filtering.
	// Backends do not program hardware filters; the return is always true.
	JoinMulticast(mac eui.EUI48) bool

	// Multicast returns the recorded multicast group, or the unspecified
	// address when none was joined.
	Multicast() eui.EUI48

	// MACAddress returns the bound source MAC.
	MACAddress() eui.EUI48

	// Ethertype returns the receive filter the socket was opened with,
	// which is also the Ethertype callers should stamp on frames they
	// build for SendFrame.
	Ethertype() uint16

	// LinkUp reports the current carrier state of the underlying port.
	LinkUp() bool

	// TimeInMilliseconds returns the backend clock's monotonic
	// millisecond counter.
	TimeInMilliseconds() uint64

	Close() error
}

// Clock is a monotonic millisecond time source. A 32-bit wraparound in the
// underlying counter is acceptable to callers.
type Clock interface {
	Milliseconds() uint64
}

// SystemClock is the default Clock, counting from process start.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock anchored at the current instant.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Milliseconds() uint64 {
	return uint64(time.Since(c.start).Milliseconds())
}

// Stats counts link-layer activity for a socket.
type Stats struct {
	FramesReceived  uint64
	FramesSent      uint64
	ReceiveDropped  uint64 // frames discarded because the caller's buffer was too small
	SendTimeouts    uint64
	MalformedLength uint64 // receive length prefixes shorter than their own two octets
}
