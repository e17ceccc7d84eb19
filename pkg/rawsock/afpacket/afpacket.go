// Package afpacket implements rawsock.RawSocket on Linux using an
// AF_PACKET_V3 TPacket ring for receive and a libpcap handle for transmit.
// It plays the role the MAC-RAW controller socket plays on a
// microcontroller, letting an AVDECC proxy server run on a host.
package afpacket

import (
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/pcap"

	"firestige.xyz/strix/pkg/eui"
	"firestige.xyz/strix/pkg/frame"
	"firestige.xyz/strix/pkg/rawsock"
)

const (
	defaultFrameSize   = 2048
	defaultBlockSize   = 4 * 1024 * 1024
	defaultNumBlocks   = 32
	defaultPollTimeout = time.Millisecond
)

// Config parameterizes Open.
type Config struct {
	// Interface is the network interface name, e.g. "eth0". Required.
	Interface string `mapstructure:"interface"`

	// Ethertype is the receive filter. Zero selects the AVTP Ethertype.
	Ethertype uint16 `mapstructure:"ethertype"`

	// Multicast is an optional group address recorded for upper-layer
	// filtering.
	Multicast string `mapstructure:"multicast"`

	// PollTimeout bounds how long a RecvFrame poll may sleep in the
	// kernel. Zero selects one millisecond.
	PollTimeout time.Duration `mapstructure:"poll_timeout"`

	// BlockSize and NumBlocks size the TPacket ring. Zero selects the
	// defaults.
	BlockSize int `mapstructure:"block_size"`
	NumBlocks int `mapstructure:"num_blocks"`
}

// Socket is a rawsock.RawSocket bound to a Linux network interface.
type Socket struct {
	recv      *afpacket.TPacket
	send      *pcap.Handle
	clock     rawsock.Clock
	iface     string
	mac       eui.EUI48
	ethertype uint16
	multicast eui.EUI48

	stats rawsock.Stats
}

// Open binds to the interface, installs an Ethertype BPF filter on the
// receive ring and opens the transmit handle.
func Open(cfg Config, clock rawsock.Clock) (*Socket, error) {
	if cfg.Interface == "" {
		return nil, fmt.Errorf("afpacket: interface is required")
	}
	if clock == nil {
		clock = rawsock.NewSystemClock()
	}
	ethertype := cfg.Ethertype
	if ethertype == 0 {
		ethertype = frame.EthertypeAVTP
	}
	pollTimeout := cfg.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	blockSize := cfg.BlockSize
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	numBlocks := cfg.NumBlocks
	if numBlocks <= 0 {
		numBlocks = defaultNumBlocks
	}

	iface, err := net.InterfaceByName(cfg.Interface)
	if err != nil {
		return nil, fmt.Errorf("afpacket: interface %s: %w", cfg.Interface, err)
	}
	var mac eui.EUI48
	copy(mac[:], iface.HardwareAddr)

	var multicast eui.EUI48
	if cfg.Multicast != "" {
		multicast, err = eui.ParseEUI48(cfg.Multicast)
		if err != nil {
			return nil, fmt.Errorf("afpacket: %w", err)
		}
	}

	tpacket, err := afpacket.NewTPacket(
		afpacket.OptInterface(iface.Name),
		afpacket.OptFrameSize(defaultFrameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(pollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("afpacket: create tpacket on %s: %w", cfg.Interface, err)
	}

	filter, err := EthertypeFilter(ethertype)
	if err != nil {
		tpacket.Close()
		return nil, fmt.Errorf("afpacket: assemble filter: %w", err)
	}
	if err := tpacket.SetBPF(filter); err != nil {
		tpacket.Close()
		return nil, fmt.Errorf("afpacket: set filter: %w", err)
	}

	sendHandle, err := pcap.OpenLive(cfg.Interface, frame.MaxFrameSize, false, pcap.BlockForever)
	if err != nil {
		tpacket.Close()
		return nil, fmt.Errorf("afpacket: open transmit handle on %s: %w", cfg.Interface, err)
	}

	return &Socket{
		recv:      tpacket,
		send:      sendHandle,
		clock:     clock,
		iface:     iface.Name,
		mac:       mac,
		ethertype: ethertype,
		multicast: multicast,
	}, nil
}

// RecvFrame polls the TPacket ring for the next filtered frame. The poll is
// bounded by the configured poll timeout, after which false is returned.
func (s *Socket) RecvFrame(f *frame.Buffer) bool {
	data, _, err := s.recv.ReadPacketData()
	if err != nil {
		// Poll timeout means no frame pending; anything else is
		// equally a "nothing received" for the caller.
		return false
	}
	if len(data) > f.Cap() {
		s.stats.ReceiveDropped++
		return false
	}
	copy(f.Raw(), data)
	if err := f.SetLen(len(data)); err != nil {
		s.stats.ReceiveDropped++
		return false
	}
	s.stats.FramesReceived++
	return true
}

// SendFrame concatenates f with the gather buffers and injects the frame.
// The frame must begin with the destination MAC.
func (s *Socket) SendFrame(f *frame.Buffer, data1, data2 []byte) bool {
	wire := make([]byte, 0, f.Len()+len(data1)+len(data2))
	wire = append(wire, f.Bytes()...)
	wire = append(wire, data1...)
	wire = append(wire, data2...)
	if err := s.send.WritePacketData(wire); err != nil {
		s.stats.SendTimeouts++
		return false
	}
	s.stats.FramesSent++
	return true
}

// SendReplyFrame swaps the destination and source MAC fields of f and
// transmits it.
func (s *Socket) SendReplyFrame(f *frame.Buffer, data1, data2 []byte) bool {
	f.SwapSourceDestination()
	return s.SendFrame(f, data1, data2)
}

// JoinMulticast records a multicast group for upper-layer filtering.
func (s *Socket) JoinMulticast(mac eui.EUI48) bool {
	s.multicast = mac
	return true
}

// Multicast returns the recorded multicast group.
func (s *Socket) Multicast() eui.EUI48 { return s.multicast }

// MACAddress returns the interface hardware address.
func (s *Socket) MACAddress() eui.EUI48 { return s.mac }

// Ethertype returns the receive filter the socket was opened with.
func (s *Socket) Ethertype() uint16 { return s.ethertype }

// LinkUp reports whether the interface currently has carrier.
func (s *Socket) LinkUp() bool {
	iface, err := net.InterfaceByName(s.iface)
	if err != nil {
		return false
	}
	return iface.Flags&net.FlagRunning != 0
}

// TimeInMilliseconds returns the clock's monotonic millisecond counter.
func (s *Socket) TimeInMilliseconds() uint64 { return s.clock.Milliseconds() }

// Stats returns a snapshot of the socket counters.
func (s *Socket) Stats() rawsock.Stats { return s.stats }

// Close releases the receive ring and the transmit handle.
func (s *Socket) Close() error {
	s.recv.Close()
	s.send.Close()
	return nil
}

var _ rawsock.RawSocket = (*Socket)(nil)
