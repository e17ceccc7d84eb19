// Package wiznet implements rawsock.RawSocket over a W5100-class Ethernet
// controller driven through its socket-0 register file in MAC-RAW mode.
// The register transport (SPI or a memory-mapped bus) is supplied by the
// integrator as a Controller.
package wiznet

// Socket interrupt register bits (Sn_IR).
const (
	IntConnect    uint8 = 0x01
	IntDisconnect uint8 = 0x02
	IntRecv       uint8 = 0x04
	IntTimeout    uint8 = 0x08
	IntSendOK     uint8 = 0x10
)

// Command is a socket command register value (Sn_CR).
type Command uint8

const (
	// CmdRecv tells the controller the host consumed receive-ring data up
	// to the updated read pointer.
	CmdRecv Command = 0x40

	// CmdSendMAC transmits the staged TX buffer without ARP, using the
	// destination hardware address register.
	CmdSendMAC Command = 0x21
)

// RingAddr is an opaque offset into the controller's receive ring. Only the
// controller driver interprets it; the socket code just adds octet counts.
type RingAddr uint16

// Controller is the register-level contract a W5100-class device driver must
// provide for socket 0. All methods are free to block on the underlying bus;
// none may be called concurrently.
type Controller interface {
	// Reset reinitializes the chip. Returns an error when the device does
	// not come up.
	Reset() error

	// SetSourceMAC programs the source hardware address register (SHAR).
	SetSourceMAC(mac [6]byte) error

	// OpenMACRaw opens socket 0 in MAC-RAW mode with the given Ethertype
	// filter.
	OpenMACRaw(ethertype uint16) error

	// Interrupts reads the socket interrupt register (Sn_IR).
	Interrupts() uint8

	// ClearInterrupts writes the given bit mask to Sn_IR, clearing those
	// flags.
	ClearInterrupts(mask uint8)

	// RXReadPointer reads the receive-ring read pointer (Sn_RX_RD).
	RXReadPointer() RingAddr

	// SetRXReadPointer writes the receive-ring read pointer.
	SetRXReadPointer(addr RingAddr)

	// ReadRX copies len(dst) octets out of the receive ring starting at
	// addr. The driver owns the ring-mask arithmetic.
	ReadRX(addr RingAddr, dst []byte)

	// WriteTX streams src into the transmit buffer at the current write
	// pointer and advances the pointer, so consecutive calls concatenate.
	WriteTX(src []byte)

	// SetDestinationMAC programs the destination hardware address
	// register (Sn_DHAR) used by CmdSendMAC.
	SetDestinationMAC(mac [6]byte)

	// LinkStatus reads the PHY link bit. Drivers for chips without a
	// readable PHY status register report true.
	LinkStatus() bool

	// Exec writes the socket command register (Sn_CR).
	Exec(cmd Command)
}
