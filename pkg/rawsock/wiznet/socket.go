package wiznet

import (
	"errors"
	"fmt"

	"firestige.xyz/strix/pkg/eui"
	"firestige.xyz/strix/pkg/frame"
	"firestige.xyz/strix/pkg/rawsock"
)

// ErrDeviceNotReady is returned by Open when the controller does not
// acknowledge initialization.
var ErrDeviceNotReady = errors.New("wiznet: controller not ready")

// ErrSendInProgress is returned by StartSend while a previous transmit has
// not yet completed.
var ErrSendInProgress = errors.New("wiznet: transmit already in progress")

// ErrTxTimeout is returned by Send when the controller abandons the
// transmit after exhausting its retry timeout.
var ErrTxTimeout = errors.New("wiznet: transmit timed out")

// TxStatus is the result of polling an in-flight transmit.
type TxStatus int

const (
	// TxPending means the controller has neither confirmed nor timed out
	// the transmit yet.
	TxPending TxStatus = iota
	// TxDone means the frame left the wire (SEND_OK).
	TxDone
	// TxTimeout means the controller gave up on the transmit.
	TxTimeout
)

type txState int

const (
	txIdle txState = iota
	txWait
)

// Config parameterizes Open.
type Config struct {
	// MAC is the source hardware address programmed into the controller.
	MAC eui.EUI48

	// Ethertype is the MAC-RAW receive filter. Zero selects the AVTP
	// Ethertype 0x22F0.
	Ethertype uint16

	// Multicast is an optional group address recorded for upper-layer
	// filtering.
	Multicast eui.EUI48
}

// Socket is a rawsock.RawSocket over socket 0 of a W5100-class controller.
// It owns the socket exclusively; it is not safe for concurrent use.
type Socket struct {
	ctrl      Controller
	clock     rawsock.Clock
	mac       eui.EUI48
	ethertype uint16
	multicast eui.EUI48

	tx    txState
	stats rawsock.Stats
}

// Open resets the controller, programs the source MAC and opens socket 0 in
// MAC-RAW mode with the Ethertype filter. A nil clock selects the system
// clock.
func Open(ctrl Controller, clock rawsock.Clock, cfg Config) (*Socket, error) {
	if clock == nil {
		clock = rawsock.NewSystemClock()
	}
	ethertype := cfg.Ethertype
	if ethertype == 0 {
		ethertype = frame.EthertypeAVTP
	}

	if err := ctrl.Reset(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotReady, err)
	}
	if err := ctrl.SetSourceMAC(cfg.MAC); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotReady, err)
	}
	if err := ctrl.OpenMACRaw(ethertype); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotReady, err)
	}

	return &Socket{
		ctrl:      ctrl,
		clock:     clock,
		mac:       cfg.MAC,
		ethertype: ethertype,
		multicast: cfg.Multicast,
	}, nil
}

// RecvFrame polls the controller for a received frame. The receive ring
// stores each frame behind a two-octet big-endian length prefix that counts
// itself; the read pointer is always advanced by exactly that prefix so a
// frame the caller cannot take still leaves the ring in sync.
func (s *Socket) RecvFrame(f *frame.Buffer) bool {
	if s.ctrl.Interrupts()&IntRecv == 0 {
		return false
	}

	start := s.ctrl.RXReadPointer()

	var head [2]byte
	s.ctrl.ReadRX(start, head[:])
	prefix := int(head[0])<<8 | int(head[1])

	if prefix < 2 {
		// The prefix cannot even cover itself. Skip it and hope the
		// ring recovers; stalling here would wedge receive forever.
		s.stats.MalformedLength++
		s.ctrl.SetRXReadPointer(start + RingAddr(prefix))
		s.ctrl.Exec(CmdRecv)
		return false
	}

	dataLen := prefix - 2
	ok := dataLen > 0 && dataLen <= f.Cap()
	if ok {
		s.ctrl.ReadRX(start+2, f.Raw()[:dataLen])
		if err := f.SetLen(dataLen); err != nil {
			ok = false
		}
	}
	if !ok && dataLen > 0 {
		s.stats.ReceiveDropped++
	}

	s.ctrl.SetRXReadPointer(start + RingAddr(prefix))
	s.ctrl.Exec(CmdRecv)

	if ok {
		s.stats.FramesReceived++
	}
	return ok
}

// StartSend stages a transmit: destination register from the first six
// octets of f, then f and the gather buffers streamed into the TX buffer,
// then SEND_MAC. Poll completion with SendFramePoll. The frame must begin
// with the destination MAC.
func (s *Socket) StartSend(f *frame.Buffer, data1, data2 []byte) error {
	if s.tx != txIdle {
		return ErrSendInProgress
	}
	if f.Len() < frame.HeaderLen {
		return fmt.Errorf("wiznet: frame of %d octets has no ethernet header", f.Len())
	}

	s.ctrl.SetDestinationMAC(f.DA())
	s.ctrl.WriteTX(f.Bytes())
	if len(data1) > 0 {
		s.ctrl.WriteTX(data1)
	}
	if len(data2) > 0 {
		s.ctrl.WriteTX(data2)
	}
	s.ctrl.Exec(CmdSendMAC)
	s.tx = txWait
	return nil
}

// SendFramePoll advances the transmit state machine one step. It reports
// TxPending until the controller raises SEND_OK (TxDone) or TIMEOUT
// (TxTimeout); both terminal states clear the flags and return the socket
// to idle. Polling with no transmit in flight reports TxDone.
func (s *Socket) SendFramePoll() TxStatus {
	if s.tx == txIdle {
		return TxDone
	}

	ir := s.ctrl.Interrupts()
	switch {
	case ir&IntSendOK != 0:
		s.ctrl.ClearInterrupts(IntSendOK)
		s.tx = txIdle
		s.stats.FramesSent++
		return TxDone
	case ir&IntTimeout != 0:
		s.ctrl.ClearInterrupts(IntSendOK | IntTimeout)
		s.tx = txIdle
		s.stats.SendTimeouts++
		return TxTimeout
	}
	return TxPending
}

// Send transmits synchronously, busy-waiting on the controller until SEND_OK
// or TIMEOUT. The wait is bounded by the controller's own retry timeout
// configuration; no software timeout is layered on top. A controller timeout
// is reported as ErrTxTimeout.
func (s *Socket) Send(f *frame.Buffer, data1, data2 []byte) error {
	if err := s.StartSend(f, data1, data2); err != nil {
		return err
	}
	for {
		switch s.SendFramePoll() {
		case TxDone:
			return nil
		case TxTimeout:
			return ErrTxTimeout
		}
	}
}

// SendFrame is the boolean form of Send.
func (s *Socket) SendFrame(f *frame.Buffer, data1, data2 []byte) bool {
	return s.Send(f, data1, data2) == nil
}

// SendReplyFrame swaps the destination and source MAC fields of f and then
// transmits it, addressing the reply to the original sender.
func (s *Socket) SendReplyFrame(f *frame.Buffer, data1, data2 []byte) bool {
	f.SwapSourceDestination()
	return s.SendFrame(f, data1, data2)
}

// JoinMulticast records a multicast group address. The controller's MAC-RAW
// filter is Ethertype-only, so group matching stays with the caller; the
// call always succeeds.
func (s *Socket) JoinMulticast(mac eui.EUI48) bool {
	s.multicast = mac
	return true
}

// Multicast returns the recorded multicast group.
func (s *Socket) Multicast() eui.EUI48 { return s.multicast }

// MACAddress returns the bound source MAC.
func (s *Socket) MACAddress() eui.EUI48 { return s.mac }

// Ethertype returns the configured receive filter.
func (s *Socket) Ethertype() uint16 { return s.ethertype }

// LinkUp reads the PHY link state off the controller.
func (s *Socket) LinkUp() bool { return s.ctrl.LinkStatus() }

// TimeInMilliseconds returns the clock's monotonic millisecond counter.
func (s *Socket) TimeInMilliseconds() uint64 { return s.clock.Milliseconds() }

// Stats returns a snapshot of the socket counters.
func (s *Socket) Stats() rawsock.Stats { return s.stats }

// Close releases nothing on this controller class but satisfies
// rawsock.RawSocket.
func (s *Socket) Close() error { return nil }

var _ rawsock.RawSocket = (*Socket)(nil)
