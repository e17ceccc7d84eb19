package wiznet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"firestige.xyz/strix/pkg/eui"
	"firestige.xyz/strix/pkg/frame"
)

const ringSize = 8192

// mockController emulates the socket-0 register file of a W5100-class chip:
// a receive ring with two-octet length prefixes, a streaming TX buffer and
// the interrupt/command registers.
type mockController struct {
	resetErr error

	sourceMAC [6]byte
	ethertype uint16
	opened    bool

	ring     [ringSize]byte
	readPtr  RingAddr
	writePtr RingAddr
	unread   int

	destMAC  [6]byte
	txData   []byte
	sent     [][]byte
	txResult uint8 // interrupt bits raised after txDelay polls
	txDelay  int

	interrupts uint8
	commands   []Command
	linkDown   bool
}

func (m *mockController) Reset() error { return m.resetErr }

func (m *mockController) SetSourceMAC(mac [6]byte) error {
	m.sourceMAC = mac
	return nil
}

func (m *mockController) OpenMACRaw(ethertype uint16) error {
	m.ethertype = ethertype
	m.opened = true
	return nil
}

func (m *mockController) Interrupts() uint8 {
	ir := m.interrupts
	if m.unread > 0 {
		ir |= IntRecv
	}
	if m.txResult != 0 {
		if m.txDelay > 0 {
			m.txDelay--
		} else {
			ir |= m.txResult
		}
	}
	return ir
}

func (m *mockController) ClearInterrupts(mask uint8) {
	m.interrupts &^= mask
	if m.txResult&mask != 0 {
		m.txResult &^= mask
	}
}

func (m *mockController) RXReadPointer() RingAddr { return m.readPtr }

func (m *mockController) SetRXReadPointer(ptr RingAddr) { m.readPtr = ptr }

func (m *mockController) ReadRX(addr RingAddr, dst []byte) {
	for i := range dst {
		dst[i] = m.ring[int(addr+RingAddr(i))%ringSize]
	}
}

func (m *mockController) WriteTX(src []byte) {
	m.txData = append(m.txData, src...)
}

func (m *mockController) SetDestinationMAC(mac [6]byte) { m.destMAC = mac }

func (m *mockController) LinkStatus() bool { return !m.linkDown }

func (m *mockController) Exec(cmd Command) {
	m.commands = append(m.commands, cmd)
	switch cmd {
	case CmdSendMAC:
		m.sent = append(m.sent, append([]byte(nil), m.txData...))
		m.txData = nil
	case CmdRecv:
		m.unread = int(m.writePtr - m.readPtr)
	}
}

// pushFrame appends one received frame to the ring: the self-counting
// big-endian length prefix followed by the frame octets.
func (m *mockController) pushFrame(data []byte) {
	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(data)+2))
	m.pushRaw(prefix[:])
	m.pushRaw(data)
}

func (m *mockController) pushRaw(data []byte) {
	for _, b := range data {
		m.ring[int(m.writePtr)%ringSize] = b
		m.writePtr++
	}
	m.unread = int(m.writePtr - m.readPtr)
}

func (m *mockController) lastCommand() Command {
	if len(m.commands) == 0 {
		return 0
	}
	return m.commands[len(m.commands)-1]
}

var (
	testMAC = eui.EUI48{0x00, 0x1c, 0xab, 0x00, 0x00, 0x01}
	peerMAC = eui.EUI48{0x00, 0x1c, 0xab, 0x00, 0x00, 0x02}
)

func openTestSocket(t *testing.T) (*Socket, *mockController) {
	t.Helper()
	ctrl := &mockController{txResult: IntSendOK}
	s, err := Open(ctrl, nil, Config{MAC: testMAC})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s, ctrl
}

func TestOpenProgramsController(t *testing.T) {
	s, ctrl := openTestSocket(t)

	if !ctrl.opened {
		t.Error("socket 0 not opened in MAC-RAW mode")
	}
	if ctrl.sourceMAC != [6]byte(testMAC) {
		t.Errorf("source MAC = %x, want %x", ctrl.sourceMAC, testMAC)
	}
	if ctrl.ethertype != frame.EthertypeAVTP {
		t.Errorf("default ethertype = %#x, want %#x", ctrl.ethertype, frame.EthertypeAVTP)
	}
	if s.MACAddress() != testMAC {
		t.Errorf("MACAddress() = %v", s.MACAddress())
	}
}

func TestOpenCustomEthertype(t *testing.T) {
	ctrl := &mockController{}
	s, err := Open(ctrl, nil, Config{MAC: testMAC, Ethertype: 0x88B5})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if ctrl.ethertype != 0x88B5 || s.Ethertype() != 0x88B5 {
		t.Errorf("ethertype = %#x / %#x", ctrl.ethertype, s.Ethertype())
	}
}

func TestOpenDeviceNotReady(t *testing.T) {
	ctrl := &mockController{resetErr: errors.New("no response on bus")}
	if _, err := Open(ctrl, nil, Config{MAC: testMAC}); !errors.Is(err, ErrDeviceNotReady) {
		t.Errorf("Open error = %v, want ErrDeviceNotReady", err)
	}
}

func TestRecvFrameNothingPending(t *testing.T) {
	s, _ := openTestSocket(t)
	f := frame.NewBuffer()
	if s.RecvFrame(f) {
		t.Error("RecvFrame with empty ring returned true")
	}
	if f.Len() != 0 {
		t.Error("frame modified with nothing pending")
	}
}

func TestRecvFrame(t *testing.T) {
	s, ctrl := openTestSocket(t)

	wire := make([]byte, 60)
	copy(wire[0:6], testMAC[:])
	copy(wire[6:12], peerMAC[:])
	binary.BigEndian.PutUint16(wire[12:14], frame.EthertypeAVTP)
	ctrl.pushFrame(wire)

	f := frame.NewBuffer()
	if !s.RecvFrame(f) {
		t.Fatal("RecvFrame returned false")
	}
	if !bytes.Equal(f.Bytes(), wire) {
		t.Errorf("frame = % x, want % x", f.Bytes(), wire)
	}
	if ctrl.readPtr != RingAddr(len(wire)+2) {
		t.Errorf("read pointer = %d, want %d", ctrl.readPtr, len(wire)+2)
	}
	if ctrl.lastCommand() != CmdRecv {
		t.Error("RECV not issued after frame consumption")
	}
	if s.Stats().FramesReceived != 1 {
		t.Errorf("FramesReceived = %d", s.Stats().FramesReceived)
	}
}

func TestRecvFrameBackToBack(t *testing.T) {
	s, ctrl := openTestSocket(t)
	first := bytes.Repeat([]byte{0x11}, 20)
	second := bytes.Repeat([]byte{0x22}, 30)
	ctrl.pushFrame(first)
	ctrl.pushFrame(second)

	f := frame.NewBuffer()
	if !s.RecvFrame(f) || !bytes.Equal(f.Bytes(), first) {
		t.Fatalf("first frame = % x", f.Bytes())
	}
	if !s.RecvFrame(f) || !bytes.Equal(f.Bytes(), second) {
		t.Fatalf("second frame = % x", f.Bytes())
	}
	if s.RecvFrame(f) {
		t.Error("third RecvFrame should find nothing")
	}
}

// A frame larger than the caller's buffer is discarded, but the read pointer
// still advances by the full prefix so the ring stays in sync.
func TestRecvFrameOversizedDrop(t *testing.T) {
	s, ctrl := openTestSocket(t)
	ctrl.pushFrame(make([]byte, 2000))

	f := frame.NewBuffer()
	if s.RecvFrame(f) {
		t.Error("oversized frame must be reported as false")
	}
	if f.Len() != 0 {
		t.Error("oversized frame must not touch the caller's buffer")
	}
	if ctrl.readPtr != 2002 {
		t.Errorf("read pointer = %d, want 2002", ctrl.readPtr)
	}
	if ctrl.lastCommand() != CmdRecv {
		t.Error("RECV must be issued even for a dropped frame")
	}
	if s.Stats().ReceiveDropped != 1 {
		t.Errorf("ReceiveDropped = %d", s.Stats().ReceiveDropped)
	}

	// The next frame must still come out intact.
	good := bytes.Repeat([]byte{0x33}, 40)
	ctrl.pushFrame(good)
	if !s.RecvFrame(f) || !bytes.Equal(f.Bytes(), good) {
		t.Errorf("ring desynchronized after drop: % x", f.Bytes())
	}
}

func TestRecvFrameMalformedPrefix(t *testing.T) {
	s, ctrl := openTestSocket(t)
	ctrl.pushRaw([]byte{0x00, 0x01}) // prefix smaller than its own size

	f := frame.NewBuffer()
	if s.RecvFrame(f) {
		t.Error("malformed prefix must be reported as false")
	}
	if s.Stats().MalformedLength != 1 {
		t.Errorf("MalformedLength = %d", s.Stats().MalformedLength)
	}
	if ctrl.lastCommand() != CmdRecv {
		t.Error("RECV must be issued after a skipped prefix")
	}
}

func TestRecvFrameRingWraparound(t *testing.T) {
	s, ctrl := openTestSocket(t)

	// Park the pointers close to the end of the ring so the next frame
	// straddles the wrap.
	ctrl.readPtr = ringSize - 10
	ctrl.writePtr = ringSize - 10

	wire := bytes.Repeat([]byte{0x5a}, 50)
	ctrl.pushFrame(wire)

	f := frame.NewBuffer()
	if !s.RecvFrame(f) {
		t.Fatal("RecvFrame returned false")
	}
	if !bytes.Equal(f.Bytes(), wire) {
		t.Errorf("wrapped frame corrupted: % x", f.Bytes())
	}
}

func buildFrame(t *testing.T, payload []byte) *frame.Buffer {
	t.Helper()
	f := frame.NewBuffer()
	f.SetHeader(peerMAC, testMAC, frame.EthertypeAVTP)
	if err := f.Append(payload); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestSendFrame(t *testing.T) {
	s, ctrl := openTestSocket(t)
	f := buildFrame(t, []byte{0xfa, 0x00})

	if !s.SendFrame(f, []byte{0x01, 0x02}, []byte{0x03}) {
		t.Fatal("SendFrame returned false")
	}
	if ctrl.destMAC != [6]byte(peerMAC) {
		t.Errorf("destination register = %x, want %x", ctrl.destMAC, peerMAC)
	}

	want := append(append(append([]byte(nil), f.Bytes()...), 0x01, 0x02), 0x03)
	if len(ctrl.sent) != 1 || !bytes.Equal(ctrl.sent[0], want) {
		t.Errorf("transmitted % x, want % x", ctrl.sent, want)
	}
	if s.Stats().FramesSent != 1 {
		t.Errorf("FramesSent = %d", s.Stats().FramesSent)
	}
}

func TestSendFrameNoGatherBuffers(t *testing.T) {
	s, ctrl := openTestSocket(t)
	f := buildFrame(t, nil)

	if !s.SendFrame(f, nil, nil) {
		t.Fatal("SendFrame returned false")
	}
	if !bytes.Equal(ctrl.sent[0], f.Bytes()) {
		t.Errorf("transmitted % x", ctrl.sent[0])
	}
}

func TestSendFrameTimeout(t *testing.T) {
	s, ctrl := openTestSocket(t)
	ctrl.txResult = IntTimeout

	f := buildFrame(t, nil)
	if s.SendFrame(f, nil, nil) {
		t.Error("SendFrame must return false on controller timeout")
	}
	if s.Stats().SendTimeouts != 1 {
		t.Errorf("SendTimeouts = %d", s.Stats().SendTimeouts)
	}
	// Terminal state clears both flags; a new transmit must succeed.
	ctrl.txResult = IntSendOK
	if !s.SendFrame(f, nil, nil) {
		t.Error("socket wedged after a timeout")
	}
}

func TestSendTimeoutError(t *testing.T) {
	s, ctrl := openTestSocket(t)
	ctrl.txResult = IntTimeout

	f := buildFrame(t, nil)
	if err := s.Send(f, nil, nil); !errors.Is(err, ErrTxTimeout) {
		t.Errorf("Send error = %v, want ErrTxTimeout", err)
	}

	ctrl.txResult = IntSendOK
	if err := s.Send(f, nil, nil); err != nil {
		t.Errorf("Send after timeout = %v", err)
	}
}

func TestLinkUp(t *testing.T) {
	s, ctrl := openTestSocket(t)
	if !s.LinkUp() {
		t.Error("fresh socket should report link up")
	}
	ctrl.linkDown = true
	if s.LinkUp() {
		t.Error("LinkUp must follow the PHY status register")
	}
}

func TestSendFramePoll(t *testing.T) {
	s, ctrl := openTestSocket(t)
	ctrl.txDelay = 3

	f := buildFrame(t, nil)
	if err := s.StartSend(f, nil, nil); err != nil {
		t.Fatalf("StartSend failed: %v", err)
	}
	if err := s.StartSend(f, nil, nil); !errors.Is(err, ErrSendInProgress) {
		t.Errorf("reentrant StartSend error = %v, want ErrSendInProgress", err)
	}

	pends := 0
	for s.SendFramePoll() == TxPending {
		pends++
		if pends > 10 {
			t.Fatal("transmit never completed")
		}
	}
	if pends == 0 {
		t.Error("expected at least one TxPending poll")
	}
	if s.SendFramePoll() != TxDone {
		t.Error("idle poll should report TxDone")
	}
}

func TestSendFrameTooShort(t *testing.T) {
	s, _ := openTestSocket(t)
	f := frame.NewBuffer()
	if s.SendFrame(f, nil, nil) {
		t.Error("headerless frame must not be transmitted")
	}
}

// After SendReplyFrame the header's destination equals the pre-call source
// and vice versa.
func TestSendReplyFrameSwapsMACs(t *testing.T) {
	s, ctrl := openTestSocket(t)
	f := buildFrame(t, nil)

	if !s.SendReplyFrame(f, nil, nil) {
		t.Fatal("SendReplyFrame returned false")
	}
	if f.DA() != testMAC || f.SA() != peerMAC {
		t.Errorf("header after reply: da=%v sa=%v", f.DA(), f.SA())
	}
	if ctrl.destMAC != [6]byte(testMAC) {
		t.Errorf("destination register = %x, want original source", ctrl.destMAC)
	}
}

func TestJoinMulticast(t *testing.T) {
	s, _ := openTestSocket(t)
	if !s.Multicast().IsUnspecified() {
		t.Error("fresh socket should have no multicast group")
	}
	if !s.JoinMulticast(eui.ADPACMPMulticast) {
		t.Error("JoinMulticast must report success")
	}
	if s.Multicast() != eui.ADPACMPMulticast {
		t.Errorf("Multicast() = %v", s.Multicast())
	}
}

func TestTimeInMilliseconds(t *testing.T) {
	s, _ := openTestSocket(t)
	a := s.TimeInMilliseconds()
	b := s.TimeInMilliseconds()
	if b < a {
		t.Errorf("clock went backwards: %d then %d", a, b)
	}
}
