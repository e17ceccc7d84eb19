// Package appdu implements the AVDECC Proxy Protocol data unit defined by
// IEEE Std 1722.1-2013 Annex C: message construction and serialization
// (Annex C.4), an incremental stream parser (Annex C.4.2) and per-type
// handler dispatch (Annex C.5).
package appdu

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/strix/pkg/eui"
	"firestige.xyz/strix/pkg/frame"
)

// MessageType identifies an APPDU per Annex C.5.1.
type MessageType uint8

const (
	TypeNop              MessageType = 0x00
	TypeEntityIDRequest  MessageType = 0x01
	TypeEntityIDResponse MessageType = 0x02
	TypeLinkUp           MessageType = 0x03
	TypeLinkDown         MessageType = 0x04
	TypeAvdeccFromAPS    MessageType = 0x05
	TypeAvdeccFromAPC    MessageType = 0x06
	TypeVendor           MessageType = 0xFF
)

const (
	// HeaderLen is the fixed APPDU header size on the wire: version,
	// message_type, payload_length, address and reserved.
	HeaderLen = 12

	// MaxPayload bounds payload_length. Large enough for a full AVDECC
	// Ethernet PDU body.
	MaxPayload = 1500
)

// Valid reports whether t is one of the message types defined by Annex C.5.1.
func (t MessageType) Valid() bool {
	return t <= TypeAvdeccFromAPC || t == TypeVendor
}

func (t MessageType) String() string {
	switch t {
	case TypeNop:
		return "NOP"
	case TypeEntityIDRequest:
		return "ENTITY_ID_REQUEST"
	case TypeEntityIDResponse:
		return "ENTITY_ID_RESPONSE"
	case TypeLinkUp:
		return "LINK_UP"
	case TypeLinkDown:
		return "LINK_DOWN"
	case TypeAvdeccFromAPS:
		return "AVDECC_FROM_APS"
	case TypeAvdeccFromAPC:
		return "AVDECC_FROM_APC"
	case TypeVendor:
		return "VENDOR"
	}
	return fmt.Sprintf("UNKNOWN(%#02x)", uint8(t))
}

// Message is one APPDU: the fixed header fields plus payload. The payload
// storage is part of the Message so a parser can reuse one Message across
// the whole stream without allocating.
//
// The meaning of Address depends on Type — the APC primary MAC for entity ID
// messages, the network port MAC for link status, the original source or
// intended destination MAC for encapsulated AVDECC PDUs, and the vendor
// message type code for VENDOR.
type Message struct {
	Version  uint8
	Type     MessageType
	Address  eui.EUI48
	Reserved [2]byte

	payload    [MaxPayload]byte
	payloadLen int
}

// Payload returns the message payload. The slice aliases the message's
// internal storage.
func (m *Message) Payload() []byte { return m.payload[:m.payloadLen] }

// PayloadLength returns the payload_length header field.
func (m *Message) PayloadLength() int { return m.payloadLen }

// setPayload replaces the payload, truncating at MaxPayload. Callers in this
// package guarantee p fits.
func (m *Message) setPayload(p []byte) {
	m.payloadLen = copy(m.payload[:], p)
}

func (m *Message) set(t MessageType, addr eui.EUI48, payload []byte) {
	m.Version = 0
	m.Type = t
	m.Address = addr
	m.Reserved = [2]byte{}
	m.setPayload(payload)
}

// SetNop makes the message a NOP (Annex C.5.1.1): no address, no payload.
func (m *Message) SetNop() {
	m.set(TypeNop, eui.EUI48{}, nil)
}

// SetEntityIDRequest makes the message an ENTITY_ID_REQUEST (Annex C.5.1.2).
func (m *Message) SetEntityIDRequest(apcPrimaryMAC eui.EUI48, requestedEntityID eui.EUI64) {
	m.set(TypeEntityIDRequest, apcPrimaryMAC, requestedEntityID[:])
}

// SetEntityIDResponse makes the message an ENTITY_ID_RESPONSE (Annex C.5.1.3).
func (m *Message) SetEntityIDResponse(apcPrimaryMAC eui.EUI48, entityID eui.EUI64) {
	m.set(TypeEntityIDResponse, apcPrimaryMAC, entityID[:])
}

// SetLinkUp makes the message a LINK_UP for the given network port
// (Annex C.5.1.4).
func (m *Message) SetLinkUp(networkPortMAC eui.EUI48) {
	m.set(TypeLinkUp, networkPortMAC, nil)
}

// SetLinkDown makes the message a LINK_DOWN for the given network port
// (Annex C.5.1.5).
func (m *Message) SetLinkDown(networkPortMAC eui.EUI48) {
	m.set(TypeLinkDown, networkPortMAC, nil)
}

// SetAvdeccFromAPS encapsulates an AVDECC PDU received from the network
// (Annex C.5.1.6). The address field carries the original source MAC and the
// payload is the Ethernet payload after the Ethertype, without preamble or
// CRC. Fails when the frame payload exceeds MaxPayload.
func (m *Message) SetAvdeccFromAPS(f *frame.Buffer) error {
	if len(f.Payload()) > MaxPayload {
		return fmt.Errorf("avdecc pdu of %d octets exceeds max payload %d", len(f.Payload()), MaxPayload)
	}
	m.set(TypeAvdeccFromAPS, f.SA(), f.Payload())
	return nil
}

// SetAvdeccFromAPC encapsulates an AVDECC PDU to be transmitted by the APS
// (Annex C.5.1.7). The address field carries the destination MAC.
func (m *Message) SetAvdeccFromAPC(f *frame.Buffer) error {
	if len(f.Payload()) > MaxPayload {
		return fmt.Errorf("avdecc pdu of %d octets exceeds max payload %d", len(f.Payload()), MaxPayload)
	}
	m.set(TypeAvdeccFromAPC, f.DA(), f.Payload())
	return nil
}

// SetVendor makes the message a VENDOR message (Annex C.5.1.8). The address
// field carries the vendor message type code. Fails when the payload exceeds
// MaxPayload.
func (m *Message) SetVendor(vendorMessageType eui.EUI48, payload []byte) error {
	if len(payload) > MaxPayload {
		return fmt.Errorf("vendor payload of %d octets exceeds max payload %d", len(payload), MaxPayload)
	}
	m.set(TypeVendor, vendorMessageType, payload)
	return nil
}

// CopyFrom deep-copies other into m. Parser callers use this to retain a
// message beyond the next Parse call.
func (m *Message) CopyFrom(other *Message) {
	m.Version = other.Version
	m.Type = other.Type
	m.Address = other.Address
	m.Reserved = other.Reserved
	m.payloadLen = other.payloadLen
	copy(m.payload[:], other.payload[:other.payloadLen])
}

// Equal reports whether two messages have identical header fields and
// payload octets.
func (m *Message) Equal(other *Message) bool {
	if m.Version != other.Version || m.Type != other.Type ||
		m.Address != other.Address || m.Reserved != other.Reserved ||
		m.payloadLen != other.payloadLen {
		return false
	}
	for i := 0; i < m.payloadLen; i++ {
		if m.payload[i] != other.payload[i] {
			return false
		}
	}
	return true
}

// AppendTo serializes the message onto dst and returns the extended slice:
// the 12-octet header followed by the payload.
func (m *Message) AppendTo(dst []byte) []byte {
	var hdr [HeaderLen]byte
	hdr[0] = m.Version
	hdr[1] = byte(m.Type)
	binary.BigEndian.PutUint16(hdr[2:4], uint16(m.payloadLen))
	copy(hdr[4:10], m.Address[:])
	copy(hdr[10:12], m.Reserved[:])
	dst = append(dst, hdr[:]...)
	return append(dst, m.payload[:m.payloadLen]...)
}

// Serialize returns the wire form of the message.
func (m *Message) Serialize() []byte {
	return m.AppendTo(make([]byte, 0, HeaderLen+m.payloadLen))
}

func (m *Message) String() string {
	return fmt.Sprintf("%s addr=%s len=%d", m.Type, m.Address, m.payloadLen)
}
