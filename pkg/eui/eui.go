// Package eui provides the IEEE EUI-48 and EUI-64 identifier types used
// throughout the AVDECC stack: port MAC addresses, multicast destinations
// and entity identifiers.
package eui

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// EUI48 is a 48-bit IEEE identifier (an Ethernet MAC address), stored
// big-endian as it appears on the wire.
type EUI48 [6]byte

// EUI64 is a 64-bit IEEE identifier (an AVDECC entity ID), stored big-endian.
type EUI64 [8]byte

// ADPACMPMulticast is the destination address for AVDECC discovery and
// connection management PDUs (IEEE 1722.1-2013 Table B.1).
var ADPACMPMulticast = EUI48{0x91, 0xE0, 0xF0, 0x01, 0x00, 0x00}

// ParseEUI48 parses the usual colon- or dash-separated textual form,
// e.g. "91:e0:f0:01:00:00".
func ParseEUI48(s string) (EUI48, error) {
	var e EUI48
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == '-' })
	if len(parts) != 6 {
		return e, fmt.Errorf("invalid EUI-48 %q: want 6 octets, got %d", s, len(parts))
	}
	for i, p := range parts {
		var v byte
		if _, err := fmt.Sscanf(p, "%02x", &v); err != nil || len(p) != 2 {
			return e, fmt.Errorf("invalid EUI-48 %q: bad octet %q", s, p)
		}
		e[i] = v
	}
	return e, nil
}

// String renders the address in lowercase colon-separated form.
func (e EUI48) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", e[0], e[1], e[2], e[3], e[4], e[5])
}

// IsUnspecified reports whether the address is the all-zero value.
func (e EUI48) IsUnspecified() bool {
	return e == EUI48{}
}

// IsMulticast reports whether the group bit (LSB of the first octet) is set.
// The bit is informational only; nothing in the stack enforces it.
func (e EUI48) IsMulticast() bool {
	return e[0]&0x01 != 0
}

// ToEUI64 expands the address into an EUI-64 by inserting FF-FE between the
// OUI and the extension, the standard MAC-to-entity-ID mapping.
func (e EUI48) ToEUI64() EUI64 {
	return EUI64{e[0], e[1], e[2], 0xFF, 0xFE, e[3], e[4], e[5]}
}

// String renders the identifier in lowercase colon-separated form.
func (e EUI64) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x:%02x:%02x",
		e[0], e[1], e[2], e[3], e[4], e[5], e[6], e[7])
}

// IsUnspecified reports whether the identifier is the all-zero value.
func (e EUI64) IsUnspecified() bool {
	return e == EUI64{}
}

// Uint64 returns the identifier as a big-endian integer.
func (e EUI64) Uint64() uint64 {
	return binary.BigEndian.Uint64(e[:])
}

// EUI64FromUint64 builds an identifier from its big-endian integer form.
func EUI64FromUint64(v uint64) EUI64 {
	var e EUI64
	binary.BigEndian.PutUint64(e[:], v)
	return e
}
