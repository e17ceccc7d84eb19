package appdu

// Parser consumes an APPDU byte stream one octet at a time, typically fed
// from a TCP connection between an APS and an APC, and yields a completed
// Message whenever one ends.
//
// The parser holds the last HeaderLen octets in a small ring. When the ring
// is full the header is validated; on rejection exactly one octet is dropped
// from the front and parsing continues, so the parser locks back onto a
// valid header at any offset of a corrupted stream. Payload octets cannot
// fail structurally because payload_length was validated with the header.
//
// A Parser is not safe for concurrent use. The *Message returned by Parse
// aliases parser-owned storage and is valid only until the next Parse or
// Clear call; use Message.CopyFrom to retain it.
type Parser struct {
	header      [HeaderLen]byte
	headerStart int
	headerCount int

	payloadLeft int
	msg         Message

	errorCount         int
	reservedErrorCount int
}

// NewParser returns a parser at the start-of-header state.
func NewParser() *Parser {
	return &Parser{}
}

// Clear resets all parsing state including the error counters.
func (p *Parser) Clear() {
	p.headerStart = 0
	p.headerCount = 0
	p.payloadLeft = 0
	p.errorCount = 0
	p.reservedErrorCount = 0
}

// ErrorCount returns the number of header rejections observed since the
// parser was created or cleared. Monotonically non-decreasing between
// Clear calls.
func (p *Parser) ErrorCount() int { return p.errorCount }

// ReservedErrorCount returns the number of accepted headers whose reserved
// field was not zero.
func (p *Parser) ReservedErrorCount() int { return p.reservedErrorCount }

// Parse consumes one octet. It returns a completed Message when the octet
// finishes one, or nil.
func (p *Parser) Parse(octet byte) *Message {
	if p.payloadLeft > 0 {
		return p.parsePayload(octet)
	}
	return p.parseHeader(octet)
}

// ParseAll consumes a chunk of octets, invoking fn for each completed
// message in stream order. The message passed to fn is only valid for the
// duration of the call.
func (p *Parser) ParseAll(data []byte, fn func(*Message)) {
	for _, octet := range data {
		if msg := p.Parse(octet); msg != nil {
			fn(msg)
		}
	}
}

func (p *Parser) parseHeader(octet byte) *Message {
	p.header[(p.headerStart+p.headerCount)%HeaderLen] = octet
	p.headerCount++
	if p.headerCount < HeaderLen {
		return nil
	}
	return p.validateHeader()
}

// headerAt reads the i-th accumulated header octet from the ring.
func (p *Parser) headerAt(i int) byte {
	return p.header[(p.headerStart+i)%HeaderLen]
}

// dropHeaderOctet discards the oldest accumulated octet, the one-octet
// resynchronization step.
func (p *Parser) dropHeaderOctet() {
	p.headerStart = (p.headerStart + 1) % HeaderLen
	p.headerCount--
	p.errorCount++
}

func (p *Parser) validateHeader() *Message {
	version := p.headerAt(0)
	msgType := MessageType(p.headerAt(1))
	payloadLen := int(p.headerAt(2))<<8 | int(p.headerAt(3))

	if version != 0 || !msgType.Valid() || payloadLen > MaxPayload {
		p.dropHeaderOctet()
		return nil
	}

	// Reserved octets should be zero on the wire. A nonzero value is a
	// soft error per Annex C: accept the message but count it.
	if p.headerAt(10) != 0 || p.headerAt(11) != 0 {
		p.reservedErrorCount++
	}

	p.msg.Version = version
	p.msg.Type = msgType
	for i := 0; i < 6; i++ {
		p.msg.Address[i] = p.headerAt(4 + i)
	}
	p.msg.Reserved[0] = p.headerAt(10)
	p.msg.Reserved[1] = p.headerAt(11)
	p.msg.payloadLen = 0

	p.headerStart = 0
	p.headerCount = 0

	if payloadLen == 0 {
		return &p.msg
	}
	p.payloadLeft = payloadLen
	return nil
}

func (p *Parser) parsePayload(octet byte) *Message {
	p.msg.payload[p.msg.payloadLen] = octet
	p.msg.payloadLen++
	p.payloadLeft--
	if p.payloadLeft == 0 {
		return &p.msg
	}
	return nil
}
