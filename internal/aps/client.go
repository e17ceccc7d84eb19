package aps

import (
	"net"
	"sync"
	"time"

	"firestige.xyz/strix/internal/log"
	"firestige.xyz/strix/pkg/appdu"
	"firestige.xyz/strix/pkg/frame"
)

// client is one connected APC. It is the appdu.Handler for the messages
// parsed off its own connection.
type client struct {
	appdu.UnimplementedHandler

	srv    *Server
	conn   net.Conn
	parser *appdu.Parser
	logger log.Logger

	writeMu sync.Mutex
	lastTx  time.Time
}

// readLoop feeds the connection's byte stream through the APPDU parser and
// dispatches completed messages until the connection dies.
func (c *client) readLoop() {
	defer c.srv.removeClient(c)

	buf := make([]byte, 4096)
	reportedErrors := 0
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			return
		}
		c.parser.ParseAll(buf[:n], func(msg *appdu.Message) {
			appdu.Dispatch(c, msg)
		})

		if errors := c.parser.ErrorCount(); errors > reportedErrors {
			c.logger.Warnf("stream desync: %d header octets rejected so far", errors)
			reportedErrors = errors
		}
	}
}

// send serializes msg onto the connection. Safe for concurrent use; the
// keepalive path and the frame fan-out both write here.
func (c *client) send(msg *appdu.Message) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(msg.Serialize()); err != nil {
		c.logger.WithError(err).Debug("write failed")
		return
	}
	c.lastTx = time.Now()
}

func (c *client) lastSend() time.Time {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.lastTx
}

// OnEntityIDRequest assigns an entity ID and answers with
// ENTITY_ID_RESPONSE, echoing the APC primary MAC from the request.
func (c *client) OnEntityIDRequest(msg *appdu.Message) {
	id := c.srv.nextEntityID()
	c.logger.Debugf("assigned entity id %s", id)

	var resp appdu.Message
	resp.SetEntityIDResponse(msg.Address, id)
	c.send(&resp)
}

// OnAvdeccFromAPC rebuilds the Ethernet frame around the encapsulated PDU
// and transmits it: destination from the message address field, source from
// the server's port MAC.
func (c *client) OnAvdeccFromAPC(msg *appdu.Message) {
	f := frame.NewBuffer()
	f.SetHeader(msg.Address, c.srv.sock.MACAddress(), c.srv.opts.Ethertype)
	if err := f.Append(msg.Payload()); err != nil {
		c.logger.WithError(err).Warn("dropping oversized client pdu")
		return
	}
	if !c.srv.transmit(f) {
		c.logger.Warn("transmit failed")
	}
}

// OnVendor ignores vendor extensions but leaves a trace for integrators.
func (c *client) OnVendor(msg *appdu.Message) {
	c.logger.Debugf("ignoring vendor message %s", msg.Address)
}
