// Package aps implements the AVDECC Proxy Server side of IEEE 1722.1-2013
// Annex C: APCs connect over TCP and exchange APPDUs, while the server moves
// the encapsulated AVDECC PDUs to and from the network through a raw socket.
package aps

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"firestige.xyz/strix/internal/log"
	"firestige.xyz/strix/pkg/appdu"
	"firestige.xyz/strix/pkg/eui"
	"firestige.xyz/strix/pkg/frame"
	"firestige.xyz/strix/pkg/rawsock"
)

// Options parameterizes New.
type Options struct {
	// Listen is the TCP address clients connect to.
	Listen string

	// KeepaliveInterval is how often an idle client connection receives a
	// NOP so half-open TCP connections get noticed.
	KeepaliveInterval time.Duration

	// Ethertype stamps frames built from AVDECC_FROM_APC payloads.
	// Zero takes the raw socket's configured receive filter, so the
	// server transmits with the same Ethertype it receives.
	Ethertype uint16

	// LinkPollInterval is how often the raw socket's carrier state is
	// checked so clients learn about LINK_DOWN and LINK_UP transitions.
	LinkPollInterval time.Duration
}

// Server accepts proxy clients and bridges them onto a raw socket.
type Server struct {
	opts   Options
	sock   rawsock.RawSocket
	logger log.Logger

	listener net.Listener

	mu        sync.Mutex
	clients   map[*client]struct{}
	entitySeq uint16
	linkUp    bool

	// txMu serializes transmits; the raw socket send path must not be
	// reentered.
	txMu sync.Mutex
}

// New builds a server over an already-opened raw socket.
func New(opts Options, sock rawsock.RawSocket) *Server {
	if opts.Ethertype == 0 {
		opts.Ethertype = sock.Ethertype()
	}
	if opts.Ethertype == 0 {
		opts.Ethertype = frame.EthertypeAVTP
	}
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = 10 * time.Second
	}
	if opts.LinkPollInterval <= 0 {
		opts.LinkPollInterval = time.Second
	}
	return &Server{
		opts:    opts,
		sock:    sock,
		logger:  log.GetLogger().WithField("component", "aps"),
		clients: make(map[*client]struct{}),
		linkUp:  sock.LinkUp(),
	}
}

// Addr returns the bound listen address once Run has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run serves until ctx is cancelled or a fatal error occurs.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Listen, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	defer listener.Close()
	s.logger.Infof("proxy server listening on %s, port MAC %s", listener.Addr(), s.sock.MACAddress())

	errCh := make(chan error, 2)
	go func() { errCh <- s.acceptLoop(ctx, listener) }()
	go func() { errCh <- s.frameLoop(ctx) }()

	keepalive := time.NewTicker(s.opts.KeepaliveInterval)
	defer keepalive.Stop()
	linkPoll := time.NewTicker(s.opts.LinkPollInterval)
	defer linkPoll.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Infof("context cancelled")
			s.closeClients()
			return nil
		case err := <-errCh:
			s.closeClients()
			return err
		case <-keepalive.C:
			s.sendKeepalives()
		case <-linkPoll.C:
			s.checkLink()
		}
	}
}

// checkLink compares the port's carrier state against the last observation
// and reports transitions to every client as LINK_DOWN or LINK_UP.
func (s *Server) checkLink() {
	up := s.sock.LinkUp()
	s.mu.Lock()
	changed := up != s.linkUp
	s.linkUp = up
	s.mu.Unlock()
	if !changed {
		return
	}

	var msg appdu.Message
	if up {
		s.logger.Info("network port link up")
		msg.SetLinkUp(s.sock.MACAddress())
	} else {
		s.logger.Warn("network port link down")
		msg.SetLinkDown(s.sock.MACAddress())
	}
	s.broadcast(&msg)
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		c := s.addClient(conn)
		go c.readLoop()
	}
}

// recvIdleWait paces the receive poll when the socket has nothing pending.
const recvIdleWait = time.Millisecond

// frameLoop polls the raw socket and fans received AVDECC PDUs out to every
// client as AVDECC_FROM_APS.
func (s *Server) frameLoop(ctx context.Context) error {
	f := frame.NewBuffer()
	var msg appdu.Message

	for {
		if ctx.Err() != nil {
			return nil
		}
		if !s.sock.RecvFrame(f) {
			// Non-blocking backends report an empty queue immediately;
			// bound the poll rate so the loop does not spin a core.
			time.Sleep(recvIdleWait)
			continue
		}
		if !s.wantFrame(f) {
			continue
		}
		if err := msg.SetAvdeccFromAPS(f); err != nil {
			s.logger.WithError(err).Warn("dropping received frame")
			continue
		}
		s.broadcast(&msg)
	}
}

// wantFrame applies the upper-layer destination filter the controller's
// Ethertype filter cannot: our own MAC, the ADP/ACMP multicast or the
// joined multicast group.
func (s *Server) wantFrame(f *frame.Buffer) bool {
	da := f.DA()
	if da == s.sock.MACAddress() || da == eui.ADPACMPMulticast {
		return true
	}
	mc := s.sock.Multicast()
	return !mc.IsUnspecified() && da == mc
}

func (s *Server) addClient(conn net.Conn) *client {
	c := &client{
		srv:    s,
		conn:   conn,
		parser: appdu.NewParser(),
		logger: s.logger.WithField("client", conn.RemoteAddr().String()),
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	up := s.linkUp
	s.mu.Unlock()

	c.logger.Info("client connected")

	// Annex C: the APS reports its network port state on connect.
	var link appdu.Message
	if up {
		link.SetLinkUp(s.sock.MACAddress())
	} else {
		link.SetLinkDown(s.sock.MACAddress())
	}
	c.send(&link)
	return c
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	_, known := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if known {
		c.logger.Info("client disconnected")
		c.conn.Close()
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}

func (s *Server) snapshotClients() []*client {
	s.mu.Lock()
	defer s.mu.Unlock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	return clients
}

func (s *Server) broadcast(msg *appdu.Message) {
	for _, c := range s.snapshotClients() {
		c.send(msg)
	}
}

func (s *Server) sendKeepalives() {
	cutoff := time.Now().Add(-s.opts.KeepaliveInterval)
	var nop appdu.Message
	nop.SetNop()
	for _, c := range s.snapshotClients() {
		if c.lastSend().Before(cutoff) {
			c.send(&nop)
		}
	}
}

// nextEntityID derives a fresh entity ID from the port MAC, disambiguating
// concurrent clients in the low 16 bits of the EUI-64 expansion.
func (s *Server) nextEntityID() eui.EUI64 {
	s.mu.Lock()
	s.entitySeq++
	seq := s.entitySeq
	s.mu.Unlock()
	base := s.sock.MACAddress().ToEUI64().Uint64()
	return eui.EUI64FromUint64(base ^ uint64(seq))
}

// transmit sends one assembled frame out the raw socket.
func (s *Server) transmit(f *frame.Buffer) bool {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return s.sock.SendFrame(f, nil, nil)
}
