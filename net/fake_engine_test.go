package net

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
)

// fakePeer is an in-memory Peer. Disconnect does not fire callbacks; tests
// drive the engine side explicitly.
type fakePeer struct {
	id            ConnID
	state         atomic.Uint32
	refuse        bool
	disconnects   atomic.Int32
	mu            sync.Mutex
	sent          [][]byte
	modes         []SendMode
	refuseSending bool
}

func newFakePeer(id ConnID) *fakePeer {
	p := &fakePeer{id: id}
	p.state.Store(uint32(StateConnected))
	return p
}

func (p *fakePeer) ID() ConnID           { return p.id }
func (p *fakePeer) State() ConnState     { return ConnState(p.state.Load()) }
func (p *fakePeer) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000 + int(p.id)} }

func (p *fakePeer) Send(payload []byte, mode SendMode) bool {
	if p.refuseSending {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, payload)
	p.modes = append(p.modes, mode)
	return true
}

func (p *fakePeer) Disconnect() bool {
	p.disconnects.Add(1)
	if p.refuse {
		return false
	}
	return p.state.CompareAndSwap(uint32(StateConnected), uint32(StateDisconnecting))
}

type fakeClient struct {
	cb       ClientCallbacks
	peer     *fakePeer
	address  string
	port     int
	onResult func(error)
	syncErr  *error
	closed   atomic.Bool
}

func (c *fakeClient) Connect(address string, port int, onResult func(err error)) {
	c.address, c.port = address, port
	c.onResult = onResult
	if c.syncErr != nil {
		c.complete(*c.syncErr)
	}
}

// complete finishes the pending connect attempt.
func (c *fakeClient) complete(err error) {
	if err == nil {
		c.peer.state.Store(uint32(StateConnected))
	}
	c.onResult(err)
}

func (c *fakeClient) State() ConnState {
	if c.onResult == nil {
		return StateDisconnected
	}
	return c.peer.State()
}

func (c *fakeClient) Send(payload []byte, mode SendMode) bool {
	return c.peer.Send(payload, mode)
}

func (c *fakeClient) Disconnect() bool { return c.peer.Disconnect() }

func (c *fakeClient) Close() error {
	c.closed.Store(true)
	return nil
}

type fakeServer struct {
	cb        ServerCallbacks
	listenErr error
	bindAddr  string
	port      int
	closed    atomic.Bool
}

func (s *fakeServer) Listen(bindAddr string, port int) error {
	s.bindAddr, s.port = bindAddr, port
	return s.listenErr
}

func (s *fakeServer) Addr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(s.bindAddr), Port: s.port}
}

func (s *fakeServer) Close() error {
	s.closed.Store(true)
	return nil
}

// connect simulates an incoming connection.
func (s *fakeServer) connect(id ConnID) *fakePeer {
	p := newFakePeer(id)
	s.cb.OnConnect(p)
	return p
}

type fakeEngine struct {
	mu        sync.Mutex
	clients   []*fakeClient
	servers   []*fakeServer
	listenErr error
	syncErr   *error
	reloaded  atomic.Int32
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) NewClient(cb ClientCallbacks) ClientEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := &fakeClient{cb: cb, peer: newFakePeer(0), syncErr: e.syncErr}
	c.peer.state.Store(uint32(StateConnecting))
	e.clients = append(e.clients, c)
	return c
}

func (e *fakeEngine) NewServer(cb ServerCallbacks) ServerEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := &fakeServer{cb: cb, listenErr: e.listenErr}
	e.servers = append(e.servers, s)
	return s
}

func (e *fakeEngine) Reload(*TransportCfg) { e.reloaded.Add(1) }

func (e *fakeEngine) lastClient() *fakeClient {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clients[len(e.clients)-1]
}

func (e *fakeEngine) lastServer() *fakeServer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.servers[len(e.servers)-1]
}

var errFakeRefused = errors.New("fake: connection refused")
