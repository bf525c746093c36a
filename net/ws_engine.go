package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/lcx/rift/log"
	"github.com/lcx/rift/metrics"
	"nhooyr.io/websocket"
)

// WSEngine carries messages as binary websocket frames. Websocket runs over
// a single ordered stream, so both send modes are delivered reliably; only
// the queue overflow policy differs.
type WSEngine struct {
	cfg    atomic.Pointer[TransportCfg]
	nextID atomic.Int64
}

var (
	_ Engine           = (*WSEngine)(nil)
	_ ReloadableEngine = (*WSEngine)(nil)
)

// NewWSEngine creates a websocket engine. A nil cfg uses DefaultTransportCfg.
func NewWSEngine(cfg *TransportCfg) *WSEngine {
	if cfg == nil {
		cfg = DefaultTransportCfg()
	}
	e := &WSEngine{}
	e.cfg.Store(cfg)
	return e
}

func (e *WSEngine) Name() string {
	return "ws"
}

func (e *WSEngine) Reload(cfg *TransportCfg) {
	if cfg != nil {
		e.cfg.Store(cfg)
	}
}

func (e *WSEngine) NewClient(cb ClientCallbacks) ClientEngine {
	return &wsClient{engine: e, cb: cb}
}

func (e *WSEngine) NewServer(cb ServerCallbacks) ServerEngine {
	return &wsServer{
		engine: e,
		cb:     cb,
		conns:  make(map[ConnID]*wsConn),
	}
}

type wsConn struct {
	id     ConnID
	ws     *websocket.Conn
	remote net.Addr
	cfg    *TransportCfg
	state  atomic.Uint32
	sendCh chan []byte

	ctx        context.Context
	cancel     context.CancelFunc
	localClose atomic.Bool

	recvLimit *recvLimiter
	sendPace  *sendPacer

	onMessage func(payload []byte)
	onClose   func(isLocal bool, code SocketError)
}

func newWSConn(id ConnID, ws *websocket.Conn, remote net.Addr, cfg *TransportCfg) *wsConn {
	ctx, cancel := context.WithCancel(context.Background())
	ws.SetReadLimit(int64(cfg.MaxFrameSize))
	c := &wsConn{
		id:        id,
		ws:        ws,
		remote:    remote,
		cfg:       cfg,
		sendCh:    make(chan []byte, cfg.SendChannelSize),
		ctx:       ctx,
		cancel:    cancel,
		recvLimit: newRecvLimiter(cfg.RecvRateLimit, cfg.RecvBurst),
		sendPace:  newSendPacer(cfg.SendRateLimit),
	}
	c.state.Store(uint32(StateConnected))
	return c
}

func (c *wsConn) ID() ConnID {
	return c.id
}

func (c *wsConn) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.remote
}

func (c *wsConn) Send(payload []byte, mode SendMode) bool {
	if c.State() != StateConnected || len(payload) > c.cfg.MaxFrameSize {
		return false
	}

	msg := append([]byte(nil), payload...)
	select {
	case <-c.ctx.Done():
		return false
	case c.sendCh <- msg:
		return true
	default:
	}

	if mode == Unreliable {
		metrics.IncrCounterWithGroup(_metricsGroup, "unreliable_dropped_total", 1)
		return true
	}
	return false
}

// Disconnect starts the closing handshake. The read loop reports the
// disconnect once the handshake completes.
func (c *wsConn) Disconnect() bool {
	if !c.state.CompareAndSwap(uint32(StateConnected), uint32(StateDisconnecting)) {
		return false
	}
	c.localClose.Store(true)
	go func() {
		_ = c.ws.Close(websocket.StatusNormalClosure, "")
		c.cancel()
	}()
	return true
}

// abort drops the connection without a closing handshake.
func (c *wsConn) abort() {
	c.state.CompareAndSwap(uint32(StateConnected), uint32(StateDisconnecting))
	c.localClose.Store(true)
	c.cancel()
}

// run serves the connection until it closes. It blocks.
func (c *wsConn) run() {
	go c.serveSend()

	var err error
	for {
		var typ websocket.MessageType
		var data []byte
		typ, data, err = c.ws.Read(c.ctx)
		if err != nil {
			break
		}
		if typ != websocket.MessageBinary {
			continue
		}
		if !c.recvLimit.Allow() {
			metrics.IncrCounterWithGroup(_metricsGroup, "recv_rate_limited_total", 1)
			continue
		}
		if c.onMessage != nil {
			c.onMessage(data)
		}
	}

	c.cancel()
	c.state.Store(uint32(StateDisconnected))

	isLocal := c.localClose.Load()
	code := SocketErrorSuccess
	if !isLocal {
		code = wsSocketError(err)
	}
	if c.onClose != nil {
		c.onClose(isLocal, code)
	}
}

func (c *wsConn) serveSend() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.sendCh:
			c.sendPace.Take()
			if err := c.ws.Write(c.ctx, websocket.MessageBinary, msg); err != nil {
				c.cancel()
				return
			}
		}
	}
}

// wsSocketError maps a websocket read error onto a SocketError. A clean
// close by the remote counts as an aborted connection.
func wsSocketError(err error) SocketError {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return SocketErrorConnectionAborted
	case -1:
		return SocketErrorFromErr(err)
	default:
		return SocketErrorConnectionReset
	}
}

type wsServer struct {
	engine *WSEngine
	cb     ServerCallbacks

	mu     sync.Mutex
	ln     net.Listener
	srv    *http.Server
	conns  map[ConnID]*wsConn
	closed bool
	wg     sync.WaitGroup
}

func (s *wsServer) Listen(bindAddr string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrEngineClosed
	}
	if s.ln != nil {
		return errors.New("ws server already listening")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(bindAddr, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	s.ln = ln
	s.srv = &http.Server{
		Handler:           http.HandlerFunc(s.handle),
		ReadHeaderTimeout: s.engine.cfg.Load().dialTimeout(),
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ws serve failed")
		}
	}()
	return nil
}

func (s *wsServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *wsServer) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Debug().Str("remote", r.RemoteAddr).Err(err).Msg("ws upgrade failed")
		return
	}

	remote, _ := net.ResolveTCPAddr("tcp", r.RemoteAddr)
	c := newWSConn(ConnID(s.engine.nextID.Add(1)), ws, remote, s.engine.cfg.Load())
	c.onMessage = func(payload []byte) {
		if s.cb.OnMessage != nil {
			s.cb.OnMessage(c.id, payload)
		}
	}
	c.onClose = func(isLocal bool, code SocketError) {
		s.mu.Lock()
		delete(s.conns, c.id)
		s.mu.Unlock()
		if s.cb.OnDisconnect != nil {
			s.cb.OnDisconnect(c.id, isLocal, code)
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ws.Close(websocket.StatusGoingAway, "server closed")
		return
	}
	s.conns[c.id] = c
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	metrics.IncrCounterWithDimGroup(_metricsGroup, "engine_accept_total", 1, metrics.Dimension{"engine": "ws"})
	if s.cb.OnConnect != nil {
		s.cb.OnConnect(c)
	}
	c.run()
}

// Close stops the http server and drops every connection.
func (s *wsServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	srv := s.srv
	conns := make([]*wsConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Close()
	}
	for _, c := range conns {
		c.abort()
	}
	s.wg.Wait()
	return err
}

type wsClient struct {
	engine *WSEngine
	cb     ClientCallbacks

	mu     sync.Mutex
	state  ConnState
	conn   *wsConn
	closed bool
}

func (c *wsClient) Connect(address string, port int, onResult func(err error)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		onResult(ErrEngineClosed)
		return
	}
	if c.state != StateDisconnected || c.conn != nil {
		c.mu.Unlock()
		onResult(errors.New("ws client already connecting"))
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	cfg := c.engine.cfg.Load()
	go func() {
		hostPort := net.JoinHostPort(address, strconv.Itoa(port))
		ctx, cancel := context.WithTimeout(context.Background(), cfg.dialTimeout())
		ws, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/", hostPort), nil)
		cancel()
		if err != nil {
			c.mu.Lock()
			c.state = StateDisconnected
			c.mu.Unlock()
			onResult(err)
			return
		}

		remote, _ := net.ResolveTCPAddr("tcp", hostPort)
		conn := newWSConn(0, ws, remote, cfg)
		conn.onMessage = c.cb.OnMessage
		conn.onClose = func(isLocal bool, code SocketError) {
			c.mu.Lock()
			c.state = StateDisconnected
			c.mu.Unlock()
			if c.cb.OnDisconnect != nil {
				c.cb.OnDisconnect(isLocal, code)
			}
		}

		c.mu.Lock()
		if c.closed {
			c.state = StateDisconnected
			c.mu.Unlock()
			_ = ws.Close(websocket.StatusGoingAway, "client closed")
			onResult(ErrEngineClosed)
			return
		}
		c.conn = conn
		c.state = StateConnected
		c.mu.Unlock()

		onResult(nil)
		conn.run()
	}()
}

func (c *wsClient) State() ConnState {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if conn != nil && state == StateConnected {
		return conn.State()
	}
	return state
}

func (c *wsClient) Send(payload []byte, mode SendMode) bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return false
	}
	return conn.Send(payload, mode)
}

func (c *wsClient) Disconnect() bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return false
	}
	return conn.Disconnect()
}

func (c *wsClient) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.abort()
	}
	return nil
}
