package net

import (
	"bufio"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lcx/rift/log"
	"github.com/lcx/rift/metrics"
)

// TCPEngine is a stream engine that frames messages over TCP. Every
// connection owns one receive and one send goroutine.
type TCPEngine struct {
	cfg    atomic.Pointer[TransportCfg]
	nextID atomic.Int64
}

var (
	_ Engine           = (*TCPEngine)(nil)
	_ ReloadableEngine = (*TCPEngine)(nil)
)

// NewTCPEngine creates a TCP engine. A nil cfg uses DefaultTransportCfg.
func NewTCPEngine(cfg *TransportCfg) *TCPEngine {
	if cfg == nil {
		cfg = DefaultTransportCfg()
	}
	e := &TCPEngine{}
	e.cfg.Store(cfg)
	return e
}

// Name implements Engine.
func (e *TCPEngine) Name() string {
	return "tcp"
}

// Reload implements ReloadableEngine.
func (e *TCPEngine) Reload(cfg *TransportCfg) {
	if cfg != nil {
		e.cfg.Store(cfg)
	}
}

// NewClient implements Engine.
func (e *TCPEngine) NewClient(cb ClientCallbacks) ClientEngine {
	return &tcpClient{engine: e, cb: cb}
}

// NewServer implements Engine.
func (e *TCPEngine) NewServer(cb ServerCallbacks) ServerEngine {
	return &tcpServer{
		engine: e,
		cb:     cb,
		conns:  make(map[ConnID]*tcpConn),
	}
}

// tcpConn is one framed TCP connection. Its receive goroutine owns the
// callbacks, so onMessage and onClose never overlap.
type tcpConn struct {
	id     ConnID
	conn   net.Conn
	cfg    *TransportCfg
	state  atomic.Uint32
	sendCh chan []byte

	closed     chan struct{}
	closeOnce  sync.Once
	failErr    error
	localClose atomic.Bool

	recvLimit *recvLimiter
	sendPace  *sendPacer

	lastReadTime  time.Time
	lastWriteTime time.Time

	onMessage func(payload []byte)
	onClose   func(isLocal bool, code SocketError)
}

func newTCPConn(id ConnID, conn net.Conn, cfg *TransportCfg) *tcpConn {
	c := &tcpConn{
		id:        id,
		conn:      conn,
		cfg:       cfg,
		sendCh:    make(chan []byte, cfg.SendChannelSize),
		closed:    make(chan struct{}),
		recvLimit: newRecvLimiter(cfg.RecvRateLimit, cfg.RecvBurst),
		sendPace:  newSendPacer(cfg.SendRateLimit),
	}
	c.state.Store(uint32(StateConnected))
	return c
}

func (c *tcpConn) ID() ConnID {
	return c.id
}

func (c *tcpConn) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *tcpConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send frames payload and queues it for the send goroutine. When the queue
// is full an unreliable frame is dropped and a reliable one is refused.
func (c *tcpConn) Send(payload []byte, mode SendMode) bool {
	if c.State() != StateConnected {
		return false
	}
	if len(payload) > c.cfg.MaxFrameSize {
		return false
	}

	frame := appendFrame(make([]byte, 0, len(payload)+maxVarintLen+1), mode, payload)
	select {
	case <-c.closed:
		return false
	case c.sendCh <- frame:
		return true
	default:
	}

	if mode == Unreliable {
		metrics.IncrCounterWithGroup(_metricsGroup, "unreliable_dropped_total", 1)
		return true
	}
	return false
}

// Disconnect closes the connection from this side.
func (c *tcpConn) Disconnect() bool {
	if !c.state.CompareAndSwap(uint32(StateConnected), uint32(StateDisconnecting)) {
		return false
	}
	c.localClose.Store(true)
	c.fail(nil)
	return true
}

// fail closes the socket once, remembering the first cause.
func (c *tcpConn) fail(err error) {
	c.closeOnce.Do(func() {
		c.failErr = err
		close(c.closed)
		_ = c.conn.Close()
	})
}

func (c *tcpConn) serve() {
	go c.serveSend()
	go c.serveRecv()
}

func (c *tcpConn) serveRecv() {
	var err error
	defer func() {
		c.fail(err)
		c.state.Store(uint32(StateDisconnected))

		isLocal := c.localClose.Load()
		code := SocketErrorSuccess
		if !isLocal {
			code = SocketErrorFromErr(c.failErr)
		}
		if c.onClose != nil {
			c.onClose(isLocal, code)
		}
	}()

	r := bufio.NewReaderSize(c.conn, 4096)
	for {
		c.setReadDeadline()

		var payload []byte
		_, payload, err = readFrame(r, c.cfg.MaxFrameSize)
		if err != nil {
			if errors.Is(err, ErrFrameTooLarge) {
				log.Warn().Int64("conn", int64(c.id)).Err(err).Msg("tcp frame rejected")
			}
			return
		}

		if !c.recvLimit.Allow() {
			metrics.IncrCounterWithGroup(_metricsGroup, "recv_rate_limited_total", 1)
			continue
		}
		if c.onMessage != nil {
			c.onMessage(payload)
		}
	}
}

func (c *tcpConn) serveSend() {
	for {
		select {
		case <-c.closed:
			return
		case frame := <-c.sendCh:
			c.sendPace.Take()
			c.setWriteDeadline()
			if _, err := c.conn.Write(frame); err != nil {
				c.fail(err)
				return
			}
		}
	}
}

// deadline refresh is throttled to half the idle timeout
func (c *tcpConn) setReadDeadline() {
	idle := c.cfg.idleTimeout()
	if idle <= 0 {
		return
	}
	n := time.Now()
	if n.Sub(c.lastReadTime) > idle/2 {
		c.lastReadTime = n
		_ = c.conn.SetReadDeadline(n.Add(idle))
	}
}

func (c *tcpConn) setWriteDeadline() {
	idle := c.cfg.idleTimeout()
	if idle <= 0 {
		return
	}
	n := time.Now()
	if n.Sub(c.lastWriteTime) > idle/2 {
		c.lastWriteTime = n
		_ = c.conn.SetWriteDeadline(n.Add(idle))
	}
}

type tcpServer struct {
	engine *TCPEngine
	cb     ServerCallbacks

	mu     sync.Mutex
	ln     net.Listener
	conns  map[ConnID]*tcpConn
	closed bool
	wg     sync.WaitGroup
}

// Listen implements ServerEngine.
func (s *tcpServer) Listen(bindAddr string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrEngineClosed
	}
	if s.ln != nil {
		return errors.New("tcp server already listening")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(bindAddr, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	s.ln = ln

	s.wg.Add(1)
	go s.serve(ln)
	return nil
}

// Addr implements ServerEngine.
func (s *tcpServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *tcpServer) serve(ln net.Listener) {
	defer s.wg.Done()

	for {
		nc, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if !errors.Is(err, net.ErrClosed) {
				log.Error().Err(err).Msg("tcp accept failed")
			}
			return
		}

		cfg := s.engine.cfg.Load()
		c := newTCPConn(ConnID(s.engine.nextID.Add(1)), nc, cfg)
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
			s.wg.Done()
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = nc.Close()
			return
		}
		s.conns[c.id] = c
		s.wg.Add(1)
		s.mu.Unlock()

		metrics.IncrCounterWithDimGroup(_metricsGroup, "engine_accept_total", 1, metrics.Dimension{"engine": "tcp"})
		if s.cb.OnConnect != nil {
			s.cb.OnConnect(c)
		}
		c.serve()
	}
}

// Close implements ServerEngine. It returns once every connection goroutine
// has reported its disconnect.
func (s *tcpServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	conns := make([]*tcpConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Disconnect()
	}
	s.wg.Wait()
	return err
}

type tcpClient struct {
	engine *TCPEngine
	cb     ClientCallbacks

	mu     sync.Mutex
	state  ConnState
	conn   *tcpConn
	closed bool
}

// Connect implements ClientEngine.
func (c *tcpClient) Connect(address string, port int, onResult func(err error)) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		onResult(ErrEngineClosed)
		return
	}
	if c.state != StateDisconnected || c.conn != nil {
		c.mu.Unlock()
		onResult(errors.New("tcp client already connecting"))
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	cfg := c.engine.cfg.Load()
	go func() {
		d := net.Dialer{Timeout: cfg.dialTimeout()}
		nc, err := d.Dial("tcp", net.JoinHostPort(address, strconv.Itoa(port)))
		if err != nil {
			c.mu.Lock()
			c.state = StateDisconnected
			c.mu.Unlock()
			onResult(err)
			return
		}

		conn := newTCPConn(0, nc, cfg)
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
			_ = nc.Close()
			onResult(ErrEngineClosed)
			return
		}
		c.conn = conn
		c.state = StateConnected
		c.mu.Unlock()

		onResult(nil)
		conn.serve()
	}()
}

// State implements ClientEngine.
func (c *tcpClient) State() ConnState {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if conn != nil && state == StateConnected {
		return conn.State()
	}
	return state
}

// Send implements ClientEngine.
func (c *tcpClient) Send(payload []byte, mode SendMode) bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return false
	}
	return conn.Send(payload, mode)
}

// Disconnect implements ClientEngine.
func (c *tcpClient) Disconnect() bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return false
	}
	return conn.Disconnect()
}

// Close implements ClientEngine.
func (c *tcpClient) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		conn.Disconnect()
	}
	return nil
}

func splitHostPort(addr string) (string, int, error) {
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
