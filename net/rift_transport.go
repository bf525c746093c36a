package net

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/lcx/rift/config"
	"github.com/lcx/rift/log"
	"github.com/lcx/rift/metrics"
)

const _metricsGroup = "net"

// session states, one per role
const (
	sessionStopped int32 = iota
	sessionStarting
	sessionStarted
	sessionStopping
)

// RiftTransport drives a callback-based Engine and exposes it through the
// poll-based Transport contract. Engine callbacks only touch the event
// queues and the connection table; everything else runs on the game loop.
type RiftTransport struct {
	cfg    atomic.Pointer[TransportCfg]
	engine Engine

	clientState atomic.Int32
	serverState atomic.Int32

	// sessMu guards client and server. It is never held across engine calls
	// that may block.
	sessMu sync.RWMutex
	client ClientEngine
	server ServerEngine

	clientQueue *EventQueue
	serverQueue *EventQueue
	peers       *ConnTable
}

var _ Transport = (*RiftTransport)(nil)

// NewRiftTransport creates a transport on top of engine.
func NewRiftTransport(engine Engine, cfg *TransportCfg) (*RiftTransport, error) {
	if engine == nil {
		return nil, errors.New("engine cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultTransportCfg()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rift_transport config: %w", err)
	}

	t := &RiftTransport{
		engine:      engine,
		clientQueue: NewEventQueue(),
		serverQueue: NewEventQueue(),
		peers:       NewConnTable(cfg.DefaultMaxConnections),
	}
	t.cfg.Store(cfg)
	if re, ok := engine.(ReloadableEngine); ok {
		re.Reload(cfg)
	}
	return t, nil
}

// NewRiftTransportWithConfigManager loads "rift_transport" from configManager
// and follows its hot reloads.
func NewRiftTransportWithConfigManager(engine Engine, configManager config.ConfigManager) (*RiftTransport, error) {
	if configManager == nil {
		return nil, errors.New("configManager cannot be nil")
	}

	cfg := DefaultTransportCfg()
	if err := configManager.LoadConfig(cfg.GetName(), cfg); err != nil {
		return nil, fmt.Errorf("failed to load rift_transport config: %w", err)
	}

	t, err := NewRiftTransport(engine, cfg)
	if err != nil {
		return nil, err
	}
	configManager.AddChangeListener(t)
	return t, nil
}

// OnConfigChanged applies a reloaded TransportCfg. Running sessions keep
// their settings; new sessions pick up the new ones.
func (t *RiftTransport) OnConfigChanged(configName string, newConfig, oldConfig config.Config) error {
	if configName != t.GetConfigName() {
		return nil
	}

	newCfg, ok := newConfig.(*TransportCfg)
	if !ok {
		return fmt.Errorf("invalid configuration type for RiftTransport: %T", newConfig)
	}
	if err := newCfg.Validate(); err != nil {
		return fmt.Errorf("invalid rift_transport configuration: %w", err)
	}

	t.cfg.Store(newCfg)
	if re, ok := t.engine.(ReloadableEngine); ok {
		re.Reload(newCfg)
	}

	log.Info().Str("configName", configName).Str("engine", t.engine.Name()).
		Msg("rift transport configuration updated")
	return nil
}

// GetConfigName implements config.ConfigChangeListener.
func (t *RiftTransport) GetConfigName() string {
	return "rift_transport"
}

// FactoryName returns the name of the engine backing this transport.
func (t *RiftTransport) FactoryName() string {
	return t.engine.Name()
}

// Config returns the configuration in effect.
func (t *RiftTransport) Config() *TransportCfg {
	return t.cfg.Load()
}

// StartClient implements Transport.
func (t *RiftTransport) StartClient(address string, port int) bool {
	if !t.clientState.CompareAndSwap(sessionStopped, sessionStarting) {
		return false
	}

	gen := t.clientQueue.Reset()
	if address == "localhost" {
		address = "127.0.0.1"
	}

	cli := t.engine.NewClient(ClientCallbacks{
		OnDisconnect: func(isLocal bool, code SocketError) {
			t.onClientDisconnect(gen, isLocal, code)
		},
		OnMessage: func(payload []byte) {
			t.enqueue(t.clientQueue, gen, Event{Type: EventData, Payload: payload})
		},
	})

	t.sessMu.Lock()
	t.client = cli
	t.sessMu.Unlock()
	t.clientState.Store(sessionStarted)

	metrics.IncrCounterWithDimGroup(_metricsGroup, "session_start_total", 1, metrics.Dimension{"role": RoleClient.String()})
	log.Info().Str("engine", t.engine.Name()).Str("addr", address).Int("port", port).Msg("client starting")

	cli.Connect(address, port, func(err error) {
		t.onClientConnectResult(gen, address, port, err)
	})
	return true
}

func (t *RiftTransport) onClientConnectResult(gen uint64, address string, port int, err error) {
	if err == nil {
		t.enqueue(t.clientQueue, gen, Event{Type: EventConnect})
		return
	}

	code := SocketErrorFromErr(err)
	if code == SocketErrorGeneric || code == SocketErrorSuccess {
		code = SocketErrorConnectionRefused
	}
	log.Warn().Str("addr", address).Int("port", port).Str("socketErr", code.String()).Err(err).
		Msg("client connect failed")
	metrics.IncrCounterWithDimGroup(_metricsGroup, "connect_failure_total", 1, metrics.Dimension{"socket_error": code.String()})
	t.enqueue(t.clientQueue, gen, Event{Type: EventError, SocketErr: code})
}

func (t *RiftTransport) onClientDisconnect(gen uint64, isLocal bool, code SocketError) {
	ev := ClassifyDisconnect(0, isLocal, code)
	if t.enqueue(t.clientQueue, gen, ev) {
		metrics.IncrCounterWithDimGroup(_metricsGroup, "disconnect_total", 1, metrics.Dimension{"role": RoleClient.String(), "reason": ev.Reason.String()})
	}
}

// StartServer implements Transport. A non-positive maxConnections falls
// back to the configured default.
func (t *RiftTransport) StartServer(port int, maxConnections int) bool {
	if !t.serverState.CompareAndSwap(sessionStopped, sessionStarting) {
		return false
	}

	cfg := t.cfg.Load()
	if maxConnections <= 0 {
		maxConnections = cfg.DefaultMaxConnections
	}

	gen := t.serverQueue.Reset()
	for _, p := range t.peers.Clear() {
		p.Disconnect()
	}
	t.peers.SetMax(maxConnections)

	srv := t.engine.NewServer(ServerCallbacks{
		OnConnect: func(p Peer) {
			t.onPeerConnect(gen, p)
		},
		OnDisconnect: func(id ConnID, isLocal bool, code SocketError) {
			t.onPeerDisconnect(gen, id, isLocal, code)
		},
		OnMessage: func(id ConnID, payload []byte) {
			t.onPeerMessage(gen, id, payload)
		},
	})

	if err := srv.Listen(cfg.BindAddr, port); err != nil {
		log.Error().Str("engine", t.engine.Name()).Str("bindAddr", cfg.BindAddr).Int("port", port).Err(err).
			Msg("server listen failed")
		metrics.IncrCounterWithDimGroup(_metricsGroup, "session_start_error_total", 1, metrics.Dimension{"role": RoleServer.String()})
		if cerr := srv.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("close server after listen failure")
		}
		t.serverQueue.Reset()
		t.serverState.Store(sessionStopped)
		return false
	}

	t.sessMu.Lock()
	t.server = srv
	t.sessMu.Unlock()
	t.serverState.Store(sessionStarted)

	metrics.IncrCounterWithDimGroup(_metricsGroup, "session_start_total", 1, metrics.Dimension{"role": RoleServer.String()})
	log.Info().Str("engine", t.engine.Name()).Str("bindAddr", cfg.BindAddr).Int("port", port).
		Int("maxConnections", maxConnections).Msg("server started")
	return true
}

func (t *RiftTransport) onPeerConnect(gen uint64, p Peer) {
	if t.serverQueue.Generation() != gen {
		metrics.IncrCounterWithGroup(_metricsGroup, "stale_event_dropped_total", 1)
		p.Disconnect()
		return
	}

	if !t.peers.Admit(p) {
		metrics.IncrCounterWithGroup(_metricsGroup, "connection_rejected_total", 1)
		log.Debug().Int64("conn", int64(p.ID())).Int("max", t.peers.Max()).Msg("connection rejected at capacity")
		return
	}

	if !t.enqueue(t.serverQueue, gen, Event{Type: EventConnect, ConnID: p.ID()}) {
		// stopped between admission and enqueue
		t.peers.Remove(p.ID())
		p.Disconnect()
		return
	}

	metrics.IncrCounterWithGroup(_metricsGroup, "connection_admitted_total", 1)
	metrics.UpdateGaugeWithGroup(_metricsGroup, "current_peers", metrics.Value(t.peers.Len()))
}

func (t *RiftTransport) onPeerDisconnect(gen uint64, id ConnID, isLocal bool, code SocketError) {
	if t.serverQueue.Generation() != gen {
		metrics.IncrCounterWithGroup(_metricsGroup, "stale_event_dropped_total", 1)
		return
	}
	if t.peers.TakeRejected(id) {
		return
	}

	t.peers.Remove(id)
	ev := ClassifyDisconnect(id, isLocal, code)
	if t.enqueue(t.serverQueue, gen, ev) {
		metrics.IncrCounterWithDimGroup(_metricsGroup, "disconnect_total", 1, metrics.Dimension{"role": RoleServer.String(), "reason": ev.Reason.String()})
		metrics.UpdateGaugeWithGroup(_metricsGroup, "current_peers", metrics.Value(t.peers.Len()))
	}
}

func (t *RiftTransport) onPeerMessage(gen uint64, id ConnID, payload []byte) {
	// peers refused at admission never surface data
	if _, ok := t.peers.Get(id); !ok {
		return
	}
	t.enqueue(t.serverQueue, gen, Event{Type: EventData, ConnID: id, Payload: payload})
}

func (t *RiftTransport) enqueue(q *EventQueue, gen uint64, ev Event) bool {
	if q.EnqueueGen(gen, ev) {
		return true
	}
	metrics.IncrCounterWithGroup(_metricsGroup, "stale_event_dropped_total", 1)
	log.Trace().Obj("event", &ev).Uint64("gen", gen).Msg("dropped event from stopped session")
	return false
}

// ClientSend implements Transport.
func (t *RiftTransport) ClientSend(mode DeliveryMode, payload []byte) bool {
	if len(payload) == 0 || t.clientState.Load() != sessionStarted {
		return false
	}

	t.sessMu.RLock()
	cli := t.client
	t.sessMu.RUnlock()
	if cli == nil || cli.State() != StateConnected {
		return false
	}

	if !cli.Send(payload, MapDeliveryMode(mode)) {
		metrics.IncrCounterWithDimGroup(_metricsGroup, "send_failure_total", 1, metrics.Dimension{"role": RoleClient.String()})
		return false
	}
	return true
}

// ServerSend implements Transport.
func (t *RiftTransport) ServerSend(id ConnID, mode DeliveryMode, payload []byte) bool {
	if len(payload) == 0 || t.serverState.Load() != sessionStarted {
		return false
	}
	if !t.peers.Send(id, payload, MapDeliveryMode(mode)) {
		metrics.IncrCounterWithDimGroup(_metricsGroup, "send_failure_total", 1, metrics.Dimension{"role": RoleServer.String()})
		return false
	}
	return true
}

// Receive implements Transport.
func (t *RiftTransport) Receive(role Role) (Event, bool) {
	if role == RoleClient {
		return t.ClientReceive()
	}
	return t.ServerReceive()
}

// ClientReceive implements Transport.
func (t *RiftTransport) ClientReceive() (Event, bool) {
	return t.clientQueue.TryDequeue()
}

// ServerReceive implements Transport.
func (t *RiftTransport) ServerReceive() (Event, bool) {
	return t.serverQueue.TryDequeue()
}

// ServerDisconnect implements Transport. The peer's Disconnect event is
// still delivered, classified as a local disconnect.
func (t *RiftTransport) ServerDisconnect(id ConnID) bool {
	if t.serverState.Load() != sessionStarted {
		return false
	}
	if !t.peers.Disconnect(id) {
		return false
	}
	metrics.UpdateGaugeWithGroup(_metricsGroup, "current_peers", metrics.Value(t.peers.Len()))
	return true
}

// StopClient implements Transport. Stopping a stopped client does nothing.
func (t *RiftTransport) StopClient() {
	if !t.clientState.CompareAndSwap(sessionStarted, sessionStopping) {
		return
	}

	t.sessMu.Lock()
	cli := t.client
	t.client = nil
	t.sessMu.Unlock()

	t.clientQueue.Reset()
	if cli != nil {
		cli.Disconnect()
		if err := cli.Close(); err != nil {
			log.Warn().Str("engine", t.engine.Name()).Err(err).Msg("close client engine")
		}
	}

	t.clientState.Store(sessionStopped)
	metrics.IncrCounterWithDimGroup(_metricsGroup, "session_stop_total", 1, metrics.Dimension{"role": RoleClient.String()})
	log.Info().Str("engine", t.engine.Name()).Msg("client stopped")
}

// StopServer implements Transport. Stopping a stopped server does nothing.
func (t *RiftTransport) StopServer() {
	if !t.serverState.CompareAndSwap(sessionStarted, sessionStopping) {
		return
	}

	t.sessMu.Lock()
	srv := t.server
	t.server = nil
	t.sessMu.Unlock()

	t.serverQueue.Reset()
	peers := t.peers.Clear()
	for _, p := range peers {
		p.Disconnect()
	}
	if srv != nil {
		if err := srv.Close(); err != nil {
			log.Warn().Str("engine", t.engine.Name()).Err(err).Msg("close server engine")
		}
	}

	t.serverState.Store(sessionStopped)
	metrics.IncrCounterWithDimGroup(_metricsGroup, "session_stop_total", 1, metrics.Dimension{"role": RoleServer.String()})
	metrics.UpdateGaugeWithGroup(_metricsGroup, "current_peers", 0)
	log.Info().Str("engine", t.engine.Name()).Int("peers", len(peers)).Msg("server stopped")
}

// Destroy stops both roles.
func (t *RiftTransport) Destroy() {
	t.StopClient()
	t.StopServer()
}

// IsClientStarted implements Transport.
func (t *RiftTransport) IsClientStarted() bool {
	return t.clientState.Load() == sessionStarted
}

// IsClientConnected reports whether the client session reached the server.
func (t *RiftTransport) IsClientConnected() bool {
	if !t.IsClientStarted() {
		return false
	}
	t.sessMu.RLock()
	cli := t.client
	t.sessMu.RUnlock()
	return cli != nil && cli.State() == StateConnected
}

// IsServerStarted implements Transport.
func (t *RiftTransport) IsServerStarted() bool {
	return t.serverState.Load() == sessionStarted
}

// ServerAddr returns the listening address of a started server.
func (t *RiftTransport) ServerAddr() string {
	t.sessMu.RLock()
	srv := t.server
	t.sessMu.RUnlock()
	if srv == nil || srv.Addr() == nil {
		return ""
	}
	return srv.Addr().String()
}

// ServerPort returns the bound port of a started server, or 0.
func (t *RiftTransport) ServerPort() int {
	t.sessMu.RLock()
	srv := t.server
	t.sessMu.RUnlock()
	if srv == nil || srv.Addr() == nil {
		return 0
	}
	_, port, err := splitHostPort(srv.Addr().String())
	if err != nil {
		return 0
	}
	return port
}

// ServerPeerCount implements Transport.
func (t *RiftTransport) ServerPeerCount() int {
	return t.peers.Len()
}

// ServerMaxConnections implements Transport.
func (t *RiftTransport) ServerMaxConnections() int {
	return t.peers.Max()
}

// HasImplementedPing implements Transport.
func (t *RiftTransport) HasImplementedPing() bool {
	return false
}

// ClientRtt implements Transport.
func (t *RiftTransport) ClientRtt() (int64, error) {
	return 0, ErrRttNotSupported
}

// ServerRtt implements Transport.
func (t *RiftTransport) ServerRtt(id ConnID) (int64, error) {
	return 0, fmt.Errorf("conn %s: %w", strconv.FormatInt(int64(id), 10), ErrRttNotSupported)
}
