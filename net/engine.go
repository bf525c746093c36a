package net

import (
	"errors"
	"net"
)

// ConnState is the engine's view of one connection.
type ConnState uint32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// Peer is one established connection owned by an engine.
type Peer interface {
	ID() ConnID
	State() ConnState
	RemoteAddr() net.Addr
	// Send queues payload and returns at once. True only means the engine
	// accepted the payload.
	Send(payload []byte, mode SendMode) bool
	// Disconnect starts closing the connection. It returns false if the
	// connection is already closing or closed.
	Disconnect() bool
}

// ClientCallbacks are fired by a client engine from its own goroutines.
// Callbacks for one connection are never run concurrently with each other.
type ClientCallbacks struct {
	OnDisconnect func(isLocal bool, code SocketError)
	OnMessage    func(payload []byte)
}

// ServerCallbacks are fired by a server engine from its own goroutines.
// Callbacks for one connection are serialized; callbacks for different
// connections may run concurrently.
type ServerCallbacks struct {
	OnConnect    func(p Peer)
	OnDisconnect func(id ConnID, isLocal bool, code SocketError)
	OnMessage    func(id ConnID, payload []byte)
}

// ClientEngine is a single outgoing connection.
type ClientEngine interface {
	// Connect dials in the background and reports the outcome through
	// onResult exactly once. Messages are only delivered after onResult(nil).
	Connect(address string, port int, onResult func(err error))
	State() ConnState
	Send(payload []byte, mode SendMode) bool
	Disconnect() bool
	// Close releases the engine. A connect still in flight is not cancelled;
	// its completion is reported and the connection dropped.
	Close() error
}

// ServerEngine accepts incoming connections.
type ServerEngine interface {
	Listen(bindAddr string, port int) error
	// Addr returns the bound address once listening.
	Addr() net.Addr
	// Close stops listening and closes every connection.
	Close() error
}

// Engine creates client and server sessions for one network backend.
type Engine interface {
	Name() string
	NewClient(cb ClientCallbacks) ClientEngine
	NewServer(cb ServerCallbacks) ServerEngine
}

// ReloadableEngine picks up a new configuration for sessions created afterwards.
type ReloadableEngine interface {
	Reload(cfg *TransportCfg)
}

// ErrEngineClosed is reported for operations on a closed engine session.
var ErrEngineClosed = errors.New("engine closed")
