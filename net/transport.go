// Package net adapts callback-driven network engines to the poll-based
// transport contract used by the game networking manager.
//
// Engine callbacks are normalized into Events and queued per role; the game
// loop drains at most one Event per Receive call on its own goroutine.
package net

import "errors"

// ErrRttNotSupported is returned by the round trip time queries of
// transports that do not measure latency.
var ErrRttNotSupported = errors.New("rtt not supported by transport")

// Role selects the client or server side of a transport.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// Transport is the poll-based contract the game networking manager drives
// once per tick. All methods are meant to be called from the game loop.
type Transport interface {
	// StartClient begins connecting to address:port. It returns false if a
	// client session is already running. The outcome arrives later as a
	// Connect or Error event.
	StartClient(address string, port int) bool
	// StartServer listens on port admitting at most maxConnections peers.
	StartServer(port int, maxConnections int) bool

	ClientSend(mode DeliveryMode, payload []byte) bool
	ServerSend(id ConnID, mode DeliveryMode, payload []byte) bool

	// Receive returns at most one event for role.
	Receive(role Role) (Event, bool)
	ClientReceive() (Event, bool)
	ServerReceive() (Event, bool)

	// ServerDisconnect kicks a peer.
	ServerDisconnect(id ConnID) bool

	StopClient()
	StopServer()
	Destroy()

	IsClientStarted() bool
	IsServerStarted() bool
	ServerPeerCount() int
	ServerMaxConnections() int

	HasImplementedPing() bool
	ClientRtt() (int64, error)
	ServerRtt(id ConnID) (int64, error)
}
