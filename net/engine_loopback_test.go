package net

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	_waitFor = 5 * time.Second
	_tick    = 5 * time.Millisecond
)

func loopbackCfg() *TransportCfg {
	cfg := DefaultTransportCfg()
	cfg.BindAddr = "127.0.0.1"
	cfg.DialTimeoutMs = 2000
	return cfg
}

func waitEvent(t *testing.T, tr Transport, role Role) Event {
	t.Helper()
	var ev Event
	require.Eventually(t, func() bool {
		var ok bool
		ev, ok = tr.Receive(role)
		return ok
	}, _waitFor, _tick)
	return ev
}

func startLoopbackServer(t *testing.T, eng Engine, maxConns int) *RiftTransport {
	t.Helper()
	tr, err := NewRiftTransport(eng, loopbackCfg())
	require.NoError(t, err)
	require.True(t, tr.StartServer(0, maxConns))
	require.NotZero(t, tr.ServerPort())
	t.Cleanup(tr.Destroy)
	return tr
}

func connectLoopbackClient(t *testing.T, eng Engine, port int) *RiftTransport {
	t.Helper()
	tr, err := NewRiftTransport(eng, loopbackCfg())
	require.NoError(t, err)
	require.True(t, tr.StartClient("localhost", port))
	t.Cleanup(tr.Destroy)

	ev := waitEvent(t, tr, RoleClient)
	require.Equal(t, EventConnect, ev.Type)
	require.True(t, tr.IsClientConnected())
	return tr
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// runEngineLoopback exercises one engine end to end through RiftTransport.
func runEngineLoopback(t *testing.T, newEngine func(cfg *TransportCfg) Engine) {
	t.Run("ReliableOrderedRoundTrip", func(t *testing.T) {
		server := startLoopbackServer(t, newEngine(loopbackCfg()), 4)
		client := connectLoopbackClient(t, newEngine(loopbackCfg()), server.ServerPort())

		connect := waitEvent(t, server, RoleServer)
		require.Equal(t, EventConnect, connect.Type)
		require.NotZero(t, connect.ConnID)

		payload := []byte("0123456789")
		require.True(t, client.ClientSend(ReliableOrdered, payload))

		ev := waitEvent(t, server, RoleServer)
		assert.Equal(t, EventData, ev.Type)
		assert.Equal(t, connect.ConnID, ev.ConnID)
		assert.Equal(t, payload, ev.Payload)

		reply := bytes.Repeat([]byte{0x5a}, 4096)
		require.True(t, server.ServerSend(connect.ConnID, Sequenced, reply))
		ev = waitEvent(t, client, RoleClient)
		assert.Equal(t, EventData, ev.Type)
		assert.Equal(t, reply, ev.Payload)
	})

	t.Run("PayloadsArriveInOrder", func(t *testing.T) {
		server := startLoopbackServer(t, newEngine(loopbackCfg()), 4)
		client := connectLoopbackClient(t, newEngine(loopbackCfg()), server.ServerPort())
		waitEvent(t, server, RoleServer)

		sizes := []int{1, 2, 127, 128, 16384, 60000}
		for i, n := range sizes {
			p := bytes.Repeat([]byte{byte(i + 1)}, n)
			require.True(t, client.ClientSend(ReliableUnordered, p))
		}
		for i, n := range sizes {
			ev := waitEvent(t, server, RoleServer)
			require.Equal(t, EventData, ev.Type)
			assert.Equal(t, bytes.Repeat([]byte{byte(i + 1)}, n), ev.Payload)
		}
	})

	t.Run("MaxConnectionsOne", func(t *testing.T) {
		server := startLoopbackServer(t, newEngine(loopbackCfg()), 1)
		connectLoopbackClient(t, newEngine(loopbackCfg()), server.ServerPort())

		ev := waitEvent(t, server, RoleServer)
		require.Equal(t, EventConnect, ev.Type)

		b, err := NewRiftTransport(newEngine(loopbackCfg()), loopbackCfg())
		require.NoError(t, err)
		t.Cleanup(b.Destroy)
		require.True(t, b.StartClient("127.0.0.1", server.ServerPort()))

		// B reaches the listener and is dropped by admission control
		require.Eventually(t, func() bool {
			ev, ok := b.ClientReceive()
			return ok && (ev.Type == EventDisconnect || ev.Type == EventError)
		}, _waitFor, _tick)

		assert.Never(t, func() bool {
			_, ok := server.ServerReceive()
			return ok
		}, 200*time.Millisecond, 10*time.Millisecond)
		assert.Equal(t, 1, server.ServerPeerCount())
	})

	t.Run("ServerKick", func(t *testing.T) {
		server := startLoopbackServer(t, newEngine(loopbackCfg()), 4)
		client := connectLoopbackClient(t, newEngine(loopbackCfg()), server.ServerPort())
		connect := waitEvent(t, server, RoleServer)

		require.True(t, server.ServerDisconnect(connect.ConnID))
		assert.Equal(t, 0, server.ServerPeerCount())

		ev := waitEvent(t, server, RoleServer)
		assert.Equal(t, EventDisconnect, ev.Type)
		assert.Equal(t, ReasonLocalDisconnect, ev.Reason)

		ev = waitEvent(t, client, RoleClient)
		assert.Equal(t, EventDisconnect, ev.Type)
		assert.Equal(t, ReasonRemoteConnectionClosed, ev.Reason)
		assert.False(t, client.IsClientConnected())
		assert.False(t, client.ClientSend(ReliableOrdered, []byte("x")))
	})

	t.Run("ClientStopReachesServer", func(t *testing.T) {
		server := startLoopbackServer(t, newEngine(loopbackCfg()), 4)
		client := connectLoopbackClient(t, newEngine(loopbackCfg()), server.ServerPort())
		connect := waitEvent(t, server, RoleServer)

		client.StopClient()
		ev := waitEvent(t, server, RoleServer)
		assert.Equal(t, EventDisconnect, ev.Type)
		assert.Equal(t, connect.ConnID, ev.ConnID)
		assert.NotEqual(t, ReasonLocalDisconnect, ev.Reason)

		_, ok := client.ClientReceive()
		assert.False(t, ok, "stopped session surfaces nothing")
	})

	t.Run("ServerStopReachesClient", func(t *testing.T) {
		server := startLoopbackServer(t, newEngine(loopbackCfg()), 4)
		client := connectLoopbackClient(t, newEngine(loopbackCfg()), server.ServerPort())
		waitEvent(t, server, RoleServer)

		server.StopServer()
		assert.False(t, server.IsServerStarted())

		ev := waitEvent(t, client, RoleClient)
		assert.Equal(t, EventDisconnect, ev.Type)
		assert.NotEqual(t, ReasonLocalDisconnect, ev.Reason)
	})

	t.Run("ConnectRefused", func(t *testing.T) {
		client, err := NewRiftTransport(newEngine(loopbackCfg()), loopbackCfg())
		require.NoError(t, err)
		defer client.Destroy()

		require.True(t, client.StartClient("127.0.0.1", freePort(t)))
		ev := waitEvent(t, client, RoleClient)
		assert.Equal(t, EventError, ev.Type)
		assert.Equal(t, SocketErrorConnectionRefused, ev.SocketErr)
		assert.True(t, client.IsClientStarted())
		assert.False(t, client.IsClientConnected())
	})

	t.Run("ListenConflict", func(t *testing.T) {
		server := startLoopbackServer(t, newEngine(loopbackCfg()), 4)

		other, err := NewRiftTransport(newEngine(loopbackCfg()), loopbackCfg())
		require.NoError(t, err)
		assert.False(t, other.StartServer(server.ServerPort(), 4))
		assert.False(t, other.IsServerStarted())
	})
}
