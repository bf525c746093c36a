package plugin

import (
	"testing"
	"time"

	"github.com/lcx/rift/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFactories(t *testing.T) {
	factories := ListFactories(Transport)
	assert.Contains(t, factories, "tcp")
	assert.Contains(t, factories, "ws")
}

func TestBuildUnknown(t *testing.T) {
	_, err := Build("carrier-pigeon", nil)
	assert.ErrorIs(t, err, ErrFactoryNotFound)
}

func TestBuildRejectsBadConfig(t *testing.T) {
	_, err := Build("tcp", map[string]any{"bindAddr": "127.0.0.1", "bogus": 1})
	assert.Error(t, err)

	_, err = Build("tcp", map[string]any{"sendChannelSize": 0})
	assert.Error(t, err)
}

func TestBuildDecodesConfig(t *testing.T) {
	tr, err := Build("ws", map[string]any{
		"bindAddr":              "127.0.0.1",
		"defaultMaxConnections": "3",
		"recvRateLimit":         100,
		"recvBurst":             10,
	})
	require.NoError(t, err)
	defer tr.Destroy()

	rt := tr.(*net.RiftTransport)
	assert.Equal(t, "ws", rt.FactoryName())
	assert.Equal(t, "ws", rt.Config().Engine)
	assert.Equal(t, 3, rt.Config().DefaultMaxConnections)
	assert.Equal(t, uint32(256), rt.Config().SendChannelSize, "unset keys keep defaults")
}

func TestBuiltTransportsTalk(t *testing.T) {
	for _, name := range []string{"tcp", "ws"} {
		t.Run(name, func(t *testing.T) {
			server, err := Build(name, map[string]any{"bindAddr": "127.0.0.1"})
			require.NoError(t, err)
			defer server.Destroy()
			require.True(t, server.StartServer(0, 1))
			port := server.(*net.RiftTransport).ServerPort()

			client, err := Build(name, nil)
			require.NoError(t, err)
			defer client.Destroy()
			require.True(t, client.StartClient("localhost", port))

			require.Eventually(t, func() bool {
				ev, ok := client.ClientReceive()
				return ok && ev.Type == net.EventConnect
			}, 5*time.Second, 5*time.Millisecond)
			require.True(t, client.ClientSend(net.ReliableOrdered, []byte("ping")))

			var got net.Event
			require.Eventually(t, func() bool {
				ev, ok := server.ServerReceive()
				if ok && ev.Type == net.EventData {
					got = ev
					return true
				}
				return false
			}, 5*time.Second, 5*time.Millisecond)
			assert.Equal(t, []byte("ping"), got.Payload)
		})
	}
}

func TestTransportFactoryLifecycle(t *testing.T) {
	f := getFactory(Transport, "tcp")
	require.NotNil(t, f)

	p, err := f.Setup(map[string]any{"bindAddr": "127.0.0.1"})
	require.NoError(t, err)
	rt := p.(*net.RiftTransport)
	assert.True(t, f.CanDelete(p))

	require.NoError(t, f.Reload(p, map[string]any{"bindAddr": "127.0.0.1", "defaultMaxConnections": 5}))
	assert.Equal(t, 5, rt.Config().DefaultMaxConnections)
	assert.Error(t, f.Reload(p, map[string]any{"maxFrameSize": -1}))
	assert.Equal(t, 5, rt.Config().DefaultMaxConnections)

	require.True(t, rt.StartServer(0, 0))
	require.NoError(t, f.Destroy(p, nil))
	assert.False(t, rt.IsServerStarted())
}
