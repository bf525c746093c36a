package net

import (
	"fmt"
	"time"
)

// TransportCfg configures a RiftTransport and its engine. It is loaded by
// the config manager under the name "rift_transport".
type TransportCfg struct {
	Tag string `mapstructure:"tag"`
	// Engine selects the backend registered with the plugin package ("tcp", "ws").
	Engine string `mapstructure:"engine"`
	// BindAddr is the address servers listen on.
	BindAddr string `mapstructure:"bindAddr"`
	// DefaultMaxConnections applies when StartServer is given a non-positive bound.
	DefaultMaxConnections int `mapstructure:"defaultMaxConnections"`
	// SendChannelSize is the number of outgoing frames buffered per connection.
	SendChannelSize uint32 `mapstructure:"sendChannelSize"`
	// MaxFrameSize is the largest accepted payload in bytes.
	MaxFrameSize int `mapstructure:"maxFrameSize"`
	// IdleTimeoutMs closes connections without inbound traffic. 0 disables it.
	IdleTimeoutMs uint32 `mapstructure:"idleTimeoutMs"`
	// DialTimeoutMs bounds client connection establishment.
	DialTimeoutMs uint32 `mapstructure:"dialTimeoutMs"`
	// RecvRateLimit caps inbound messages per second per connection. 0 disables it.
	RecvRateLimit int `mapstructure:"recvRateLimit"`
	RecvBurst     int `mapstructure:"recvBurst"`
	// SendRateLimit paces outbound frames per second per connection. 0 disables it.
	SendRateLimit int `mapstructure:"sendRateLimit"`
}

// DefaultTransportCfg returns the settings used when no configuration file is present.
func DefaultTransportCfg() *TransportCfg {
	return &TransportCfg{
		Engine:                "tcp",
		BindAddr:              "0.0.0.0",
		DefaultMaxConnections: 64,
		SendChannelSize:       256,
		MaxFrameSize:          64 * 1024,
		DialTimeoutMs:         5000,
	}
}

// GetName returns the configuration name for TransportCfg
func (c *TransportCfg) GetName() string {
	return "rift_transport"
}

// Validate validates the TransportCfg parameters
func (c *TransportCfg) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("bindAddr cannot be empty")
	}
	if c.DefaultMaxConnections <= 0 {
		return fmt.Errorf("defaultMaxConnections must be positive")
	}
	if c.SendChannelSize == 0 {
		return fmt.Errorf("sendChannelSize must be positive")
	}
	if c.MaxFrameSize <= 0 {
		return fmt.Errorf("maxFrameSize must be positive")
	}
	if c.RecvRateLimit < 0 || c.SendRateLimit < 0 {
		return fmt.Errorf("rate limits cannot be negative")
	}
	if c.RecvRateLimit > 0 && c.RecvBurst <= 0 {
		return fmt.Errorf("recvBurst must be positive when recvRateLimit is set")
	}
	return nil
}

func (c *TransportCfg) idleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMs) * time.Millisecond
}

func (c *TransportCfg) dialTimeout() time.Duration {
	if c.DialTimeoutMs == 0 {
		return 5 * time.Second
	}
	return time.Duration(c.DialTimeoutMs) * time.Millisecond
}
