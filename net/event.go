package net

import "github.com/lcx/rift/log"

// ConnID identifies a connection within one session. The client's own
// connection to its server is always 0.
type ConnID int64

// EventType tags a normalized event.
type EventType uint8

const (
	EventConnect EventType = iota
	EventData
	EventDisconnect
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventConnect:
		return "Connect"
	case EventData:
		return "Data"
	case EventDisconnect:
		return "Disconnect"
	case EventError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Event is what the game layer drains once per tick. Payload is only set on
// Data events and Reason only on Disconnect events. SocketErr carries the raw
// engine code for Disconnect and Error events.
type Event struct {
	Type      EventType
	ConnID    ConnID
	Payload   []byte
	Reason    DisconnectReason
	SocketErr SocketError
}

// MarshalLogObj writes the event into a log line.
func (e *Event) MarshalLogObj(le *log.LogEvent) {
	le.Str("type", e.Type.String()).Int64("conn", int64(e.ConnID))
	switch e.Type {
	case EventData:
		le.Int("len", len(e.Payload))
	case EventDisconnect:
		le.Str("reason", e.Reason.String()).Str("socketErr", e.SocketErr.String())
	case EventError:
		le.Str("socketErr", e.SocketErr.String())
	}
}
