package net

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"syscall"
)

// SocketError is a raw engine failure code. Values follow the Winsock
// numbering used by the game manager so codes can be logged unchanged.
type SocketError int32

const (
	SocketErrorGeneric            SocketError = -1
	SocketErrorSuccess            SocketError = 0
	SocketErrorNetworkUnreachable SocketError = 10051
	SocketErrorConnectionAborted  SocketError = 10053
	SocketErrorConnectionReset    SocketError = 10054
	SocketErrorTimedOut           SocketError = 10060
	SocketErrorConnectionRefused  SocketError = 10061
	SocketErrorHostUnreachable    SocketError = 10065
)

var _socketErrorNames = map[SocketError]string{
	SocketErrorGeneric:            "SocketError",
	SocketErrorSuccess:            "Success",
	SocketErrorNetworkUnreachable: "NetworkUnreachable",
	SocketErrorConnectionAborted:  "ConnectionAborted",
	SocketErrorConnectionReset:    "ConnectionReset",
	SocketErrorTimedOut:           "TimedOut",
	SocketErrorConnectionRefused:  "ConnectionRefused",
	SocketErrorHostUnreachable:    "HostUnreachable",
}

func (e SocketError) String() string {
	if name, ok := _socketErrorNames[e]; ok {
		return name
	}
	return "SocketError(" + strconv.Itoa(int(e)) + ")"
}

// DisconnectReason is the stable cause reported to the game layer.
type DisconnectReason uint8

const (
	ReasonUnknown DisconnectReason = iota
	ReasonLocalDisconnect
	ReasonConnectionFailed
	ReasonTimeout
	ReasonHostUnreachable
	ReasonNetworkUnreachable
	ReasonRemoteConnectionClosed
	ReasonConnectionRejected
)

var _reasonNames = [...]string{
	ReasonUnknown:                "Unknown",
	ReasonLocalDisconnect:        "LocalDisconnect",
	ReasonConnectionFailed:       "ConnectionFailed",
	ReasonTimeout:                "Timeout",
	ReasonHostUnreachable:        "HostUnreachable",
	ReasonNetworkUnreachable:     "NetworkUnreachable",
	ReasonRemoteConnectionClosed: "RemoteConnectionClosed",
	ReasonConnectionRejected:     "ConnectionRejected",
}

func (r DisconnectReason) String() string {
	if int(r) < len(_reasonNames) {
		return _reasonNames[r]
	}
	return "Unknown"
}

// _disconnectReasons maps remote-side failure codes to reasons.
// Codes not listed classify as ReasonUnknown.
var _disconnectReasons = map[SocketError]DisconnectReason{
	SocketErrorConnectionReset:    ReasonConnectionFailed,
	SocketErrorTimedOut:           ReasonTimeout,
	SocketErrorHostUnreachable:    ReasonHostUnreachable,
	SocketErrorNetworkUnreachable: ReasonNetworkUnreachable,
	SocketErrorConnectionAborted:  ReasonRemoteConnectionClosed,
	SocketErrorConnectionRefused:  ReasonConnectionRejected,
}

// ClassifyDisconnect builds the Disconnect event for a closed connection.
// A local disconnect always wins over the error code. The raw code is kept
// on the event in every case.
func ClassifyDisconnect(id ConnID, isLocal bool, code SocketError) Event {
	ev := Event{
		Type:      EventDisconnect,
		ConnID:    id,
		SocketErr: code,
	}
	if isLocal {
		ev.Reason = ReasonLocalDisconnect
		return ev
	}
	ev.Reason = _disconnectReasons[code]
	return ev
}

// SocketErrorFromErr maps a Go network error onto a SocketError.
// A clean close by the remote (io.EOF) reports ConnectionAborted so that it
// classifies as a remote close.
func SocketErrorFromErr(err error) SocketError {
	switch {
	case err == nil:
		return SocketErrorSuccess
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, syscall.ECONNABORTED):
		return SocketErrorConnectionAborted
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return SocketErrorConnectionReset
	case errors.Is(err, syscall.ECONNREFUSED):
		return SocketErrorConnectionRefused
	case errors.Is(err, syscall.EHOSTUNREACH):
		return SocketErrorHostUnreachable
	case errors.Is(err, syscall.ENETUNREACH):
		return SocketErrorNetworkUnreachable
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded), errors.Is(err, syscall.ETIMEDOUT):
		return SocketErrorTimedOut
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return SocketErrorTimedOut
	}
	return SocketErrorGeneric
}
