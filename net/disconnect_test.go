package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

var _allSocketErrors = []SocketError{
	SocketErrorGeneric,
	SocketErrorSuccess,
	SocketErrorNetworkUnreachable,
	SocketErrorConnectionAborted,
	SocketErrorConnectionReset,
	SocketErrorTimedOut,
	SocketErrorConnectionRefused,
	SocketErrorHostUnreachable,
	SocketError(10048),
}

func TestClassifyDisconnectRemote(t *testing.T) {
	tests := []struct {
		code SocketError
		want DisconnectReason
	}{
		{SocketErrorConnectionReset, ReasonConnectionFailed},
		{SocketErrorTimedOut, ReasonTimeout},
		{SocketErrorHostUnreachable, ReasonHostUnreachable},
		{SocketErrorNetworkUnreachable, ReasonNetworkUnreachable},
		{SocketErrorConnectionAborted, ReasonRemoteConnectionClosed},
		{SocketErrorConnectionRefused, ReasonConnectionRejected},
		{SocketErrorSuccess, ReasonUnknown},
		{SocketErrorGeneric, ReasonUnknown},
		{SocketError(10048), ReasonUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			ev := ClassifyDisconnect(7, false, tt.code)
			assert.Equal(t, EventDisconnect, ev.Type)
			assert.Equal(t, ConnID(7), ev.ConnID)
			assert.Equal(t, tt.want, ev.Reason)
			assert.Equal(t, tt.code, ev.SocketErr)
		})
	}
}

func TestClassifyDisconnectLocalWins(t *testing.T) {
	for _, code := range _allSocketErrors {
		ev := ClassifyDisconnect(1, true, code)
		assert.Equal(t, ReasonLocalDisconnect, ev.Reason, "code %s", code)
		assert.Equal(t, code, ev.SocketErr)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestSocketErrorFromErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want SocketError
	}{
		{"nil", nil, SocketErrorSuccess},
		{"eof", io.EOF, SocketErrorConnectionAborted},
		{"unexpected eof", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), SocketErrorConnectionAborted},
		{"reset", &os.SyscallError{Syscall: "read", Err: syscall.ECONNRESET}, SocketErrorConnectionReset},
		{"broken pipe", syscall.EPIPE, SocketErrorConnectionReset},
		{"refused", syscall.ECONNREFUSED, SocketErrorConnectionRefused},
		{"host unreachable", syscall.EHOSTUNREACH, SocketErrorHostUnreachable},
		{"net unreachable", syscall.ENETUNREACH, SocketErrorNetworkUnreachable},
		{"deadline", os.ErrDeadlineExceeded, SocketErrorTimedOut},
		{"context deadline", context.DeadlineExceeded, SocketErrorTimedOut},
		{"net timeout", timeoutErr{}, SocketErrorTimedOut},
		{"other", errors.New("boom"), SocketErrorGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SocketErrorFromErr(tt.err))
		})
	}
}

func TestSocketErrorString(t *testing.T) {
	assert.Equal(t, "ConnectionReset", SocketErrorConnectionReset.String())
	assert.Equal(t, "SocketError(42)", SocketError(42).String())
	assert.Equal(t, "Unknown", DisconnectReason(200).String())
}
