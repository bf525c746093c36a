package net

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf []byte
	buf = appendFrame(buf, Reliable, []byte("0123456789"))
	buf = appendFrame(buf, Unreliable, bytes.Repeat([]byte{0xab}, 300))
	buf = appendFrame(buf, Reliable, nil)

	r := bufio.NewReader(bytes.NewReader(buf))

	mode, payload, err := readFrame(r, 1024)
	require.NoError(t, err)
	assert.Equal(t, Reliable, mode)
	assert.Equal(t, []byte("0123456789"), payload)

	mode, payload, err = readFrame(r, 1024)
	require.NoError(t, err)
	assert.Equal(t, Unreliable, mode)
	assert.Len(t, payload, 300)

	_, payload, err = readFrame(r, 1024)
	require.NoError(t, err)
	assert.Empty(t, payload)

	_, _, err = readFrame(r, 1024)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameTooLarge(t *testing.T) {
	buf := appendFrame(nil, Reliable, make([]byte, 65))
	_, _, err := readFrame(bufio.NewReader(bytes.NewReader(buf)), 64)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestFrameTruncated(t *testing.T) {
	buf := appendFrame(nil, Reliable, []byte("abcdef"))
	_, _, err := readFrame(bufio.NewReader(bytes.NewReader(buf[:4])), 64)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	// header cut inside the varint
	long := appendFrame(nil, Reliable, make([]byte, 200))
	_, _, err = readFrame(bufio.NewReader(bytes.NewReader(long[:1])), 1024)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFrameMalformed(t *testing.T) {
	_, _, err := readFrame(bufio.NewReader(bytes.NewReader([]byte{0x00})), 64)
	assert.Error(t, err)

	_, _, err = readFrame(bufio.NewReader(bytes.NewReader([]byte{0x02, 0x07, 0x01})), 64)
	assert.Error(t, err)
}
