package net

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrFrameTooLarge is returned when a frame exceeds the configured maximum.
var ErrFrameTooLarge = errors.New("frame too large")

const maxVarintLen = 10

// appendFrame encodes payload as [varint len][mode][payload], where len
// counts the mode byte and the payload.
func appendFrame(dst []byte, mode SendMode, payload []byte) []byte {
	dst = protowire.AppendVarint(dst, uint64(len(payload)+1))
	dst = append(dst, byte(mode))
	return append(dst, payload...)
}

// readFrame reads one frame written by appendFrame.
func readFrame(r *bufio.Reader, maxSize int) (SendMode, []byte, error) {
	var hdr [maxVarintLen]byte
	n := 0
	for {
		b, err := r.ReadByte()
		if err != nil {
			if n > 0 && errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return 0, nil, err
		}
		hdr[n] = b
		n++
		if b < 0x80 {
			break
		}
		if n == len(hdr) {
			return 0, nil, errors.New("frame length overflows varint")
		}
	}

	size, m := protowire.ConsumeVarint(hdr[:n])
	if m < 0 {
		return 0, nil, fmt.Errorf("frame length: %w", protowire.ParseError(m))
	}
	if size == 0 {
		return 0, nil, errors.New("empty frame")
	}
	if size-1 > uint64(maxSize) {
		return 0, nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size-1, maxSize)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}

	mode := SendMode(buf[0])
	if mode != Reliable && mode != Unreliable {
		return 0, nil, fmt.Errorf("unknown send mode %d", buf[0])
	}
	return mode, buf[1:], nil
}
