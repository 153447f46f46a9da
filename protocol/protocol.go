// Package protocol implements the length-prefixed frame format of lrpc.
//
// Every frame is a 4-byte big-endian payload length followed by exactly that many bytes of
// serialized Request or Response. The length prefix solves TCP's sticky packet problem: the
// receiver reads the prefix, then waits until the whole payload is buffered.
//
// Frame format:
//
//	0         4
//	┌─────────┬───────────────────────┐
//	│ length  │    payload ...        │
//	│ uint32  │    length bytes       │
//	└─────────┴───────────────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	HeaderSize          = 4                // Length prefix, big-endian (network byte order)
	DefaultMaxFrameSize = 16 * 1024 * 1024 // 16 MiB
)

// ErrFrameTooLarge is returned when a length prefix exceeds the configured maximum.
// Prefixes with the sign bit set (negative as int32) always exceed it.
var ErrFrameTooLarge = errors.New("frame too large")

// WriteFrame writes one complete frame (prefix + payload) to w with a single Write call,
// so a frame is never split by a concurrent writer on the same socket.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[:HeaderSize], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)

	if _, err := w.Write(buf); err != nil {
		return err
	}
	return nil
}

// checkLength validates a decoded length prefix against the frame limit.
func checkLength(length uint32, maxFrameSize int) error {
	if int32(length) < 0 || int(length) > maxFrameSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, length, maxFrameSize)
	}
	return nil
}
