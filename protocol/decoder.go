package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

// FrameDecoder is an incremental frame decoder. Bytes are pushed with Write in chunks of any
// size; Next emits one payload per complete frame.
//
// Decoding follows the mark/reset pattern:
//  1. Fewer than 4 bytes buffered: wait, nothing changes.
//  2. Read the length prefix; if the payload is not fully buffered, roll the read position
//     back to before the prefix and wait.
//  3. Otherwise consume prefix + payload and emit the payload.
//
// A FrameDecoder belongs to one connection and is not safe for concurrent use.
type FrameDecoder struct {
	buf          []byte
	off          int // read position in buf
	maxFrameSize int
}

// NewFrameDecoder creates a decoder rejecting frames larger than maxFrameSize.
// A non-positive maxFrameSize means DefaultMaxFrameSize.
func NewFrameDecoder(maxFrameSize int) *FrameDecoder {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &FrameDecoder{maxFrameSize: maxFrameSize}
}

// Write buffers p. It never fails.
func (d *FrameDecoder) Write(p []byte) (int, error) {
	// Compact consumed bytes before growing
	if d.off > 0 && d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
	} else if d.off > len(d.buf)/2 {
		n := copy(d.buf, d.buf[d.off:])
		d.buf = d.buf[:n]
		d.off = 0
	}
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Buffered returns the number of unconsumed bytes.
func (d *FrameDecoder) Buffered() int {
	return len(d.buf) - d.off
}

// Next returns the next complete payload. ok is false when more input is needed.
// The returned slice is a copy and stays valid after further writes.
func (d *FrameDecoder) Next() (payload []byte, ok bool, err error) {
	if d.Buffered() < HeaderSize {
		return nil, false, nil
	}

	mark := d.off
	length := binary.BigEndian.Uint32(d.buf[d.off : d.off+HeaderSize])
	d.off += HeaderSize

	if err := checkLength(length, d.maxFrameSize); err != nil {
		d.off = mark
		return nil, false, err
	}

	if d.Buffered() < int(length) {
		// Partial frame: replay the prefix on the next call
		d.off = mark
		return nil, false, nil
	}

	payload = make([]byte, length)
	copy(payload, d.buf[d.off:d.off+int(length)])
	d.off += int(length)
	return payload, true, nil
}

// Reader decodes frames from a byte stream, tolerating arbitrary read boundaries.
type Reader struct {
	r     io.Reader
	dec   *FrameDecoder
	chunk []byte
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader, maxFrameSize int) *Reader {
	return &Reader{
		r:     r,
		dec:   NewFrameDecoder(maxFrameSize),
		chunk: make([]byte, 4096),
	}
}

// ReadFrame blocks until one complete payload has been read.
// EOF before any byte of a frame returns io.EOF; EOF inside a frame returns io.ErrUnexpectedEOF.
func (r *Reader) ReadFrame() ([]byte, error) {
	for {
		payload, ok, err := r.dec.Next()
		if err != nil {
			return nil, err
		}
		if ok {
			return payload, nil
		}

		n, err := r.r.Read(r.chunk)
		if n > 0 {
			r.dec.Write(r.chunk[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if n > 0 {
					continue // drain what was read with the EOF
				}
				if r.dec.Buffered() > 0 {
					return nil, io.ErrUnexpectedEOF
				}
			}
			return nil, err
		}
	}
}
