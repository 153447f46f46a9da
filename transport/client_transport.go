// Package transport carries exactly one Request/Response exchange per TCP connection.
//
// A ClientTransport owns one connection for one call:
//
//	Dial ──→ Send(request frame) ──→ Receive(response frame) ──→ Close
//
// There is no multiplexing and no reuse. Close is always called, whatever the outcome.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"lrpc/codec"
	"lrpc/message"
	"lrpc/protocol"
)

// Operations reported in OpError.
const (
	OpDial    = "dial"
	OpEncode  = "encode"
	OpWrite   = "write"
	OpRead    = "read"
	OpDecode  = "decode"
	OpTimeout = "timeout"
	OpCancel  = "cancel"
)

// OpError describes a failure of one step of a round trip.
type OpError struct {
	Op   string
	Addr string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("rpc %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// ClientTransport owns a single connection used for one call.
type ClientTransport struct {
	ctx    context.Context
	conn   net.Conn
	addr   string
	codec  codec.Codec
	reader *protocol.Reader
	stop   func() bool // detaches the context watcher
}

// NewClientTransport wraps an established connection. Cancelling ctx aborts any pending
// Send or Receive by expiring the connection deadline.
func NewClientTransport(ctx context.Context, conn net.Conn, codecType codec.CodecType, maxFrameSize int) *ClientTransport {
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	return &ClientTransport{
		ctx:    ctx,
		conn:   conn,
		addr:   conn.RemoteAddr().String(),
		codec:  codec.GetCodec(codecType),
		reader: protocol.NewReader(conn, maxFrameSize),
		stop:   stop,
	}
}

// Send encodes req and writes it as one frame.
func (t *ClientTransport) Send(req *message.Request) error {
	payload, err := codec.EncodeRequest(t.codec, req)
	if err != nil {
		return &OpError{Op: OpEncode, Addr: t.addr, Err: err}
	}
	if err := protocol.WriteFrame(t.conn, payload); err != nil {
		return t.ioError(err, OpWrite)
	}
	return nil
}

// Receive reads one frame and decodes it as a Response.
func (t *ClientTransport) Receive() (*message.Response, error) {
	payload, err := t.reader.ReadFrame()
	if err != nil {
		return nil, t.ioError(err, OpRead)
	}
	resp, err := codec.DecodeResponse(t.codec, payload)
	if err != nil {
		return nil, &OpError{Op: OpDecode, Addr: t.addr, Err: err}
	}
	return resp, nil
}

// Close releases the connection.
func (t *ClientTransport) Close() error {
	t.stop()
	return t.conn.Close()
}

// ioError classifies an I/O failure. An expired deadline caused by cancelling the context is
// a cancellation, not a timeout, and unwraps to context.Canceled.
func (t *ClientTransport) ioError(err error, op string) *OpError {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		if errors.Is(t.ctx.Err(), context.Canceled) {
			return &OpError{Op: OpCancel, Addr: t.addr, Err: fmt.Errorf("%w: %v", context.Canceled, err)}
		}
		op = OpTimeout
	}
	return &OpError{Op: op, Addr: t.addr, Err: err}
}
