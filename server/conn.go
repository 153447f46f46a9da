package server

import (
	"context"
	"errors"
	"io"
	"net"
	"runtime/debug"
	"strings"
	"sync/atomic"

	"lrpc/codec"
	"lrpc/message"
	"lrpc/middleware"
	"lrpc/protocol"
	"lrpc/transport"
)

// connState is the lifecycle of one accepted connection. Each connection carries exactly one
// request and moves strictly forward:
//
//	AwaitingRequest → Decoded → Dispatching → Responding → Closed
//
// Any state may jump to Closed on an I/O failure.
type connState int32

const (
	StateAwaitingRequest connState = iota
	StateDecoded
	StateDispatching
	StateResponding
	StateClosed
)

func (s connState) String() string {
	switch s {
	case StateAwaitingRequest:
		return "AwaitingRequest"
	case StateDecoded:
		return "Decoded"
	case StateDispatching:
		return "Dispatching"
	case StateResponding:
		return "Responding"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

type conn struct {
	nc    net.Conn
	state atomic.Int32
}

func newConn(nc net.Conn) *conn {
	return &conn{nc: nc} // zero value is StateAwaitingRequest
}

func (c *conn) State() connState {
	return connState(c.state.Load())
}

// advance moves to next if the connection has not been closed meanwhile.
func (c *conn) advance(next connState) bool {
	for {
		cur := c.state.Load()
		if connState(cur) == StateClosed {
			return false
		}
		if c.state.CompareAndSwap(cur, int32(next)) {
			log.Tracef("%s: %s → %s", c.nc.RemoteAddr(), connState(cur), next)
			return true
		}
	}
}

// closeIfIdle closes the connection only if it is still waiting for its request.
func (c *conn) closeIfIdle() bool {
	if c.state.CompareAndSwap(int32(StateAwaitingRequest), int32(StateClosed)) {
		c.nc.Close()
		return true
	}
	return false
}

func (c *conn) close() {
	c.state.Store(int32(StateClosed))
	c.nc.Close()
}

// trackConn adds c to the live set unless the server is shutting down.
func (svr *Server) trackConn(c *conn) bool {
	svr.connMu.Lock()
	defer svr.connMu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.conns[c] = struct{}{}
	svr.wg.Add(1)
	return true
}

func (svr *Server) untrackConn(c *conn) {
	svr.connMu.Lock()
	delete(svr.conns, c)
	svr.connMu.Unlock()
	svr.wg.Done()
}

func (svr *Server) closeIdleConns() {
	svr.connMu.Lock()
	defer svr.connMu.Unlock()
	for c := range svr.conns {
		if c.closeIfIdle() {
			log.Debugf("closed idle connection %s", c.nc.RemoteAddr())
		}
	}
}

// serveConn answers the single request carried by c, then closes it.
// Decode and dispatch failures are answered with an error Response; only I/O failures
// close the connection without one.
func (svr *Server) serveConn(c *conn) {
	defer svr.untrackConn(c)
	defer c.close()
	defer func() {
		// handler panics are answered by middleware.Run; this covers encoding and I/O
		if r := recover(); r != nil {
			log.Errorf("panic serving %s: %v\n%s", c.nc.RemoteAddr(), r, debug.Stack())
		}
	}()

	if err := transport.Upgrade(c.nc, svr.conf.Transport); err != nil {
		log.Warnf("upgrade %s: %v", c.nc.RemoteAddr(), err)
	}

	payload, err := protocol.NewReader(c.nc, svr.conf.MaxFrameSize).ReadFrame()
	if err != nil {
		if errors.Is(err, protocol.ErrFrameTooLarge) {
			svr.reply(c, message.Failure("", message.KindInvalidRequest, "%v", err))
			return
		}
		if !errors.Is(err, io.EOF) && c.State() != StateClosed {
			log.Debugf("read request from %s: %v", c.nc.RemoteAddr(), err)
		}
		return
	}

	req, err := codec.DecodeRequest(svr.codec, payload)
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		var id string
		if req != nil {
			id = req.RequestID
		}
		svr.reply(c, message.Failure(id, message.KindInvalidRequest, "malformed request: %v", err))
		return
	}

	if !c.advance(StateDecoded) || !c.advance(StateDispatching) {
		return
	}
	svr.reply(c, middleware.Run(context.Background(), svr.handler, req))
}

// reply encodes and writes resp. A result that cannot be encoded is replaced by an
// Encode exception so the caller still gets an answer.
func (svr *Server) reply(c *conn, resp *message.Response) {
	if !c.advance(StateResponding) {
		return
	}

	payload, err := codec.EncodeResponse(svr.codec, resp)
	if err != nil {
		log.Errorf("encode response %s: %v", resp.RequestID, err)
		payload, err = codec.EncodeResponse(svr.codec, message.Failure(resp.RequestID, message.KindEncode, "%v", err))
		if err != nil {
			log.Errorf("encode failure response %s: %v", resp.RequestID, err)
			return
		}
	}
	if err := protocol.WriteFrame(c.nc, payload); err != nil {
		log.Debugf("write response %s to %s: %v", resp.RequestID, c.nc.RemoteAddr(), err)
	}
}

func joinTypes(types []string) string {
	return strings.Join(types, ", ")
}
