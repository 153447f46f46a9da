// Package client performs synchronous remote calls.
//
// Client.Send is one round trip on a fresh connection:
//
//	parse address → dial (no-delay) → write request frame → read response frame → close
//
// Proxy adds service resolution on top: it builds the Request, asks a Discoverer for an
// address, sends, and turns an exception Response into an error.
package client

import (
	"context"
	"errors"

	"lrpc/config"
	"lrpc/logger"
	"lrpc/message"
	"lrpc/registry"
	"lrpc/transport"
)

var log = logger.For("client")

type Client struct {
	conf config.ClientConfig
}

func NewClient(conf config.ClientConfig) *Client {
	return &Client{conf: conf}
}

// Send delivers req to addr and waits for its Response. The connection is closed before Send
// returns, on success and on every failure. The call is bounded by ctx's deadline or, when ctx
// has none, by CallTimeout.
func (c *Client) Send(ctx context.Context, addr string, req *message.Request) (*message.Response, error) {
	if _, _, err := registry.ParseAddress(addr); err != nil {
		return nil, &TransportError{Op: OpAddress, Addr: addr, Err: err}
	}

	if _, ok := ctx.Deadline(); !ok && c.conf.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.conf.CallTimeout)
		defer cancel()
	}

	conn, err := transport.Dial(ctx, addr, c.conf.Transport)
	if err != nil {
		op := transport.OpDial
		if errors.Is(err, context.Canceled) {
			op = transport.OpCancel
		}
		return nil, &TransportError{Op: op, Addr: addr, Err: err}
	}
	ct := transport.NewClientTransport(ctx, conn, c.conf.Codec, c.conf.MaxFrameSize)
	defer func() {
		if err := ct.Close(); err != nil {
			log.Debugf("close connection to %s: %v", addr, err)
		}
	}()

	log.Tracef("send %s %s.%s to %s", req.RequestID, req.ServiceKey(), req.MethodName, addr)
	if err := ct.Send(req); err != nil {
		return nil, err
	}
	resp, err := ct.Receive()
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, ErrNilResponse
	}
	return resp, nil
}
