package transport

import (
	"context"
	"net"
	"time"

	"lrpc/config"
)

// Dial connects to addr and upgrades the connection. The dial honors ctx.
func Dial(ctx context.Context, addr string, conf config.TCPConf) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if err := Upgrade(conn, conf); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Upgrade applies the socket options in conf to a TCP connection. Nagle's algorithm is always
// disabled: every frame is a complete request or response that should leave immediately.
func Upgrade(conn net.Conn, conf config.TCPConf) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}

	if err := tcpConn.SetNoDelay(true); err != nil {
		return err
	}

	if conf.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(conf.WriteBufferSize); err != nil {
			return err
		}
	}

	if conf.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(conf.ReadBufferSize); err != nil {
			return err
		}
	}

	if conf.KeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(time.Duration(conf.KeepAliveSec) * time.Second); err != nil {
			return err
		}
	}

	if conf.LingerSec >= 0 {
		if err := tcpConn.SetLinger(conf.LingerSec); err != nil {
			return err
		}
	}
	return nil
}
