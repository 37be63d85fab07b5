package netconn

import (
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/netcored/netcore/api"
	"github.com/netcored/netcore/eventloop"
	"golang.org/x/sys/unix"
)

// TLSConfig is supplied by Server for transport == "ssl" and carried on
// each accepted Connection so it survives without a strong Server
// pointer.
type TLSConfig struct {
	Config *tls.Config
}

// fdNetConn adapts a raw non-blocking fd to net.Conn so crypto/tls's
// Conn.Handshake()/Read()/Write() can drive it, cooperating with the
// single-threaded loop via the Suspend primitive: every EAGAIN parks the
// handshake coroutine until the loop's own readiness callback resumes it.
type fdNetConn struct {
	c       *Connection
	suspend *eventloop.Suspend
}

func (n *fdNetConn) Read(b []byte) (int, error) {
	for {
		nn, err := unix.Read(int(n.c.fd), b)
		if err == nil {
			if nn == 0 {
				return 0, io.EOF
			}
			return nn, nil
		}
		if err == unix.EAGAIN {
			n.waitReadable()
			continue
		}
		return 0, err
	}
}

func (n *fdNetConn) Write(b []byte) (int, error) {
	total := 0
	for total < len(b) {
		nn, err := unix.Write(int(n.c.fd), b[total:])
		if err != nil {
			if err == unix.EAGAIN {
				n.waitWritable()
				continue
			}
			return total, err
		}
		total += nn
	}
	return total, nil
}

func (n *fdNetConn) waitReadable() {
	n.c.loop.OnReadable(n.c.fd, func() {
		n.c.loop.OffReadable(n.c.fd)
		n.suspend.Resume(nil)
	})
	n.suspend.Await()
}

func (n *fdNetConn) waitWritable() {
	n.c.loop.OnWritable(n.c.fd, func() {
		n.c.loop.OffWritable(n.c.fd)
		n.suspend.Resume(nil)
	})
	n.suspend.Await()
}

func (n *fdNetConn) Close() error                       { return nil } // Connection owns fd lifecycle
func (n *fdNetConn) LocalAddr() net.Addr                { return nil }
func (n *fdNetConn) RemoteAddr() net.Addr               { return nil }
func (n *fdNetConn) SetDeadline(t time.Time) error      { return nil }
func (n *fdNetConn) SetReadDeadline(t time.Time) error  { return nil }
func (n *fdNetConn) SetWriteDeadline(t time.Time) error { return nil }

// beginServerHandshake performs the TLS handshake upon the connection's
// first readable event. "need more data" and "fatal" outcomes are both
// just what crypto/tls's Handshake() naturally returns once the
// EAGAIN/suspend loop above resolves them.
func (c *Connection) beginServerHandshake() {
	cfg := c.tlsCfg
	if cfg == nil {
		c.fail(api.ErrCodeConnectFail, "tls: no certificate configured for this listener")
		return
	}
	nc := &fdNetConn{c: c}
	c.loop.Spawn(func(s *eventloop.Suspend) {
		nc.suspend = s
		tlsConn := tls.Server(nc, cfg.Config)
		if err := tlsConn.Handshake(); err != nil {
			c.fail(api.ErrCodeConnectFail, "tls handshake failed: %v", err)
			return
		}
		c.finishHandshake(tlsConn)
	})
}

// beginClientHandshake drives the client side of the handshake for an
// outbound "ssl"/"wss" connect once the socket is writable and
// connected.
func (c *Connection) beginClientHandshake(serverName string) {
	cfg := c.tlsCfg
	if cfg == nil {
		c.fail(api.ErrCodeConnectFail, "tls: no client config supplied")
		return
	}
	clientCfg := cfg.Config
	if clientCfg.ServerName == "" && serverName != "" {
		cloned := clientCfg.Clone()
		cloned.ServerName = serverName
		clientCfg = cloned
	}
	nc := &fdNetConn{c: c}
	c.loop.Spawn(func(s *eventloop.Suspend) {
		nc.suspend = s
		tlsConn := tls.Client(nc, clientCfg)
		if err := tlsConn.Handshake(); err != nil {
			c.fail(api.ErrCodeConnectFail, "tls handshake failed: %v", err)
			return
		}
		c.finishHandshake(tlsConn)
	})
}

func (c *Connection) finishHandshake(tlsConn *tls.Conn) {
	c.tlsConn = tlsConn
	c.tlsDone = true
	wasConnecting := c.Status() == api.StatusConnecting
	flushed := c.sendBuf
	c.sendBuf = nil

	c.loop.OnReadable(c.fd, c.handleReadable)
	if wasConnecting {
		c.setStatus(api.StatusEstablished)
		if c.hooks.OnConnect != nil {
			c.hooks.OnConnect(c)
		}
	}
	if len(flushed) > 0 {
		_ = c.Send(flushed, true)
	}
}
