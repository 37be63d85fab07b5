package netconn

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/netcored/netcore/api"
	"github.com/netcored/netcore/eventloop"
)

// ProxyKind selects the proxy handshake Connection.beginProxyHandshake
// performs before the target connection proceeds.
type ProxyKind int

const (
	ProxyNone ProxyKind = iota
	ProxySOCKS5
	ProxyHTTPConnect
)

// ProxyConfig describes a SOCKS5 or HTTP CONNECT proxy to tunnel the
// async TCP connect through.
type ProxyConfig struct {
	Kind ProxyKind
	Host string
	Port int
}

// beginProxyHandshake sends the proxy handshake bytes for the target
// host:port, deferring promoteEstablished until the proxy confirms.
// Both handshakes run on a spawned coroutine over fdNetConn, so every
// read or write that would block parks on the loop's own readiness
// callbacks instead of spinning on the loop goroutine, the same shape
// the TLS handshake uses.
func (c *Connection) beginProxyHandshake(proxy *ProxyConfig, targetHost string, targetPort int) {
	switch proxy.Kind {
	case ProxySOCKS5:
		c.socks5Handshake(targetHost, targetPort)
	case ProxyHTTPConnect:
		c.httpConnectHandshake(targetHost, targetPort)
	default:
		c.finishConnect(targetHost)
	}
}

// socks5Handshake implements the two-message SOCKS5 greeting:
// "05 01 00" then "05 01 00 03 <len> <host> <port-be16>".
func (c *Connection) socks5Handshake(host string, port int) {
	nc := &fdNetConn{c: c}
	c.loop.Spawn(func(s *eventloop.Suspend) {
		nc.suspend = s
		if _, err := nc.Write([]byte{0x05, 0x01, 0x00}); err != nil {
			c.fail(api.ErrCodeConnectFail, "socks5 greeting failed: %v", err)
			return
		}
		reply := make([]byte, 2)
		if _, err := io.ReadFull(nc, reply); err != nil {
			c.fail(api.ErrCodeConnectFail, "socks5 greeting reply: %v", err)
			return
		}
		if reply[0] != 0x05 || reply[1] != 0x00 {
			c.fail(api.ErrCodeConnectFail, "socks5 auth rejected")
			return
		}

		req := make([]byte, 0, 7+len(host))
		req = append(req, 0x05, 0x01, 0x00, 0x03, byte(len(host)))
		req = append(req, host...)
		req = append(req, byte(port>>8), byte(port))
		if _, err := nc.Write(req); err != nil {
			c.fail(api.ErrCodeConnectFail, "socks5 connect request failed: %v", err)
			return
		}
		connReply := make([]byte, 10)
		if _, err := io.ReadFull(nc, connReply); err != nil {
			c.fail(api.ErrCodeConnectFail, "socks5 connect reply: %v", err)
			return
		}
		if connReply[1] != 0x00 {
			c.fail(api.ErrCodeConnectFail, "socks5 connect failed, code=%d", connReply[1])
			return
		}
		c.finishConnect(host)
	})
}

// httpConnectHandshake sends the HTTP CONNECT preamble and waits for the
// proxy's status line.
func (c *Connection) httpConnectHandshake(host string, port int) {
	nc := &fdNetConn{c: c}
	c.loop.Spawn(func(s *eventloop.Suspend) {
		nc.suspend = s
		req := fmt.Sprintf("CONNECT %s:%d HTTP/1.1\r\nHost: %s:%d\r\nProxy-Connection: keep-alive\r\n\r\n",
			host, port, host, port)
		if _, err := nc.Write([]byte(req)); err != nil {
			c.fail(api.ErrCodeConnectFail, "CONNECT request failed: %v", err)
			return
		}
		buf := make([]byte, 4096)
		n, err := nc.Read(buf)
		if err != nil {
			c.fail(api.ErrCodeConnectFail, "CONNECT response: %v", err)
			return
		}
		status := string(buf[:n])
		line := status
		if idx := strings.Index(status, "\r\n"); idx >= 0 {
			line = status[:idx]
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			c.fail(api.ErrCodeConnectFail, "CONNECT malformed response")
			return
		}
		code, _ := strconv.Atoi(parts[1])
		if code < 200 || code >= 300 {
			c.fail(api.ErrCodeConnectFail, "CONNECT rejected, status=%d", code)
			return
		}
		c.finishConnect(host)
	})
}
