package netconn

import (
	"fmt"

	"github.com/netcored/netcore/api"
	"github.com/netcored/netcore/eventloop"
)

// Config bundles the per-Connection limits a Server passes down.
type Config struct {
	MaxSendBufferSize int
	MaxPackageSize    int
}

// DefaultConfig mirrors sane production defaults: 1 MiB send buffer,
// 10 MiB max application frame.
func DefaultConfig() Config {
	return Config{MaxSendBufferSize: 1 << 20, MaxPackageSize: 10 << 20}
}

// NewAccepted builds an ESTABLISHED Connection for a socket returned by
// AcceptNonBlocking, arms handleReadable immediately (or, for "ssl",
// starts the server TLS handshake), and fires OnConnect.
func NewAccepted(loop *eventloop.Loop, fd uintptr, remote string, transport api.Transport,
	codec api.Codec, hooks Hooks, server ServerID, cfg Config, stats *Stats, tlsCfg *TLSConfig) *Connection {

	c := &Connection{
		id: nextConnID(), transport: transport, fd: fd, loop: loop, remote: remote,
		codec: codec, hooks: hooks, server: server,
		maxSendBufferSize: cfg.MaxSendBufferSize, maxPackageSize: cfg.MaxPackageSize,
		stats: stats, tlsCfg: tlsCfg,
	}
	c.setStatus(api.StatusEstablished)
	if stats != nil {
		stats.addConnection()
	}

	if transport == api.TransportSSL {
		c.beginServerHandshake()
	} else {
		loop.OnReadable(fd, c.handleReadable)
	}

	if hooks.OnConnect != nil {
		hooks.OnConnect(c)
	}
	return c
}

// NewAsyncTCP begins an outbound connection to addr (already resolved to
// host/port), optionally through a SOCKS5 or HTTP CONNECT proxy prefix.
// checkConnection is armed on writability and promotes the connection to
// ESTABLISHED, or fires onError(CONNECT_FAIL, ...) after
// connectTimeoutSecs.
func NewAsyncTCP(loop *eventloop.Loop, transport api.Transport, host string, port int, codec api.Codec, hooks Hooks,
	cfg Config, stats *Stats, proxy *ProxyConfig, connectTimeoutSecs float64, tlsCfg *TLSConfig) (*Connection, error) {

	dialHost, dialPort := host, port
	if proxy != nil {
		dialHost, dialPort = proxy.Host, proxy.Port
	}

	fd, err := DialNonBlocking(dialHost, dialPort)
	if err != nil {
		return nil, fmt.Errorf("netcore: connect %s:%d: %w", host, port, err)
	}

	c := &Connection{
		id: nextConnID(), transport: transport, fd: fd, loop: loop,
		remote: fmt.Sprintf("%s:%d", host, port), codec: codec, hooks: hooks,
		maxSendBufferSize: cfg.MaxSendBufferSize, maxPackageSize: cfg.MaxPackageSize, stats: stats,
		tlsCfg: tlsCfg,
	}
	c.setStatus(api.StatusConnecting)
	if stats != nil {
		stats.addConnection()
	}

	deadline := loop.Delay(connectTimeoutSecs, func() {
		if c.Status() == api.StatusConnecting {
			c.loop.OffWritable(c.fd)
			c.fail(api.ErrCodeConnectFail, "connect to %s failed after %.0f seconds", c.remote, connectTimeoutSecs)
		}
	})

	loop.OnWritable(fd, func() {
		loop.Cancel(deadline)
		loop.OffWritable(fd)
		if err := checkSocketError(fd); err != nil {
			c.fail(api.ErrCodeConnectFail, "connect to %s failed: %v", c.remote, err)
			return
		}
		if proxy != nil {
			c.beginProxyHandshake(proxy, host, port)
			return
		}
		c.finishConnect(host)
	})

	return c, nil
}

// finishConnect is reached once the raw TCP connect (and any proxy tunnel)
// has succeeded; it starts the TLS client handshake for "ssl"/"wss"
// connections or promotes a plaintext connection directly.
func (c *Connection) finishConnect(serverName string) {
	if c.transport == api.TransportSSL {
		c.beginClientHandshake(serverName)
		return
	}
	c.promoteEstablished()
}

func (c *Connection) promoteEstablished() {
	c.setStatus(api.StatusEstablished)
	flushed := c.sendBuf
	c.sendBuf = nil

	c.loop.OnReadable(c.fd, c.handleReadable)
	if c.hooks.OnConnect != nil {
		c.hooks.OnConnect(c)
	}
	if len(flushed) > 0 {
		_ = c.Send(flushed, true)
	}
}
