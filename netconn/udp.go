package netconn

import (
	"fmt"

	"github.com/netcored/netcore/api"
	"github.com/netcored/netcore/eventloop"
	"golang.org/x/sys/unix"
)

const maxDatagramSize = 65535

// NewUDPListener arms the accept-style readable callback on a bound UDP
// socket that the server passed in; every inbound packet is read and
// delivered without going through recvBuf/sendBuf at all.
func NewUDPListener(loop *eventloop.Loop, listenFD uintptr, codec api.Codec, hooks Hooks,
	server ServerID, stats *Stats) {

	loop.OnReadable(listenFD, func() {
		buf := make([]byte, maxDatagramSize)
		for {
			n, from, err := unix.Recvfrom(int(listenFD), buf, 0)
			if err != nil {
				return // EAGAIN: drained for this tick
			}
			remote := sockaddrString(from)
			c := &Connection{
				id: nextConnID(), transport: api.TransportUDP, fd: listenFD, loop: loop,
				remote: remote, codec: codec, hooks: hooks, server: server,
				maxPackageSize: maxDatagramSize, stats: stats,
			}
			c.setStatus(api.StatusEstablished)
			deliverDatagram(c, buf[:n])
			if n == 0 {
				return
			}
		}
	})
}

// deliverDatagram runs the input -> decode loop across one datagram; a
// single packet can carry several frames back to back.
func deliverDatagram(c *Connection, data []byte) {
	if c.codec == nil {
		if c.hooks.OnMessage != nil {
			c.hooks.OnMessage(c, append([]byte(nil), data...))
		}
		if c.stats != nil {
			c.stats.addRequest()
		}
		return
	}
	rest := data
	for len(rest) > 0 {
		n := c.codec.Input(rest, c)
		if n <= 0 || n > len(rest) {
			return
		}
		msg, err := c.codec.Decode(rest[:n], c)
		rest = rest[n:]
		if err != nil {
			if c.hooks.OnError != nil {
				c.hooks.OnError(c, api.NewConnError(api.ErrCodeSendFail, "udp decode failed: %v", err))
			}
			return
		}
		if msg == nil {
			continue
		}
		if c.hooks.OnMessage != nil {
			c.hooks.OnMessage(c, msg)
		}
		if c.stats != nil {
			c.stats.addRequest()
		}
	}
}

// NewAsyncUDP creates a lazily-connecting UDP client connection: the
// socket is created immediately but the kernel-level connect() happens on
// first Send.
func NewAsyncUDP(loop *eventloop.Loop, host string, port int, codec api.Codec, hooks Hooks,
	stats *Stats) (*Connection, error) {

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, fmt.Errorf("netcore: udp socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}

	c := &Connection{
		id: nextConnID(), transport: api.TransportUDP, fd: uintptr(fd), loop: loop,
		remote: fmt.Sprintf("%s:%d", host, port), codec: codec, hooks: hooks,
		maxPackageSize: maxDatagramSize, stats: stats,
	}
	c.setStatus(api.StatusInitial)
	c.udpHost, c.udpPort = host, port
	if stats != nil {
		stats.addConnection()
	}
	return c, nil
}

// udpConnectOnce performs the deferred connect() and arms the readable
// callback the first time data is sent on a lazily-connecting client UDP
// Connection.
func (c *Connection) udpConnectOnce() error {
	if c.Status() != api.StatusInitial {
		return nil
	}
	ip, err := resolveIPv4(c.udpHost)
	if err != nil {
		return err
	}
	sa := &unix.SockaddrInet4{Port: c.udpPort, Addr: ip}
	if connErr := unix.Connect(int(c.fd), sa); connErr != nil {
		return fmt.Errorf("netcore: udp connect %s:%d: %w", c.udpHost, c.udpPort, connErr)
	}
	c.setStatus(api.StatusEstablished)
	c.loop.OnReadable(c.fd, func() {
		buf := make([]byte, maxDatagramSize)
		for {
			n, err := unix.Read(int(c.fd), buf)
			if err != nil {
				return
			}
			deliverDatagram(c, buf[:n])
			if n == 0 {
				return
			}
		}
	})
	return nil
}
