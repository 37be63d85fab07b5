// Package netconn implements the Connection engine: non-blocking
// TCP/UDP/Unix/TLS sockets with send/receive buffers, backpressure, and
// streaming file transmission, all driven off an eventloop.Loop rather
// than Go's runtime netpoller; a single-threaded-per-worker model needs
// its own readiness source, so sockets are raw fds throughout.
package netconn

import (
	"crypto/tls"
	"sync/atomic"

	"github.com/netcored/netcore/api"
	"github.com/netcored/netcore/eventloop"
	"golang.org/x/sys/unix"
)

// Hooks bundles the lifecycle callbacks a Server installs on every
// Connection it accepts or dials.
type Hooks struct {
	OnConnect     func(c *Connection)
	OnMessage     func(c *Connection, msg api.Message)
	OnClose       func(c *Connection)
	OnError       func(c *Connection, err *api.ConnError)
	OnBufferFull  func(c *Connection)
	OnBufferDrain func(c *Connection)
}

var connIDSeq uint64

func nextConnID() uint64 {
	id := atomic.AddUint64(&connIDSeq, 1)
	// the counter wraps at the platform integer maximum back to 0; 0 itself
	// is skipped, so an id is never 0.
	if id == 0 {
		id = atomic.AddUint64(&connIDSeq, 1)
	}
	return id
}

// Connection is one accepted or outbound socket. Its exported surface
// implements api.Conn so codecs can operate on it without netconn and
// codec import-cycling each other.
type Connection struct {
	id        uint64
	transport api.Transport
	fd        uintptr
	loop      *eventloop.Loop
	remote    string

	codec  api.Codec
	hooks  Hooks
	server ServerID

	recvBuf []byte
	sendBuf []byte

	bytesRead    uint64
	bytesWritten uint64

	maxSendBufferSize int
	maxPackageSize    int

	status     api.ConnStatus
	tlsDone    bool
	tlsConn    *tls.Conn
	tlsCfg     *TLSConfig
	pausedRead bool

	scratch any

	websocketType byte

	// pendingCloseThenDestroy marks a Close that is waiting for the send
	// buffer to drain before the connection is destroyed.
	pendingCloseThenDestroy bool

	fileSend *fileSend

	udpHost string
	udpPort int

	stats *Stats
}

// ServerID is the stable integer identity of the owning Server, carried
// instead of a strong pointer per "Cyclic references".
type ServerID int

// ID returns the connection's monotonic id.
func (c *Connection) ID() uint64 { return c.id }

// MaxPackageSize returns the configured maximum application frame size.
func (c *Connection) MaxPackageSize() int { return c.maxPackageSize }

// MaxSendBufferSize returns the configured send buffer cap.
func (c *Connection) MaxSendBufferSize() int { return c.maxSendBufferSize }

// RemoteAddr returns the peer address in host:port (or path) form.
func (c *Connection) RemoteAddr() string { return c.remote }

// Status returns the current lifecycle status.
func (c *Connection) Status() api.ConnStatus {
	return api.ConnStatus(atomic.LoadInt32((*int32)(&c.status)))
}

func (c *Connection) setStatus(s api.ConnStatus) { atomic.StoreInt32((*int32)(&c.status), int32(s)) }

// Scratch returns the codec-private state attached to this connection.
func (c *Connection) Scratch() any { return c.scratch }

// SetScratch replaces the codec-private state.
func (c *Connection) SetScratch(v any) { c.scratch = v }

// WebSocketType returns the default outbound WebSocket opcode byte.
func (c *Connection) WebSocketType() byte {
	if c.websocketType == 0 {
		return 0x81
	}
	return c.websocketType
}

// SetWebSocketType overrides the default outbound opcode (0x81 text,
// 0x82 binary).
func (c *Connection) SetWebSocketType(b byte) { c.websocketType = b }

// BytesRead / BytesWritten expose the per-connection counters.
func (c *Connection) BytesRead() uint64    { return atomic.LoadUint64(&c.bytesRead) }
func (c *Connection) BytesWritten() uint64 { return atomic.LoadUint64(&c.bytesWritten) }

// OnError invokes the error hook, if any, with a connection-fatal error,
// then destroys the connection. Only a genuine send failure counts toward
// the send_fail statistic; a failed connect never sent anything.
func (c *Connection) OnError(err *api.ConnError) {
	if c.stats != nil && err != nil && err.Code == api.ErrCodeSendFail {
		c.stats.addSendFail()
	}
	if c.hooks.OnError != nil {
		c.hooks.OnError(c, err)
	}
	c.Destroy()
}

// FD exposes the raw OS handle, mainly for Server bookkeeping and tests.
func (c *Connection) FD() uintptr { return c.fd }

// Transport reports which socket family this connection speaks.
func (c *Connection) Transport() api.Transport { return c.transport }

// PauseRead detaches the readable callback without closing the socket;
// used while CLOSING with a non-empty send buffer, and by Server.pauseAccept
// analogues for individual connections under backpressure.
func (c *Connection) PauseRead() {
	if c.pausedRead {
		return
	}
	c.pausedRead = true
	c.loop.OffReadable(c.fd)
}

// ResumeRead re-arms the readable callback.
func (c *Connection) ResumeRead() {
	if !c.pausedRead {
		return
	}
	c.pausedRead = false
	c.loop.OnReadable(c.fd, c.handleReadable)
}

func closeFD(fd uintptr) {
	_ = unix.Close(int(fd))
}
