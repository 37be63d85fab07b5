package netconn

import (
	"github.com/netcored/netcore/api"
	"golang.org/x/sys/unix"
)

const readChunkSize = 64 * 1024

// keepAliver is implemented by decoded messages (the HTTP codec's
// *codec.Request) that want to signal whether this transport should stay
// open after onMessage returns. netconn stays codec-agnostic by checking
// for this duck-typed method rather than importing codec directly.
type keepAliver interface {
	ShouldKeepAlive() bool
}

// handleReadable is armed on the fd's readable event; it extends recvBuf
// and runs the input -> decode -> onMessage pipeline.
func (c *Connection) handleReadable() {
	buf := make([]byte, readChunkSize)
	n, err := c.rawRead(buf)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		c.Destroy()
		return
	}
	if n == 0 {
		// peer closed (EOF).
		c.Destroy()
		return
	}

	c.bytesRead += uint64(n)
	c.recvBuf = append(c.recvBuf, buf[:n]...)

	c.drainRecvBuf()
}

func (c *Connection) rawRead(buf []byte) (int, error) {
	if c.tlsConn != nil && c.tlsDone {
		return c.tlsConn.Read(buf)
	}
	return unix.Read(int(c.fd), buf)
}

// drainRecvBuf repeatedly asks the codec for frame boundaries, delivering
// each complete frame to onMessage, until Input reports "need more data".
func (c *Connection) drainRecvBuf() {
	for {
		if c.Status() == api.StatusClosed {
			return
		}
		if c.codec == nil {
			raw := c.recvBuf
			c.recvBuf = nil
			if len(raw) > 0 && c.hooks.OnMessage != nil {
				c.hooks.OnMessage(c, raw)
				if c.stats != nil {
					c.stats.addRequest()
				}
			}
			return
		}

		n := c.codec.Input(c.recvBuf, c)
		if n == 0 {
			return
		}
		if n < 0 {
			c.fail(api.ErrCodeSendFail, "protocol violation")
			return
		}
		frame := make([]byte, n)
		copy(frame, c.recvBuf[:n])
		c.recvBuf = c.recvBuf[n:]

		msg, err := c.codec.Decode(frame, c)
		if err != nil {
			c.fail(api.ErrCodeSendFail, "decode failed: %v", err)
			return
		}
		// msg == nil means the codec consumed the frame internally
		// (a WebSocket control frame, or the upgrade handshake) without
		// producing an application message.
		if msg != nil {
			if c.hooks.OnMessage != nil {
				c.hooks.OnMessage(c, msg)
			}
			if c.stats != nil {
				c.stats.addRequest()
			}
			if ka, ok := msg.(keepAliver); ok && !ka.ShouldKeepAlive() && c.Status() < api.StatusClosing {
				_ = c.Close(nil, true)
			}
		}
		if c.Status() == api.StatusClosed {
			return
		}
	}
}
