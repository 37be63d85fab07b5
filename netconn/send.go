package netconn

import (
	"github.com/netcored/netcore/api"
	"golang.org/x/sys/unix"
)

// Send queues or writes data on the connection. When raw is false and a
// codec is attached, Encode is invoked first; if the connection is not yet
// ESTABLISHED (or TLS handshake incomplete) the bytes queue in the send
// buffer, subject to maxSendBufferSize.
func (c *Connection) Send(data []byte, raw bool) error {
	if c.transport == api.TransportUDP && c.Status() == api.StatusInitial {
		if err := c.udpConnectOnce(); err != nil {
			c.fail(api.ErrCodeConnectFail, "udp connect failed: %v", err)
			return err
		}
	}

	out := data
	if !raw && c.codec != nil {
		encoded, err := c.codec.Encode(data, c)
		if err != nil {
			return err
		}
		out = encoded
	}

	if c.Status() != api.StatusEstablished || (c.transport == api.TransportSSL && !c.tlsDone) {
		return c.bufferBytes(out)
	}

	if len(c.sendBuf) > 0 {
		// already draining; append and let the writable callback catch up.
		return c.bufferBytes(out)
	}

	n, err := c.rawWrite(out)
	if err != nil {
		if err == unix.EAGAIN {
			return c.bufferBytes(out)
		}
		c.fail(api.ErrCodeSendFail, "write failed: %v", err)
		return err
	}
	if n < len(out) {
		return c.bufferBytes(out[n:])
	}
	return nil
}

func (c *Connection) bufferBytes(data []byte) error {
	if len(c.sendBuf)+len(data) > c.maxSendBufferSize {
		// the package is dropped, never partially queued.
		if c.hooks.OnBufferFull != nil {
			c.hooks.OnBufferFull(c)
		}
		c.fail(api.ErrCodeSendFail, "send buffer full and drop package")
		return api.NewConnError(api.ErrCodeSendFail, "send buffer full and drop package")
	}
	wasEmpty := len(c.sendBuf) == 0
	c.sendBuf = append(c.sendBuf, data...)
	if wasEmpty && len(c.sendBuf) > 0 {
		c.loop.OnWritable(c.fd, c.handleWritable)
	}
	return nil
}

// handleWritable drains the send buffer incrementally; fires
// OnBufferDrain when it empties.
func (c *Connection) handleWritable() {

	if c.fileSend != nil {
		c.pumpFileSend()
		return
	}

	if len(c.sendBuf) == 0 {
		c.loop.OffWritable(c.fd)
		return
	}
	n, err := c.rawWrite(c.sendBuf)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		c.fail(api.ErrCodeSendFail, "write failed: %v", err)
		return
	}
	c.sendBuf = c.sendBuf[n:]
	if len(c.sendBuf) == 0 {
		c.loop.OffWritable(c.fd)
		if c.hooks.OnBufferDrain != nil {
			c.hooks.OnBufferDrain(c)
		}
		if c.pendingCloseThenDestroy {
			c.Destroy()
		}
	}
}

func (c *Connection) rawWrite(data []byte) (int, error) {
	if c.tlsConn != nil && c.tlsDone {
		return c.tlsConn.Write(data)
	}
	n, err := unix.Write(int(c.fd), data)
	if err == nil {
		c.bytesWrittenAdd(uint64(n))
	}
	return n, err
}

func (c *Connection) bytesWrittenAdd(n uint64) { c.bytesWritten += n }

// Close shuts the connection down: if data is given it is sent first;
// status advances to CLOSING; destruction is immediate if the send buffer
// is empty, otherwise deferred to drain.
func (c *Connection) Close(data []byte, raw bool) error {
	if c.Status() >= api.StatusClosing {
		return nil
	}
	if len(data) > 0 {
		if err := c.Send(data, raw); err != nil {
			return err
		}
	}
	c.setStatus(api.StatusClosing)
	if len(c.sendBuf) == 0 {
		c.Destroy()
		return nil
	}
	c.PauseRead()
	c.pendingCloseThenDestroy = true
	return nil
}

// Destroy deregisters I/O callbacks, closes the socket, clears buffers,
// fires OnClose, and removes the connection from its registry exactly
// once; subsequent calls are idempotent no-ops.
func (c *Connection) Destroy() {
	if c.Status() == api.StatusClosed {
		return
	}
	c.loop.OffReadable(c.fd)
	c.loop.OffWritable(c.fd)
	closeFD(c.fd)
	c.sendBuf = nil
	c.recvBuf = nil
	c.setStatus(api.StatusClosed)
	if c.stats != nil {
		c.stats.removeConnection()
	}
	if c.hooks.OnClose != nil {
		c.hooks.OnClose(c)
	}
}

// fail delivers a connection-fatal error to the error hook and destroys
// the connection.
func (c *Connection) fail(code api.ErrorCode, format string, args ...any) {
	err := api.NewConnError(code, format, args...)
	if c.stats != nil && code == api.ErrCodeSendFail {
		c.stats.addSendFail()
	}
	if c.hooks.OnError != nil {
		c.hooks.OnError(c, err)
	}
	c.Destroy()
}
