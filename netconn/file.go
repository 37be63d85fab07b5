package netconn

import (
	"io"
	"os"

	"github.com/netcored/netcore/api"
	"golang.org/x/sys/unix"
)

const fileSendChunkSize = 1 << 20 // 1 MiB page

// fileSend tracks an in-progress streaming file transmission queued behind
// SendFile.
// remain is the number of bytes still to be read from f; -1 means "read to
// EOF" (no explicit size was given).
type fileSend struct {
	f      *os.File
	remain int64
}

// SendFile streams header followed by the contents of f (up to size bytes,
// or to EOF if size <= 0), respecting backpressure: the file is read in
// fileSendChunkSize pages only while the send buffer has room, pausing
// between OnBufferFull and OnBufferDrain like any other large write.
func (c *Connection) SendFile(f *os.File, size int64, header []byte) error {

	if c.fileSend != nil {
		return api.NewConnError(api.ErrCodeSendFail, "file send already in progress")
	}
	if len(header) > 0 {
		if err := c.Send(header, true); err != nil {
			return err
		}
	}
	remain := int64(-1)
	if size > 0 {
		remain = size
	}
	c.fileSend = &fileSend{f: f, remain: remain}
	c.loop.OnWritable(c.fd, c.handleWritable)
	c.pumpFileSend()
	return nil
}

// pumpFileSend is called from handleWritable while a fileSend is
// active. It first drains any bytes already buffered from a previous page,
// then reads and buffers one more page, stopping for this tick as soon as
// the buffer holds unflushed bytes; the next writable event resumes it.
func (c *Connection) pumpFileSend() {
	fs := c.fileSend
	if fs == nil {
		return
	}

	if len(c.sendBuf) > 0 {
		n, err := c.rawWrite(c.sendBuf)
		if err != nil && err != unix.EAGAIN {
			c.abortFileSend(err)
			return
		}
		c.sendBuf = c.sendBuf[n:]
		if len(c.sendBuf) > 0 {
			return
		}
	}

	chunkSize := int64(fileSendChunkSize)
	if fs.remain >= 0 && fs.remain < chunkSize {
		chunkSize = fs.remain
	}
	if chunkSize == 0 {
		c.finishFileSend()
		return
	}

	buf := make([]byte, chunkSize)
	n, err := fs.f.Read(buf)
	if n > 0 {
		if fs.remain > 0 {
			fs.remain -= int64(n)
		}
		if bufErr := c.bufferBytes(buf[:n]); bufErr != nil {
			c.fileSend = nil
			_ = fs.f.Close()
			return
		}
	}
	if err == io.EOF || n == 0 || fs.remain == 0 {
		c.finishFileSend()
		return
	}
	if err != nil {
		c.abortFileSend(err)
	}
}

func (c *Connection) abortFileSend(err error) {
	fs := c.fileSend
	c.fileSend = nil
	if fs != nil {
		_ = fs.f.Close()
	}
	c.fail(api.ErrCodeSendFail, "file send failed: %v", err)
}

func (c *Connection) finishFileSend() {
	fs := c.fileSend
	if fs == nil {
		return
	}
	c.fileSend = nil
	_ = fs.f.Close()
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
