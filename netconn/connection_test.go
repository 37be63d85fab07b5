package netconn

import (
	"testing"

	"github.com/netcored/netcore/api"
	"github.com/netcored/netcore/eventloop"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestConnection(t *testing.T) (*Connection, *Stats) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Close(fds[1]) })

	stats := NewStats()
	return &Connection{
		loop:   loop,
		fd:     uintptr(fds[0]),
		stats:  stats,
		status: api.StatusEstablished,
	}, stats
}

func TestNextConnIDNeverZero(t *testing.T) {
	connIDSeq = ^uint64(0) // force the wraparound edge
	id := nextConnID()
	require.NotZero(t, id)
}

func TestConnectionScratchRoundTrip(t *testing.T) {
	c := &Connection{}
	require.Nil(t, c.Scratch())
	c.SetScratch("hello")
	require.Equal(t, "hello", c.Scratch())
}

func TestWebSocketTypeDefaultsToText(t *testing.T) {
	c := &Connection{}
	require.Equal(t, byte(0x81), c.WebSocketType())
	c.SetWebSocketType(0x82)
	require.Equal(t, byte(0x82), c.WebSocketType())
}

func TestStatusOnlyExposedThroughAccessor(t *testing.T) {
	c := &Connection{}
	c.setStatus(api.StatusEstablished)
	require.Equal(t, api.StatusEstablished, c.Status())
}

func TestOnErrorCountsSendFailOnly(t *testing.T) {
	c, stats := newTestConnection(t)
	c.OnError(api.NewConnError(api.ErrCodeSendFail, "write failed"))
	require.EqualValues(t, 1, stats.SendFail())
}

func TestOnErrorSkipsSendFailForConnectFail(t *testing.T) {
	c, stats := newTestConnection(t)
	c.OnError(api.NewConnError(api.ErrCodeConnectFail, "connect timed out"))
	require.EqualValues(t, 0, stats.SendFail())
}

func TestFailSkipsSendFailForConnectFail(t *testing.T) {
	c, stats := newTestConnection(t)
	c.fail(api.ErrCodeConnectFail, "connect timed out")
	require.EqualValues(t, 0, stats.SendFail())
}

func TestSendBufferOverflowDropsPackageAndFails(t *testing.T) {
	c, stats := newTestConnection(t)
	c.maxSendBufferSize = 4
	c.setStatus(api.StatusConnecting) // not ESTABLISHED: Send takes the buffering path

	var gotErr *api.ConnError
	full := false
	c.hooks.OnBufferFull = func(*Connection) { full = true }
	c.hooks.OnError = func(_ *Connection, err *api.ConnError) { gotErr = err }

	err := c.Send([]byte("too big"), true)
	require.Error(t, err)
	require.NotNil(t, gotErr)
	require.Equal(t, api.ErrCodeSendFail, gotErr.Code)
	require.True(t, full)
	require.EqualValues(t, 1, stats.SendFail())
	require.Equal(t, api.StatusClosed, c.Status())
}

func TestSendBufferAcceptsUpToLimit(t *testing.T) {
	c, stats := newTestConnection(t)
	c.maxSendBufferSize = 8
	c.setStatus(api.StatusConnecting)

	require.NoError(t, c.Send([]byte("12345678"), true))
	require.Len(t, c.sendBuf, 8)
	require.EqualValues(t, 0, stats.SendFail())
}
