package netserver

import (
	"net"
	"testing"
	"time"

	"github.com/netcored/netcore/api"
	"github.com/netcored/netcore/codec"
	"github.com/netcored/netcore/eventloop"
	"github.com/netcored/netcore/netconn"
	"github.com/stretchr/testify/require"
)

func freeTCPAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func TestServerAcceptsAndEchoesLengthPrefixedFrames(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)

	reg := codec.NewRegistry()
	lenCodec, err := reg.Build("length")
	require.NoError(t, err)

	connected := make(chan struct{}, 1)
	received := make(chan api.Message, 1)

	s := New(loop, Config{
		Name:      "echo",
		Transport: api.TransportTCP,
		Addr:      freeTCPAddr(t),
		Codec:     lenCodec,
		Hooks: Hooks{
			OnConnect: func(c *netconn.Connection) { connected <- struct{}{} },
			OnMessage: func(c *netconn.Connection, msg api.Message) {
				received <- msg
				_ = c.Send(msg.([]byte), false)
			},
		},
	})
	require.NoError(t, s.Listen())

	go loop.Run()
	defer loop.Stop()

	conn, err := net.DialTimeout("tcp", s.Addr(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnConnect")
	}

	frame := []byte{0, 0, 0, 9, 'h', 'e', 'l', 'l', 'o'}
	_, err = conn.Write(frame)
	require.NoError(t, err)

	select {
	case msg := <-received:
		require.Equal(t, []byte("hello"), msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnMessage")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	echoBuf := make([]byte, len(frame))
	n, err := conn.Read(echoBuf)
	require.NoError(t, err)
	require.Equal(t, frame, echoBuf[:n])

	require.Equal(t, 1, s.ConnectionCount())
}

func TestHTTPRequestAutoClosesWhenNotKeepAlive(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)

	reg := codec.NewRegistry()
	httpCodec, err := reg.Build("http")
	require.NoError(t, err)

	s := New(loop, Config{
		Name:      "http",
		Transport: api.TransportTCP,
		Addr:      freeTCPAddr(t),
		Codec:     httpCodec,
		Hooks: Hooks{
			OnMessage: func(c *netconn.Connection, msg api.Message) {
				req := msg.(*codec.Request)
				encoded, err := httpCodec.Encode(&codec.Response{Status: 200, Body: []byte("ok"), KeepAlive: req.ShouldKeepAlive()}, c)
				require.NoError(t, err)
				_ = c.Send(encoded, true)
			},
		},
	})
	require.NoError(t, s.Listen())

	go loop.Run()
	defer loop.Stop()

	conn, err := net.DialTimeout("tcp", s.Addr(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	// HTTP/1.0 with no Connection header defaults to close; the server
	// should drop its side once the reply is sent.
	_, err = conn.Write([]byte("GET / HTTP/1.0\r\n\r\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), "200")

	n2, err := conn.Read(buf)
	require.Equal(t, 0, n2)
	require.Error(t, err)
}

func TestPauseResumeAcceptTogglesState(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	s := New(loop, Config{Name: "p", Transport: api.TransportTCP, Addr: freeTCPAddr(t)})
	require.NoError(t, s.Listen())

	require.False(t, s.paused)
	s.PauseAccept()
	require.True(t, s.paused)
	s.ResumeAccept()
	require.False(t, s.paused)
}

func TestSubprotocolsReportsConfiguredList(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	s := New(loop, Config{
		Name:         "ws",
		Transport:    api.TransportTCP,
		Addr:         freeTCPAddr(t),
		Subprotocols: []string{"chat.v2", "chat.v1"},
	})
	require.Equal(t, []string{"chat.v2", "chat.v1"}, s.Subprotocols())
}

func TestLookupAndAllFindRegisteredServers(t *testing.T) {
	loop, err := eventloop.New()
	require.NoError(t, err)
	s := New(loop, Config{Name: "lookup-me", Transport: api.TransportTCP, Addr: freeTCPAddr(t)})

	found, ok := Lookup(s.ID())
	require.True(t, ok)
	require.Same(t, s, found)

	all := All()
	var seen bool
	for _, srv := range all {
		if srv.ID() == s.ID() {
			seen = true
		}
	}
	require.True(t, seen)
}
