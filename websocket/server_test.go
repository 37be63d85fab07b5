package websocket

import (
	"bytes"
	"testing"

	"github.com/netcored/netcore/api"
	"github.com/stretchr/testify/require"
)

type stubConn struct {
	scratch   any
	sent      [][]byte
	wsType    byte
	errs      []*api.ConnError
	closed    bool
	sendLimit int
}

func (c *stubConn) ID() uint64          { return 1 }
func (c *stubConn) MaxPackageSize() int { return 1 << 20 }
func (c *stubConn) MaxSendBufferSize() int {
	if c.sendLimit == 0 {
		return 1 << 20
	}
	return c.sendLimit
}
func (c *stubConn) Send(data []byte, raw bool) error {
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}
func (c *stubConn) Close(data []byte, raw bool) error { c.closed = true; return nil }
func (c *stubConn) Scratch() any                      { return c.scratch }
func (c *stubConn) SetScratch(v any)                  { c.scratch = v }
func (c *stubConn) RemoteAddr() string                { return "127.0.0.1:1234" }
func (c *stubConn) Status() api.ConnStatus            { return api.StatusEstablished }
func (c *stubConn) WebSocketType() byte {
	if c.wsType == 0 {
		return 0x81
	}
	return c.wsType
}
func (c *stubConn) OnError(err *api.ConnError) { c.errs = append(c.errs, err) }

const handshakeReq = "GET /chat HTTP/1.1\r\nHost: example.com\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 13\r\n\r\n"

func TestServerCodecHandshakeThenFrame(t *testing.T) {
	var upgraded *HandshakeRequest
	codec := NewServerCodec(ServerHooks{
		OnUpgrade: func(conn api.Conn, req *HandshakeRequest) { upgraded = req },
	}, nil)
	conn := &stubConn{}

	raw := []byte(handshakeReq)
	n := codec.Input(raw, conn)
	require.Equal(t, len(raw), n)
	msg, err := codec.Decode(raw[:n], conn)
	require.NoError(t, err)
	require.Nil(t, msg)
	require.NotNil(t, upgraded)
	require.Equal(t, "/chat", upgraded.Path)
	require.Len(t, conn.sent, 1)
	require.Contains(t, string(conn.sent[0]), "101 Switching Protocols")
	require.Contains(t, string(conn.sent[0]), "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=")

	clientFrame := encodeFrame(OpText, []byte("hi"), true)
	fn := codec.Input(clientFrame, conn)
	require.Equal(t, len(clientFrame), fn)
	decoded, err := codec.Decode(clientFrame[:fn], conn)
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), decoded)
}

func TestServerCodecNegotiatesFirstMatchingSubprotocol(t *testing.T) {
	codec := NewServerCodec(ServerHooks{}, []string{"chat.v2", "chat.v1"})
	conn := &stubConn{}

	raw := []byte("GET /chat HTTP/1.1\r\nHost: example.com\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 13\r\nSec-WebSocket-Protocol: chat.v1, chat.v3\r\n\r\n")
	n := codec.Input(raw, conn)
	_, err := codec.Decode(raw[:n], conn)
	require.NoError(t, err)
	require.Len(t, conn.sent, 1)
	require.Contains(t, string(conn.sent[0]), "Sec-WebSocket-Protocol: chat.v1")
}

func TestServerCodecOmitsProtocolHeaderWhenNoneMatch(t *testing.T) {
	codec := NewServerCodec(ServerHooks{}, []string{"chat.v2"})
	conn := &stubConn{}

	raw := []byte("GET /chat HTTP/1.1\r\nHost: example.com\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 13\r\nSec-WebSocket-Protocol: chat.v1\r\n\r\n")
	n := codec.Input(raw, conn)
	_, err := codec.Decode(raw[:n], conn)
	require.NoError(t, err)
	require.NotContains(t, string(conn.sent[0]), "Sec-WebSocket-Protocol")
}

func TestServerCodecParsesExtensionsWithoutActingOnThem(t *testing.T) {
	var upgraded *HandshakeRequest
	codec := NewServerCodec(ServerHooks{
		OnUpgrade: func(conn api.Conn, req *HandshakeRequest) { upgraded = req },
	}, nil)
	conn := &stubConn{}

	raw := []byte("GET /chat HTTP/1.1\r\nHost: example.com\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\nSec-WebSocket-Version: 13\r\nSec-WebSocket-Extensions: permessage-deflate, x-foo\r\n\r\n")
	n := codec.Input(raw, conn)
	_, err := codec.Decode(raw[:n], conn)
	require.NoError(t, err)
	require.NotNil(t, upgraded)
	require.Equal(t, []string{"permessage-deflate", "x-foo"}, upgraded.Extensions)
}

func TestServerCodecRejectsUnmaskedClientFrame(t *testing.T) {
	codec := NewServerCodec(ServerHooks{}, nil)
	conn := &stubConn{scratch: &serverState{handshakeDone: true}}
	frame := encodeFrame(OpText, []byte("hi"), false)
	_, err := codec.Decode(frame, conn)
	require.Error(t, err)
}

func TestServerCodecPingDefaultAutoPong(t *testing.T) {
	codec := NewServerCodec(ServerHooks{}, nil)
	conn := &stubConn{scratch: &serverState{handshakeDone: true}}
	ping := encodeFrame(OpPing, []byte("ping-body"), true)
	_, err := codec.Decode(ping, conn)
	require.NoError(t, err)
	require.Len(t, conn.sent, 1)
	hdr, ok := parseFrameHeader(conn.sent[0])
	require.True(t, ok)
	require.Equal(t, byte(OpPong), hdr.Opcode)
}

func TestServerCodecFragmentationAccumulates(t *testing.T) {
	codec := NewServerCodec(ServerHooks{}, nil)
	conn := &stubConn{scratch: &serverState{handshakeDone: true}}

	first := encodeFrame(OpText, []byte("hel"), true)
	first[0] &^= 0x80 // clear FIN
	msg, err := codec.Decode(first, conn)
	require.NoError(t, err)
	require.Nil(t, msg)

	second := encodeFrame(OpContinuation, []byte("lo"), true)
	msg, err = codec.Decode(second, conn)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), msg)
}

func TestServerCodecEncodeBuffersUntilHandshake(t *testing.T) {
	codec := NewServerCodec(ServerHooks{}, nil)
	conn := &stubConn{}
	out, err := codec.Encode([]byte("queued"), conn)
	require.NoError(t, err)
	require.Empty(t, out)
	st := codec.state(conn)
	require.Len(t, st.pending, 1)
}

func TestServerCodecEncodeDropsWhenPendingExceedsSendBufferCap(t *testing.T) {
	codec := NewServerCodec(ServerHooks{}, nil)
	conn := &stubConn{sendLimit: 16}

	out, err := codec.Encode(bytes.Repeat([]byte("x"), 32), conn)
	require.NoError(t, err)
	require.Empty(t, out)
	require.Len(t, conn.errs, 1)
	require.Equal(t, api.ErrCodeSendFail, conn.errs[0].Code)
	require.Empty(t, codec.state(conn).pending)
}
