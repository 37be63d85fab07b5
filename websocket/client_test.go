package websocket

import (
	"testing"

	"github.com/netcored/netcore/api"
	"github.com/stretchr/testify/require"
)

func TestClientCodecValidatesAccept(t *testing.T) {
	codec := NewClientCodec()
	conn := &stubConn{scratch: &clientState{key: "dGhlIHNhbXBsZSBub25jZQ=="}}

	resp := []byte("HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n\r\n")
	n := codec.Input(resp, conn)
	require.Equal(t, len(resp), n)
	msg, err := codec.Decode(resp[:n], conn)
	require.NoError(t, err)
	require.Nil(t, msg)

	st := conn.scratch.(*clientState)
	require.True(t, st.acked)
}

func TestClientCodecRejectsBadAccept(t *testing.T) {
	codec := NewClientCodec()
	conn := &stubConn{scratch: &clientState{key: "dGhlIHNhbXBsZSBub25jZQ=="}}
	resp := []byte("HTTP/1.1 101 Switching Protocols\r\nSec-WebSocket-Accept: wrong\r\n\r\n")
	_, err := codec.Decode(resp, conn)
	require.Error(t, err)
}

func TestClientCodecEncodeMasksFrames(t *testing.T) {
	codec := NewClientCodec()
	conn := &stubConn{scratch: &clientState{acked: true}}
	out, err := codec.Encode([]byte("hi"), conn)
	require.NoError(t, err)
	hdr, ok := parseFrameHeader(out)
	require.True(t, ok)
	require.True(t, hdr.Masked)
}

func TestClientCodecServerFrameMustNotBeMasked(t *testing.T) {
	codec := NewClientCodec()
	conn := &stubConn{scratch: &clientState{acked: true}}
	masked := encodeFrame(OpText, []byte("x"), true)
	_, err := codec.Decode(masked, conn)
	require.Error(t, err)
}

var _ api.Conn = (*stubConn)(nil)
