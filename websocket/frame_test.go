package websocket

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrameRoundTripUnmasked(t *testing.T) {
	frame := encodeFrame(OpText, []byte("hello world"), false)
	hdr, ok := parseFrameHeader(frame)
	require.True(t, ok)
	require.True(t, hdr.Fin)
	require.Equal(t, byte(OpText), hdr.Opcode)
	require.False(t, hdr.Masked)
	payload := frame[hdr.HeaderLen : hdr.HeaderLen+hdr.Length]
	require.Equal(t, []byte("hello world"), payload)
}

func TestEncodeFrameMaskedRoundTrip(t *testing.T) {
	frame := encodeFrame(OpBinary, []byte("payload-bytes"), true)
	hdr, ok := parseFrameHeader(frame)
	require.True(t, ok)
	require.True(t, hdr.Masked)
	payload := append([]byte(nil), frame[hdr.HeaderLen:hdr.HeaderLen+hdr.Length]...)
	unmaskInPlace(payload, hdr.MaskKey)
	require.Equal(t, []byte("payload-bytes"), payload)
}

func TestParseFrameHeaderExtendedLength16(t *testing.T) {
	payload := make([]byte, 200)
	frame := encodeFrame(OpBinary, payload, false)
	hdr, ok := parseFrameHeader(frame)
	require.True(t, ok)
	require.Equal(t, 200, hdr.Length)
	require.Equal(t, 4, hdr.HeaderLen) // 2-byte base header + 2-byte extended length
}

func TestParseFrameHeaderIncomplete(t *testing.T) {
	_, ok := parseFrameHeader([]byte{0x81})
	require.False(t, ok)
}

func TestAcceptValueMatchesRFC6455Example(t *testing.T) {
	// the canonical RFC 6455 §1.3 worked example.
	require.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", acceptValue("dGhlIHNhbXBsZSBub25jZQ=="))
}
