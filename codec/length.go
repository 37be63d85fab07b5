// Package codec implements the ProtocolCodec contract:
// input/decode/encode over a byte buffer and an api.Conn, covering the
// application-level (non-WebSocket) wire formats.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/netcored/netcore/api"
)

// LengthPrefixed frames payloads behind a 4-byte big-endian total length
// that includes its own 4 bytes.
type LengthPrefixed struct{}

func NewLengthPrefixed() *LengthPrefixed { return &LengthPrefixed{} }

func (LengthPrefixed) Input(buf []byte, conn api.Conn) int {
	if len(buf) < 4 {
		return 0
	}
	total := int(binary.BigEndian.Uint32(buf))
	if total < 4 {
		return -1
	}
	if max := conn.MaxPackageSize(); max > 0 && total > max {
		return -1
	}
	if len(buf) < total {
		return 0
	}
	return total
}

func (LengthPrefixed) Decode(buf []byte, conn api.Conn) (api.Message, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("netcore/codec: length-prefixed frame too short")
	}
	return buf[4:], nil
}

func (LengthPrefixed) Encode(msg api.Message, conn api.Conn) ([]byte, error) {
	payload, err := toBytes(msg)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out, uint32(4+len(payload)))
	copy(out[4:], payload)
	return out, nil
}

func toBytes(msg api.Message) ([]byte, error) {
	switch v := msg.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("netcore/codec: encode expects []byte or string, got %T", msg)
	}
}
