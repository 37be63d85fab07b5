package codec

import (
	"bytes"
	"fmt"

	"github.com/netcored/netcore/api"
)

// TextLine frames payloads at the first '\n'. A frame that grows past
// maxPackageSize without a terminator is a protocol violation, signalled
// via Input's -1 "fatal" return.
type TextLine struct{}

func NewTextLine() *TextLine { return &TextLine{} }

func (TextLine) Input(buf []byte, conn api.Conn) int {
	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		if max := conn.MaxPackageSize(); max > 0 && len(buf) >= max {
			return -1
		}
		return 0
	}
	return idx + 1
}

func (TextLine) Decode(buf []byte, conn api.Conn) (api.Message, error) {
	line := bytes.TrimSuffix(buf, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return line, nil
}

func (TextLine) Encode(msg api.Message, conn api.Conn) ([]byte, error) {
	payload, err := toBytes(msg)
	if err != nil {
		return nil, fmt.Errorf("netcore/codec: text encode: %w", err)
	}
	out := make([]byte, len(payload)+1)
	copy(out, payload)
	out[len(payload)] = '\n'
	return out, nil
}
