package websocket

import (
	"bytes"
	"fmt"

	"github.com/netcored/netcore/api"
)

const maxHandshakeHeaderBytes = 8192

// ServerHooks carries the application-level callbacks a ServerCodec
// invokes directly (the codec can only see the bare api.Conn it's handed,
// so the WebSocket-specific events go through these rather than through
// netconn.Hooks; netserver.WebSocketHooksFor bridges
// netserver.Hooks.OnWebSocketUpgrade into OnUpgrade).
type ServerHooks struct {
	OnUpgrade func(conn api.Conn, req *HandshakeRequest)
	OnPing    func(conn api.Conn, payload []byte)
	OnClose   func(conn api.Conn, payload []byte)
}

// ServerCodec implements the server-role state machine:
// AWAITING_HANDSHAKE -> HANDSHAKE_COMPLETE -> {FRAME_HEADER|FRAME_BODY}.
// All mutable per-connection state lives in conn.Scratch(), so the codec
// instance itself stays safe to share across every connection a Server
// accepts.
type ServerCodec struct {
	hooks     ServerHooks
	protocols []string
}

// NewServerCodec builds a server-role codec. protocols is the server's
// subprotocol list in preference order; pass nil when the server doesn't
// negotiate one.
func NewServerCodec(hooks ServerHooks, protocols []string) *ServerCodec {
	return &ServerCodec{hooks: hooks, protocols: protocols}
}

type serverState struct {
	handshakeDone bool
	fragBuf       []byte
	fragOpcode    byte
	fragmenting   bool
	pending       [][]byte
}

func (c *ServerCodec) state(conn api.Conn) *serverState {
	st, ok := conn.Scratch().(*serverState)
	if !ok {
		st = &serverState{}
		conn.SetScratch(st)
	}
	return st
}

func (c *ServerCodec) Input(buf []byte, conn api.Conn) int {
	st := c.state(conn)
	if !st.handshakeDone {
		idx := bytes.Index(buf, []byte("\r\n\r\n"))
		if idx < 0 {
			if len(buf) > maxHandshakeHeaderBytes {
				return -1
			}
			return 0
		}
		return idx + 4
	}

	hdr, ok := parseFrameHeader(buf)
	if !ok {
		return 0
	}
	if max := conn.MaxPackageSize(); max > 0 {
		total := len(st.fragBuf) + hdr.Length
		if total > max {
			return -1
		}
	}
	total := hdr.totalLen()
	if len(buf) < total {
		return 0
	}
	return total
}

func (c *ServerCodec) Decode(buf []byte, conn api.Conn) (api.Message, error) {
	st := c.state(conn)
	if !st.handshakeDone {
		return c.decodeHandshake(buf, st, conn)
	}

	hdr, ok := parseFrameHeader(buf)
	if !ok {
		return nil, fmt.Errorf("websocket: decode called on incomplete frame")
	}
	if !hdr.Masked {
		return nil, fmt.Errorf("websocket: unmasked frame from client")
	}
	payload := append([]byte(nil), buf[hdr.HeaderLen:hdr.HeaderLen+hdr.Length]...)
	unmaskInPlace(payload, hdr.MaskKey)

	switch hdr.Opcode {
	case OpPing:
		if c.hooks.OnPing != nil {
			c.hooks.OnPing(conn, payload)
		} else {
			_ = conn.Send(encodeFrame(OpPong, payload, false), true)
		}
		return nil, nil
	case OpPong:
		return nil, nil
	case OpClose:
		if c.hooks.OnClose != nil {
			c.hooks.OnClose(conn, payload)
		} else {
			_ = conn.Send([]byte{0x88, 0x02, 0x03, 0xe8}, true)
			_ = conn.Close(nil, true)
		}
		return nil, nil
	case OpText, OpBinary, OpContinuation:
		if hdr.Opcode != OpContinuation {
			st.fragOpcode = hdr.Opcode
			st.fragmenting = true
		}
		st.fragBuf = append(st.fragBuf, payload...)
		if !hdr.Fin {
			return nil, nil
		}
		msg := st.fragBuf
		st.fragBuf = nil
		st.fragmenting = false
		return msg, nil
	default:
		return nil, fmt.Errorf("websocket: unknown opcode %#x", hdr.Opcode)
	}
}

func (c *ServerCodec) decodeHandshake(buf []byte, st *serverState, conn api.Conn) (api.Message, error) {
	block := bytes.TrimSuffix(buf, []byte("\r\n\r\n"))
	requestLine, headers := parseHeaderBlock(block)
	if !bytes.HasPrefix([]byte(requestLine), []byte("GET ")) {
		return nil, fmt.Errorf("websocket: handshake request line is not GET: %q", requestLine)
	}
	if !headerContainsToken(headers, "Connection", "Upgrade") ||
		!headerContainsToken(headers, "Upgrade", "websocket") {
		return nil, fmt.Errorf("websocket: invalid upgrade headers")
	}
	if getHeaderCI(headers, "Sec-WebSocket-Version") != "13" {
		return nil, fmt.Errorf("websocket: unsupported Sec-WebSocket-Version")
	}
	key := getHeaderCI(headers, "Sec-WebSocket-Key")
	if key == "" {
		return nil, fmt.Errorf("websocket: missing Sec-WebSocket-Key")
	}

	offeredProtocols := splitTokenList(getHeaderCI(headers, "Sec-WebSocket-Protocol"))
	protocol := negotiateSubprotocol(c.protocols, offeredProtocols)
	// Sec-WebSocket-Extensions is parsed for the OnUpgrade hook's benefit
	// but never negotiated or acted on; no extension is
	// implemented.
	extensions := splitTokenList(getHeaderCI(headers, "Sec-WebSocket-Extensions"))

	if err := conn.Send(serverHandshakeResponse(acceptValue(key), protocol), true); err != nil {
		return nil, err
	}
	st.handshakeDone = true

	if c.hooks.OnUpgrade != nil {
		c.hooks.OnUpgrade(conn, &HandshakeRequest{
			Path:       requestPath(requestLine),
			Headers:    headers,
			Extensions: extensions,
		})
	}
	for _, frame := range st.pending {
		_ = conn.Send(frame, true)
	}
	st.pending = nil
	return nil, nil
}

func (c *ServerCodec) Encode(msg api.Message, conn api.Conn) ([]byte, error) {
	payload, err := messageBytes(msg)
	if err != nil {
		return nil, err
	}
	frame := encodeFrame(conn.WebSocketType(), payload, false)

	st := c.state(conn)
	if st.handshakeDone {
		return frame, nil
	}

	pendingBytes := len(frame)
	for _, f := range st.pending {
		pendingBytes += len(f)
	}
	if pendingBytes > conn.MaxSendBufferSize() {
		conn.OnError(api.NewConnError(api.ErrCodeSendFail, "send full buffer and drop package"))
		return []byte{}, nil
	}
	st.pending = append(st.pending, frame)
	return []byte{}, nil
}

func messageBytes(msg api.Message) ([]byte, error) {
	switch v := msg.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("websocket: encode expects []byte or string, got %T", msg)
	}
}
