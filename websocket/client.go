package websocket

import (
	"bytes"
	"fmt"
	"time"

	"github.com/netcored/netcore/api"
	"github.com/netcored/netcore/eventloop"
	"github.com/netcored/netcore/netconn"
)

// ClientHooks mirrors netconn.Hooks but is wrapped by Dial so the client
// state machine can inject its own handshake-send/ping-teardown logic
// around the application's callbacks.
type ClientHooks struct {
	OnConnect     func(c *netconn.Connection)
	OnMessage     func(c *netconn.Connection, msg api.Message)
	OnClose       func(c *netconn.Connection)
	OnError       func(c *netconn.Connection, err *api.ConnError)
	OnBufferFull  func(c *netconn.Connection)
	OnBufferDrain func(c *netconn.Connection)
}

// ClientCodec implements the client role: CONNECTING ->
// HS_SENT -> HS_ACKED -> {FRAME_HEADER|FRAME_BODY}, with masked outbound
// frames.
type ClientCodec struct{}

func NewClientCodec() *ClientCodec { return &ClientCodec{} }

type clientState struct {
	key         string
	acked       bool
	fragBuf     []byte
	fragOpcode  byte
	pingTimerID eventloop.ID
	pending     [][]byte
}

// Dial opens an outbound WebSocket client connection: a plain async TCP
// connect (optionally wss via tlsCfg) followed by the upgrade handshake
// sent as soon as the socket connects.
func Dial(loop *eventloop.Loop, host string, port int, path string, extraHeaders map[string]string,
	hooks ClientHooks, cfg netconn.Config, stats *netconn.Stats, connectTimeoutSecs float64,
	pingInterval time.Duration, tlsCfg *netconn.TLSConfig) (*netconn.Connection, error) {

	codec := NewClientCodec()
	key := newClientKey()

	transport := api.TransportTCP
	if tlsCfg != nil {
		transport = api.TransportSSL
	}

	var conn *netconn.Connection
	netHooks := netconn.Hooks{
		OnConnect: func(c *netconn.Connection) {
			st := &clientState{key: key}
			c.SetScratch(st)
			_ = c.Send(clientHandshakeRequest(path, host, key, extraHeaders), true)
			if pingInterval > 0 {
				st.pingTimerID = loop.Repeat(pingInterval.Seconds(), func() {
					if c.Status() == api.StatusEstablished {
						_ = c.Send([]byte{0x89, 0x80, 0x00, 0x00, 0x00, 0x00}, true)
					}
				})
			}
			if hooks.OnConnect != nil {
				hooks.OnConnect(c)
			}
		},
		OnMessage: hooks.OnMessage,
		OnClose: func(c *netconn.Connection) {
			if st, ok := c.Scratch().(*clientState); ok && st.pingTimerID != "" {
				loop.Cancel(st.pingTimerID)
			}
			c.SetScratch(nil)
			if hooks.OnClose != nil {
				hooks.OnClose(c)
			}
		},
		OnError:       hooks.OnError,
		OnBufferFull:  hooks.OnBufferFull,
		OnBufferDrain: hooks.OnBufferDrain,
	}

	var err error
	conn, err = netconn.NewAsyncTCP(loop, transport, host, port, codec, netHooks, cfg, stats, nil, connectTimeoutSecs, tlsCfg)
	return conn, err
}

func (c *ClientCodec) state(conn api.Conn) *clientState {
	st, _ := conn.Scratch().(*clientState)
	if st == nil {
		st = &clientState{}
		conn.SetScratch(st)
	}
	return st
}

func (c *ClientCodec) Input(buf []byte, conn api.Conn) int {
	st := c.state(conn)
	if !st.acked {
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

func (c *ClientCodec) Decode(buf []byte, conn api.Conn) (api.Message, error) {
	st := c.state(conn)
	if !st.acked {
		block := bytes.TrimSuffix(buf, []byte("\r\n\r\n"))
		statusLine, headers := parseHeaderBlock(block)
		if !bytes.Contains([]byte(statusLine), []byte("101")) {
			return nil, fmt.Errorf("websocket: handshake rejected: %s", statusLine)
		}
		accept := getHeaderCI(headers, "Sec-WebSocket-Accept")
		if accept != acceptValue(st.key) {
			return nil, fmt.Errorf("websocket: Sec-WebSocket-Accept mismatch")
		}
		st.acked = true
		for _, frame := range st.pending {
			_ = conn.Send(frame, true)
		}
		st.pending = nil
		return nil, nil
	}

	hdr, ok := parseFrameHeader(buf)
	if !ok {
		return nil, fmt.Errorf("websocket: decode called on incomplete frame")
	}
	if hdr.Masked {
		return nil, fmt.Errorf("websocket: server frame must not be masked")
	}
	payload := append([]byte(nil), buf[hdr.HeaderLen:hdr.HeaderLen+hdr.Length]...)

	switch hdr.Opcode {
	case OpPing:
		_ = conn.Send(encodeFrame(OpPong, payload, true), true)
		return nil, nil
	case OpPong:
		return nil, nil
	case OpClose:
		_ = conn.Close(nil, true)
		return nil, nil
	case OpText, OpBinary, OpContinuation:
		if hdr.Opcode != OpContinuation {
			st.fragOpcode = hdr.Opcode
		}
		st.fragBuf = append(st.fragBuf, payload...)
		if !hdr.Fin {
			return nil, nil
		}
		msg := st.fragBuf
		st.fragBuf = nil
		return msg, nil
	default:
		return nil, fmt.Errorf("websocket: unknown opcode %#x", hdr.Opcode)
	}
}

func (c *ClientCodec) Encode(msg api.Message, conn api.Conn) ([]byte, error) {
	payload, err := messageBytes(msg)
	if err != nil {
		return nil, err
	}
	frame := encodeFrame(conn.WebSocketType(), payload, true)

	st := c.state(conn)
	if st.acked {
		return frame, nil
	}
	st.pending = append(st.pending, frame)
	return []byte{}, nil
}
