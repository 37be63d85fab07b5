package api

// Conn is the subset of netconn.Connection that a ProtocolCodec needs.
// Defining it here (rather than in netconn) lets codec implementations and
// netconn depend on api without a cyclic import between netconn and codec.
type Conn interface {
	// ID returns the connection's monotonic id.
	ID() uint64
	// MaxPackageSize returns the configured maximum application frame size.
	MaxPackageSize() int
	// MaxSendBufferSize returns the configured send buffer cap; codecs
	// that queue outbound bytes of their own (the WebSocket pre-handshake
	// buffer) bound them by the same limit.
	MaxSendBufferSize() int
	// Send writes data to the connection. When raw is false and a codec is
	// attached, Send runs the codec's Encode on data first; when raw is
	// true, data goes out as given.
	Send(data []byte, raw bool) error
	// Close begins the close sequence, optionally sending data first.
	Close(data []byte, raw bool) error
	// Scratch returns the codec-private state attached to this connection.
	Scratch() any
	// SetScratch replaces the codec-private state.
	SetScratch(v any)
	// RemoteAddr returns the peer address in host:port form.
	RemoteAddr() string
	// Status returns the current lifecycle status.
	Status() ConnStatus
	// WebSocketType returns the default outbound WebSocket opcode byte
	// (0x81 text, 0x82 binary) configured for this connection.
	WebSocketType() byte
	// OnError invokes the connection's error hook, if any, with a
	// connection-fatal error.
	OnError(err *ConnError)
}

// Codec is the three-operation framing contract. Every
// concrete codec (length-prefixed, line-delimited, HTTP, WebSocket) as well
// as application-supplied codecs implement this interface.
type Codec interface {
	// Input inspects the accumulated receive buffer and returns:
	//   0   - need more data
	//   N>0 - a complete frame of length N sits at the buffer head
	//   -1  - the buffer is invalid; the connection must be closed
	Input(buf []byte, conn Conn) int
	// Decode turns exactly one frame (as sized by Input) into an
	// application message.
	Decode(buf []byte, conn Conn) (Message, error)
	// Encode turns an outbound application message into wire bytes.
	Encode(msg Message, conn Conn) ([]byte, error)
}
