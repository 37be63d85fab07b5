package netserver

import (
	"fmt"

	"github.com/netcored/netcore/api"
	"github.com/netcored/netcore/codec"
	"github.com/netcored/netcore/websocket"
)

// BuildCodec resolves scheme to a codec instance, spanning "length",
// "text", "http", "ws", "wss". The "ws"/
// "wss" schemes are handled here rather than inside codec.Registry
// itself, since registering them there would make codec import
// websocket, and websocket already imports netconn for Dial; putting
// the bridge in netserver (which imports both) keeps that edge acyclic.
// protocols is only meaningful for "ws"/"wss": it's the server's
// subprotocol list, negotiated against each client's
// Sec-WebSocket-Protocol offer during the handshake.
func BuildCodec(reg *codec.Registry, scheme string, wsHooks websocket.ServerHooks, protocols []string) (api.Codec, error) {
	switch scheme {
	case "ws", "wss":
		return websocket.NewServerCodec(wsHooks, protocols), nil
	default:
		return reg.Build(scheme)
	}
}

// WebSocketHooksFor adapts a Server's OnWebSocketUpgrade/application
// hooks into the websocket.ServerHooks shape NewServerCodec expects,
// so Config.Hooks stays the single place callers configure a server
// regardless of which codec scheme it ends up using.
func WebSocketHooksFor(h Hooks) websocket.ServerHooks {
	return websocket.ServerHooks{
		OnUpgrade: func(conn api.Conn, req *websocket.HandshakeRequest) {
			if h.OnWebSocketUpgrade != nil {
				h.OnWebSocketUpgrade(conn, req.Path, req.Headers)
			}
		},
	}
}

// ValidateScheme fails fast at Server construction time (never at
// runtime) for an unknown codec scheme.
func ValidateScheme(reg *codec.Registry, scheme string) error {
	if scheme == "ws" || scheme == "wss" {
		return nil
	}
	if _, err := reg.Build(scheme); err != nil {
		return fmt.Errorf("netserver: %w", err)
	}
	return nil
}
