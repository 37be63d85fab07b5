package main

import (
	"crypto/tls"
	"fmt"

	"github.com/netcored/netcore/api"
	"github.com/netcored/netcore/codec"
	"github.com/netcored/netcore/eventloop"
	"github.com/netcored/netcore/internal/config"
	"github.com/netcored/netcore/internal/netlog"
	"github.com/netcored/netcore/netconn"
	"github.com/netcored/netcore/netserver"
)

// buildServer is the supervisor.WorkerBuilder every forked worker uses:
// it resolves a ServerSpec's codec scheme against the core registry
// (plus the ws/wss bridge) and wires every lifecycle hook through
// internal/netlog.
func buildServer(loop *eventloop.Loop, spec config.ServerSpec) (*netserver.Server, error) {
	reg := codec.NewRegistry()
	if err := netserver.ValidateScheme(reg, spec.CodecScheme); err != nil {
		return nil, err
	}

	hooks := netserver.Hooks{
		OnServerStart: func(s *netserver.Server) {
			netlog.ForServer("server", spec.Name).Info("listening")
		},
		OnConnect: func(c *netconn.Connection) {
			netlog.ForConn("server", spec.Name, c.ID()).Info("connected")
		},
		OnClose: func(c *netconn.Connection) {
			netlog.ForConn("server", spec.Name, c.ID()).Info("closed")
		},
		OnError: func(c *netconn.Connection, err *api.ConnError) {
			netlog.ForConn("server", spec.Name, c.ID()).WithError(err).Warn("connection error")
		},
		OnServerStop: func(s *netserver.Server) {
			netlog.ForServer("server", spec.Name).Info("stopping")
		},
		OnServerReload: func(s *netserver.Server) {
			netlog.ForServer("server", spec.Name).Info("reloading")
		},
	}

	codecInst, err := netserver.BuildCodec(reg, spec.CodecScheme, netserver.WebSocketHooksFor(hooks), spec.Subprotocols)
	if err != nil {
		return nil, fmt.Errorf("netcored: %w", err)
	}

	cfg := netserver.Config{
		Name:         spec.Name,
		Transport:    api.Transport(spec.Transport),
		Addr:         spec.Addr,
		ReusePort:    spec.ReusePort,
		WorkerCount:  spec.WorkerCount,
		Reloadable:   spec.Reloadable,
		Codec:        codecInst,
		Subprotocols: spec.Subprotocols,
		Hooks:        hooks,
	}
	if spec.TLSCertFile != "" && spec.TLSKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(spec.TLSCertFile, spec.TLSKeyFile)
		if err != nil {
			return nil, fmt.Errorf("netcored: loading TLS keypair for %q: %w", spec.Name, err)
		}
		cfg.TLSConfig = &netconn.TLSConfig{Config: &tls.Config{Certificates: []tls.Certificate{cert}}}
	}

	return netserver.New(loop, cfg), nil
}
