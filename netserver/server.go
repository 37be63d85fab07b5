// Package netserver implements the Server instance: one listening
// endpoint with its accept loop, connection registry, and application
// callbacks, built on the cooperative eventloop.Loop rather than a
// goroutine-per-Accept loop.
package netserver

import (
	"fmt"
	"sync"

	"github.com/netcored/netcore/api"
	"github.com/netcored/netcore/eventloop"
	"github.com/netcored/netcore/netconn"
	"golang.org/x/sys/unix"
)

// Hooks bundles every lifecycle callback a Server carries:
// server-start, connect, message, close, error, buffer-full,
// buffer-drain, server-stop, server-reload, websocket-connect.
type Hooks struct {
	OnServerStart      func(s *Server)
	OnConnect          func(c *netconn.Connection)
	OnMessage          func(c *netconn.Connection, msg api.Message)
	OnClose            func(c *netconn.Connection)
	OnError            func(c *netconn.Connection, err *api.ConnError)
	OnBufferFull       func(c *netconn.Connection)
	OnBufferDrain      func(c *netconn.Connection)
	OnServerStop       func(s *Server)
	OnServerReload     func(s *Server)
	OnWebSocketUpgrade func(conn api.Conn, path string, headers map[string]string)
}

// Server is one listening endpoint. Its transport is immutable once
// Listen succeeds; the listening socket is either absent (paused accept)
// or bound/listening.
type Server struct {
	mu sync.Mutex

	id   netconn.ServerID
	name string

	transport api.Transport
	addr      string
	reusePort bool

	workerCount int
	reloadable  bool

	codec        api.Codec
	hooks        Hooks
	connCfg      netconn.Config
	tlsCfg       *netconn.TLSConfig
	subprotocols []string

	loop     *eventloop.Loop
	listenFD uintptr
	listened bool
	paused   bool

	stats *netconn.Stats
	conns map[uint64]*netconn.Connection
}

// Config describes how to build a Server: its transport, codec scheme,
// limits, and optional WebSocket subprotocol list.
type Config struct {
	Name        string
	Transport   api.Transport // "tcp", "udp", "unix", "ssl"
	Addr        string        // host:port, or filesystem path for unix
	ReusePort   bool
	WorkerCount int
	Reloadable  bool

	Codec        api.Codec
	ConnConfig   netconn.Config
	TLSConfig    *netconn.TLSConfig
	Subprotocols []string

	Hooks Hooks
}

var (
	serverIDSeq int
	registryMu  sync.Mutex
	registry    = map[netconn.ServerID]*Server{}
)

func nextServerID() netconn.ServerID {
	serverIDSeq++
	return netconn.ServerID(serverIDSeq)
}

// Lookup returns the Server registered under id, used by packages (the
// supervisor's status dump, websocket hook plumbing) that only carry the
// lightweight ServerID instead of a pointer.
func Lookup(id netconn.ServerID) (*Server, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	s, ok := registry[id]
	return s, ok
}

// All returns every currently registered Server, for the supervisor's
// status/connections dump.
func All() []*Server {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]*Server, 0, len(registry))
	for _, s := range registry {
		out = append(out, s)
	}
	return out
}

// New builds a Server bound to loop but does not yet bind a socket; call
// Listen to do that.
func New(loop *eventloop.Loop, cfg Config) *Server {
	if cfg.ConnConfig == (netconn.Config{}) {
		cfg.ConnConfig = netconn.DefaultConfig()
	}
	s := &Server{
		id:           nextServerID(),
		name:         cfg.Name,
		transport:    cfg.Transport,
		addr:         cfg.Addr,
		reusePort:    cfg.ReusePort,
		workerCount:  cfg.WorkerCount,
		reloadable:   cfg.Reloadable,
		codec:        cfg.Codec,
		hooks:        cfg.Hooks,
		connCfg:      cfg.ConnConfig,
		tlsCfg:       cfg.TLSConfig,
		subprotocols: cfg.Subprotocols,
		loop:         loop,
		stats:        netconn.NewStats(),
		conns:        make(map[uint64]*netconn.Connection),
	}

	registryMu.Lock()
	registry[s.id] = s
	registryMu.Unlock()
	return s
}

// ID returns the stable identity other components carry instead of a
// Server pointer.
func (s *Server) ID() netconn.ServerID { return s.id }

// Name returns the server's logical name.
func (s *Server) Name() string { return s.name }

// Stats exposes this server's process-wide counters.
func (s *Server) Stats() *netconn.Stats { return s.stats }

// Transport reports the immutable socket family this server speaks.
func (s *Server) Transport() api.Transport { return s.transport }

// Addr reports the bind address this server listens on.
func (s *Server) Addr() string { return s.addr }

// Subprotocols reports the WebSocket subprotocol list this server was
// configured with; callers building its codec pass this same list into
// BuildCodec so the handshake negotiates against it.
func (s *Server) Subprotocols() []string { return s.subprotocols }

// ConnectionCount reports the number of Connections this server is
// currently tracking.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Listen resolves the configured transport/address into a non-blocking
// listening socket, applying
// SO_REUSEPORT when requested, and attaches the accept callback to the
// loop's readable event on the listen fd.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listened {
		return fmt.Errorf("netserver: %s already listening", s.name)
	}

	sockTransport := "tcp"
	switch s.transport {
	case api.TransportUDP:
		sockTransport = "udp"
	case api.TransportUnix:
		sockTransport = "unix"
	}

	fd, err := netconn.ListenSocket(sockTransport, s.addr, s.reusePort)
	if err != nil {
		return fmt.Errorf("netserver: listen %s %s: %w", s.name, s.addr, err)
	}
	s.listenFD = fd
	s.listened = true

	if s.transport == api.TransportUDP {
		netconn.NewUDPListener(s.loop, s.listenFD, s.codec, s.connHooks(), s.id, s.stats)
	} else {
		s.loop.OnReadable(s.listenFD, s.acceptTCP)
	}

	if s.hooks.OnServerStart != nil {
		s.hooks.OnServerStart(s)
	}
	return nil
}

// acceptTCP drains every pending connection off the listen backlog; a
// transient EAGAIN (the
// thundering-herd case) ends the loop for this tick without error.
func (s *Server) acceptTCP() {
	for {
		fd, remote, err := netconn.AcceptNonBlocking(s.listenFD)
		if err != nil {
			return
		}
		conn := netconn.NewAccepted(s.loop, fd, remote, s.transport, s.codec, s.connHooks(), s.id, s.connCfg, s.stats, s.tlsCfg)

		s.mu.Lock()
		s.conns[conn.ID()] = conn
		s.mu.Unlock()
	}
}

// connHooks adapts the Server's application-level Hooks into the
// netconn.Hooks shape NewAccepted/NewAsyncTCP expect, additionally
// removing a destroyed connection from this server's registry.
func (s *Server) connHooks() netconn.Hooks {
	return netconn.Hooks{
		OnConnect: s.hooks.OnConnect,
		OnMessage: s.hooks.OnMessage,
		OnClose: func(c *netconn.Connection) {
			s.mu.Lock()
			delete(s.conns, c.ID())
			s.mu.Unlock()
			if s.hooks.OnClose != nil {
				s.hooks.OnClose(c)
			}
		},
		OnError:       s.hooks.OnError,
		OnBufferFull:  s.hooks.OnBufferFull,
		OnBufferDrain: s.hooks.OnBufferDrain,
	}
}

// PauseAccept detaches the listening fd's readable callback so the
// worker stops accepting new
// clients while still draining existing ones (used during reload).
func (s *Server) PauseAccept() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused || !s.listened || s.transport == api.TransportUDP {
		return
	}
	s.loop.OffReadable(s.listenFD)
	s.paused = true
}

// ResumeAccept reattaches the listening fd's readable callback.
func (s *Server) ResumeAccept() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return
	}
	s.loop.OnReadable(s.listenFD, s.acceptTCP)
	s.paused = false
}

// Stop invokes onServerStop, pauses accept, optionally closes every
// tracked connection, then removes the
// server from the global registry.
func (s *Server) Stop(graceful bool) {
	if s.hooks.OnServerStop != nil {
		s.hooks.OnServerStop(s)
	}
	s.PauseAccept()

	s.mu.Lock()
	if s.listened {
		s.loop.OffReadable(s.listenFD)
		_ = unix.Close(int(s.listenFD))
		s.listened = false
		if s.transport == api.TransportUnix {
			_ = unix.Unlink(s.addr)
		}
	}
	conns := make([]*netconn.Connection, 0, len(s.conns))
	if graceful {
		for _, c := range s.conns {
			conns = append(conns, c)
		}
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(nil, true)
	}

	registryMu.Lock()
	delete(registry, s.id)
	registryMu.Unlock()
}

// Reload invokes onServerReload; the supervisor fires this per-server
// before a worker restart takes effect.
func (s *Server) Reload() {
	if s.hooks.OnServerReload != nil {
		s.hooks.OnServerReload(s)
	}
}
