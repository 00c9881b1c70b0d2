package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/banshee-data/codeshield-bridge/internal/monitoring"
)

// Server accepts client connections and serves exactly one session per
// process. Connections after the first are accepted and left idle until the
// server stops; they never reach a session.
type Server struct {
	ln   net.Listener
	dev  DeviceCloser
	opts SessionOptions

	mu      sync.Mutex
	session *Session
	idle    []net.Conn
	stopped bool
}

// NewServer returns a server that will wire the first accepted connection to
// dev. If opts.Port is unset it is taken from the listener address.
func NewServer(ln net.Listener, dev DeviceCloser, opts SessionOptions) *Server {
	if opts.Port == 0 {
		if addr, ok := ln.Addr().(*net.TCPAddr); ok {
			opts.Port = addr.Port
		}
	}
	return &Server{ln: ln, dev: dev, opts: opts}
}

// Serve blocks until the single session ends. The listener, the board and any
// idle connections are closed before it returns.
func (s *Server) Serve(ctx context.Context) error {
	defer s.closeIdle()
	defer s.ln.Close()
	stop := context.AfterFunc(ctx, func() { s.ln.Close() })
	defer stop()

	monitoring.Logf("listening for client on %s", s.ln.Addr())
	conn, err := s.ln.Accept()
	if err != nil {
		s.dev.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to accept client: %w", err)
	}
	monitoring.Logf("client connected from %s", conn.RemoteAddr())

	session := NewSession(conn, s.dev, s.opts)
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	go s.holdExtra()
	return session.Run(ctx)
}

// holdExtra accepts and parks further connections until the listener closes.
func (s *Server) holdExtra() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				monitoring.Logf("accept failed: %v", err)
			}
			return
		}
		monitoring.Logf("ignoring additional client %s; a session is already active", conn.RemoteAddr())
		s.mu.Lock()
		if s.stopped {
			conn.Close()
		} else {
			s.idle = append(s.idle, conn)
		}
		s.mu.Unlock()
	}
}

func (s *Server) closeIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for _, c := range s.idle {
		c.Close()
	}
	s.idle = nil
}

// Session returns the active session, or nil before a client connects.
func (s *Server) Session() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// IdleClients returns the number of parked connections.
func (s *Server) IdleClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.idle)
}
