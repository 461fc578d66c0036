// Package echo provides a local WebSocket echo server for exercising the
// ramp tester. Beyond plain echoing it can delay responses and cap the
// number of connections it serves, so a capacity boundary can be produced
// on demand.
package echo

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type Config struct {
	Port int
	// Delay is added before each echo reply.
	Delay time.Duration
	// MaxConns caps the number of concurrently served connections.
	// Connections beyond the cap are accepted but never echoed, which is
	// how a real saturated path tends to behave. Zero means no cap.
	MaxConns int
}

type Server struct {
	cfg      Config
	log      *slog.Logger
	upgrader websocket.Upgrader

	active atomic.Int64
	srv    *http.Server
	ln     net.Listener
}

func New(cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg: cfg,
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Active returns the number of currently open connections.
func (s *Server) Active() int64 {
	return s.active.Load()
}

// ServeHTTP upgrades the request and echoes every message back, so the
// server can also sit behind httptest in tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.Close()

	n := s.active.Add(1)
	defer s.active.Add(-1)
	s.log.Debug("connection open", "remote", r.RemoteAddr, "active", n)

	muted := s.cfg.MaxConns > 0 && n > int64(s.cfg.MaxConns)
	if muted {
		s.log.Debug("connection over cap, muted", "remote", r.RemoteAddr)
	}

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			s.log.Debug("connection closed", "remote", r.RemoteAddr, "err", err)
			return
		}
		if muted {
			continue
		}
		if s.cfg.Delay > 0 {
			time.Sleep(s.cfg.Delay)
		}
		if err := conn.WriteMessage(mt, msg); err != nil {
			s.log.Debug("write failed", "remote", r.RemoteAddr, "err", err)
			return
		}
	}
}

// Start listens and serves in the background. Use Addr for the bound
// address (useful with port 0).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("echo server listen: %w", err)
	}
	s.ln = ln
	s.srv = &http.Server{Handler: s}

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("echo server failed", "err", err)
		}
	}()
	s.log.Info("echo server listening", "addr", ln.Addr().String(),
		"delay", s.cfg.Delay, "max_conns", s.cfg.MaxConns)
	return nil
}

// Addr returns the bound listen address after Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops the listener and drops open connections.
func (s *Server) Close() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Close()
}
