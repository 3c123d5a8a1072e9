// Package server runs the realtime chat endpoint: one listening port serving
// WebSocket upgrades, the events API and raw TCP sessions.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/omochice/realtime-chat/internal/chat"
	"github.com/omochice/realtime-chat/internal/transport/tcp"
	"github.com/omochice/realtime-chat/internal/transport/ws"
)

const (
	defaultPeekTimeout   = 5 * time.Second
	shutdownTimeout      = 5 * time.Second
	readHeaderTimeout    = 10 * time.Second
	maxEventsRequestSize = 1 << 20
)

// Server accepts connections on a single port and routes each one by its
// first bytes: HTTP goes to the HTTP handler, anything else is a TCP session.
type Server struct {
	address     string
	hub         *chat.Hub
	log         *slog.Logger
	peekTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	ws     *ws.Handler
	tcp    *tcp.Handler

	listener net.Listener
	handoff  *handoffListener
	http     *http.Server
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Server for hub. writeTimeout bounds every frame written to a
// connection.
func New(address string, hub *chat.Hub, log *slog.Logger, writeTimeout time.Duration) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		address:     address,
		hub:         hub,
		log:         log,
		peekTimeout: defaultPeekTimeout,
		ctx:         ctx,
		cancel:      cancel,
		ws:          ws.NewHandler(ctx, hub, log, writeTimeout),
		tcp:         tcp.NewHandler(ctx, hub, log, writeTimeout),
		quit:        make(chan struct{}),
	}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.ws)
	mux.HandleFunc("POST /api/v1/events", s.handleEmit)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener
	s.handoff = newHandoffListener(listener.Addr())
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelWarn),
	}

	s.log.Info("Server started", "address", listener.Addr().String())

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.http.Serve(s.handoff); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server error", "error", err)
		}
	}()
	go s.acceptConnections()
	return nil
}

// Stop closes the listener, ends every session and waits for all of them.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.listener != nil {
			_ = s.listener.Close()
		}
		if s.http != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := s.http.Shutdown(ctx); err != nil {
				s.log.Warn("HTTP shutdown incomplete", "error", err)
			}
			cancel()
		}
		s.cancel()
		s.hub.Shutdown()
		s.ws.Wait()
		s.tcp.Wait()
		s.wg.Wait()
		s.log.Info("Server stopped")
	})
}

// Addr returns the server's listening address
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("Failed to accept connection", "error", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

// handleConnection determines whether the connection is HTTP or raw TCP.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	kind, reader, err := detectProtocol(conn, s.peekTimeout)
	if err != nil {
		s.log.Debug("Failed to peek connection", "remote_addr", conn.RemoteAddr().String(), "error", err)
		_ = conn.Close()
		return
	}

	switch kind {
	case protocolHTTP:
		if !s.handoff.push(&bufferedConn{Conn: conn, reader: reader}) {
			_ = conn.Close()
		}
	default:
		s.tcp.ServeConn(conn, reader)
	}
}
