package tcp

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/omochice/realtime-chat/internal/chat"
	"github.com/omochice/realtime-chat/pkg/protocol"
)

// DefaultHandshakeTimeout bounds how long a peer may take to send its
// credential line.
const DefaultHandshakeTimeout = 10 * time.Second

// Handler runs raw TCP sessions on a Hub. The first line a peer sends is its
// credential; every following line is a JSON frame.
type Handler struct {
	ctx              context.Context
	hub              *chat.Hub
	log              *slog.Logger
	writeTimeout     time.Duration
	handshakeTimeout time.Duration
	wg               sync.WaitGroup
}

func NewHandler(ctx context.Context, hub *chat.Hub, log *slog.Logger, writeTimeout time.Duration) *Handler {
	return &Handler{
		ctx:              ctx,
		hub:              hub,
		log:              log,
		writeTimeout:     writeTimeout,
		handshakeTimeout: DefaultHandshakeTimeout,
	}
}

// WithHandshakeTimeout overrides DefaultHandshakeTimeout.
func (h *Handler) WithHandshakeTimeout(d time.Duration) *Handler {
	h.handshakeTimeout = d
	return h
}

// ServeConn runs the session of conn until it ends. reader may carry bytes
// already read from conn.
func (h *Handler) ServeConn(conn net.Conn, reader *bufio.Reader) {
	h.wg.Add(1)
	defer h.wg.Done()

	c := NewConn(conn, reader, h.writeTimeout)
	ctx, cancel := context.WithTimeout(h.ctx, h.handshakeTimeout)
	credential, err := c.Read(ctx)
	cancel()
	if err != nil {
		h.log.Debug("TCP handshake failed", "remote_addr", c.RemoteAddr(), "error", err)
		_ = c.Close()
		return
	}

	if err := h.hub.Serve(h.ctx, c, protocol.JSONCodec{}, string(credential)); err != nil {
		h.log.Debug("TCP session refused", "remote_addr", c.RemoteAddr(), "error", err)
	}
}

// Wait blocks until every session started by the handler has ended.
func (h *Handler) Wait() {
	h.wg.Wait()
}
