package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/omochice/realtime-chat/internal/auth"
	"github.com/omochice/realtime-chat/internal/chat"
	"github.com/omochice/realtime-chat/pkg/protocol"
)

// Handler upgrades HTTP requests to WebSocket sessions on a Hub. The codec is
// picked with the codec query parameter.
type Handler struct {
	ctx          context.Context
	hub          *chat.Hub
	log          *slog.Logger
	writeTimeout time.Duration
	wg           sync.WaitGroup
}

// NewHandler creates a Handler. Sessions end when ctx is done.
func NewHandler(ctx context.Context, hub *chat.Hub, log *slog.Logger, writeTimeout time.Duration) *Handler {
	return &Handler{ctx: ctx, hub: hub, log: log, writeTimeout: writeTimeout}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	codec, err := protocol.CodecByName(r.URL.Query().Get("codec"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	credential := auth.CredentialFromRequest(r)

	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		h.log.Warn("Failed to upgrade connection", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	h.wg.Add(1)
	defer h.wg.Done()

	c := NewConn(conn, rw.Reader, ws.StateServerSide, codec.Binary(), h.writeTimeout)
	if err := h.hub.Serve(h.ctx, c, codec, credential); err != nil {
		h.log.Debug("WebSocket session refused", "remote_addr", c.RemoteAddr(), "error", err)
	}
}

// Wait blocks until every session started by the handler has ended.
func (h *Handler) Wait() {
	h.wg.Wait()
}
