package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/omochice/realtime-chat/pkg/protocol"
)

// Authenticator resolves a handshake credential to a Principal.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (Principal, error)
}

// MessageRecord is the durable form of a chat message.
type MessageRecord struct {
	ID        string
	ChatID    string
	SenderID  Identity
	Content   string
	CreatedAt time.Time
}

// Archiver accepts messages for durable persistence. Archive must not block.
type Archiver interface {
	Archive(record MessageRecord)
}

// Hub wires the registry, presence set and router together and drives the
// session of every connection handed to it. All transports share one Hub.
type Hub struct {
	gate       Authenticator
	archiver   Archiver
	registry   *Registry
	presence   *Presence
	router     *Router
	bufferSize int
	log        *slog.Logger

	now   func() time.Time
	newID func() string

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

// NewHub creates a Hub. bufferSize bounds the outbound queue of each client.
func NewHub(log *slog.Logger, gate Authenticator, archiver Archiver, bufferSize int) *Hub {
	registry := NewRegistry()
	return &Hub{
		gate:       gate,
		archiver:   archiver,
		registry:   registry,
		presence:   NewPresence(),
		router:     NewRouter(registry, log),
		bufferSize: bufferSize,
		log:        log,
		now:        time.Now,
		newID:      uuid.NewString,
		sessions:   make(map[*Session]struct{}),
	}
}

// Registry returns the hub's connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Presence returns the hub's online set.
func (h *Hub) Presence() *Presence { return h.presence }

// Router returns the router used for every emission of the hub.
func (h *Hub) Router() *Router { return h.router }

// Authenticate runs the hub's gate without touching any state.
func (h *Hub) Authenticate(ctx context.Context, credential string) (Principal, error) {
	return h.gate.Authenticate(ctx, credential)
}

// NewSession starts tracking a fresh, unauthenticated session over conn.
func (h *Hub) NewSession(conn Conn, codec protocol.Codec) *Session {
	s := &Session{
		hub:   h,
		conn:  conn,
		codec: codec,
		state: StateUnauthenticated,
		log:   h.log.With("remote_addr", conn.RemoteAddr()),
	}
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Serve runs the whole lifecycle of conn: admission with credential, the
// read loop, then teardown. It returns the admission error, if any.
func (h *Hub) Serve(ctx context.Context, conn Conn, codec protocol.Codec, credential string) error {
	session := h.NewSession(conn, codec)
	if err := session.Admit(ctx, credential); err != nil {
		return err
	}
	defer session.Close()
	session.Run(ctx)
	return nil
}

// SessionCount returns the number of sessions not yet closed.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown closes every open session.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (h *Hub) forget(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
}

func (h *Hub) archive(record MessageRecord) {
	if h.archiver == nil {
		return
	}
	h.archiver.Archive(record)
}
