package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/omochice/realtime-chat/pkg/protocol"
)

// ErrInvalidState is returned when a session is asked to move out of a state
// that does not allow it.
var ErrInvalidState = errors.New("invalid session state")

// State is the position of a session in its lifecycle. Sessions only move
// forward: Unauthenticated, then Admitted, then Closed.
type State int

const (
	StateUnauthenticated State = iota
	StateAdmitted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "UNAUTHENTICATED"
	case StateAdmitted:
		return "ADMITTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Session is the lifecycle of one physical connection.
type Session struct {
	hub   *Hub
	conn  Conn
	codec protocol.Codec
	log   *slog.Logger

	mu        sync.Mutex
	state     State
	principal Principal
	client    *Client
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Client returns the registered handle of an admitted session.
func (s *Session) Client() *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Admit authenticates credential. On success the session's client is
// registered; on failure the connection is told why and closed, and no
// registry or presence state is touched.
func (s *Session) Admit(ctx context.Context, credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnauthenticated {
		return fmt.Errorf("admit from %s: %w", s.state, ErrInvalidState)
	}

	principal, err := s.hub.gate.Authenticate(ctx, credential)
	if err != nil {
		s.state = StateClosed
		s.reject(ctx, err)
		return err
	}

	s.principal = principal
	s.log = s.log.With("user_id", string(principal.ID))
	s.client = NewClient(s.conn, s.codec, principal.ID, s.hub.bufferSize, s.hub.log)
	if previous := s.hub.registry.Register(principal.ID, s.client); previous != nil {
		s.log.Info("Connection replaced", "previous_client_id", previous.ID)
	}
	s.state = StateAdmitted
	s.log.Info("Connection admitted", "client_id", s.client.ID)
	return nil
}

func (s *Session) reject(ctx context.Context, cause error) {
	s.log.Warn("Connection rejected", "error", cause)
	frame, err := protocol.NewFrame(protocol.EventConnectError, protocol.ConnectError{Message: cause.Error()})
	if err == nil {
		if data, err := s.codec.Encode(frame); err == nil {
			_ = s.conn.Write(ctx, data)
		}
	}
	_ = s.conn.Close()
	s.hub.forget(s)
}

// Run reads and handles inbound frames until the connection goes away.
func (s *Session) Run(ctx context.Context) {
	client := s.Client()
	if client == nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		client.WriteLoop(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		data, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-client.Done():
			default:
				if !errors.Is(err, io.EOF) {
					s.log.Debug("Read ended", "error", err)
				}
			}
			return
		}

		frame, err := s.codec.Decode(data)
		if err != nil {
			s.log.Warn("Failed to decode frame", "error", err)
			continue
		}
		s.Handle(frame)
	}
}

// Handle applies one inbound frame. Frames on a session that is not admitted
// are ignored. Nothing is ever reported back to the sender.
func (s *Session) Handle(frame protocol.Frame) {
	s.mu.Lock()
	if s.state != StateAdmitted {
		s.mu.Unlock()
		return
	}
	principal, client := s.principal, s.client
	s.mu.Unlock()

	switch frame.Event {
	case protocol.EventNewMessage:
		s.handleNewMessage(principal, frame)
	case protocol.EventStartTyping, protocol.EventStopTyping:
		s.handleTyping(client, frame)
	case protocol.EventChatJoined, protocol.EventChatLeaved:
		s.handleMembership(frame)
	default:
		s.log.Debug("Unsupported event dropped", "event", frame.Event.String())
	}
}

// handleNewMessage emits the message and its alert before handing the record
// to the archiver: a persistence failure never retracts what was delivered.
func (s *Session) handleNewMessage(principal Principal, frame protocol.Frame) {
	var payload protocol.NewMessagePayload
	if err := frame.Bind(&payload); err != nil {
		s.log.Warn("Invalid payload", "error", err)
		return
	}

	h := s.hub
	createdAt := h.now().UTC()
	id := h.newID()
	message := protocol.MessageEvent{
		ChatID: payload.ChatID,
		Message: protocol.ChatMessage{
			ID:      id,
			Content: payload.Message,
			Sender: protocol.Sender{
				ID:   string(principal.ID),
				Name: principal.Name,
			},
			Chat:      payload.ChatID,
			CreatedAt: createdAt.Format(timestampLayout),
		},
	}

	targets := h.router.Resolve(Identities(payload.Members))
	h.router.EmitTo(targets, protocol.EventMessage, message)
	h.router.EmitTo(targets, protocol.EventMessageAlert, protocol.ChatRef{ChatID: payload.ChatID})

	h.archive(MessageRecord{
		ID:        id,
		ChatID:    payload.ChatID,
		SenderID:  principal.ID,
		Content:   payload.Message,
		CreatedAt: createdAt,
	})
}

// timestampLayout matches JavaScript's Date.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func (s *Session) handleTyping(client *Client, frame protocol.Frame) {
	var payload protocol.TypingPayload
	if err := frame.Bind(&payload); err != nil {
		s.log.Warn("Invalid payload", "error", err)
		return
	}
	s.hub.router.EmitExcept(Identities(payload.Members), client, frame.Event, protocol.ChatRef{ChatID: payload.ChatID})
}

func (s *Session) handleMembership(frame protocol.Frame) {
	var payload protocol.MembershipPayload
	if err := frame.Bind(&payload); err != nil {
		s.log.Warn("Invalid payload", "error", err)
		return
	}

	var snapshot []Identity
	if frame.Event == protocol.EventChatJoined {
		snapshot = s.hub.presence.Join(Identity(payload.UserID))
	} else {
		snapshot = s.hub.presence.Leave(Identity(payload.UserID))
	}
	s.hub.router.EmitToIdentities(Identities(payload.Members), protocol.EventPresenceSnapshot, snapshot)
}

// Close tears the session down. For an admitted session it deregisters the
// client, drops the identity from presence and broadcasts the new snapshot to
// every live client. Repeated calls are no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	previous := s.state
	s.state = StateClosed
	principal, client := s.principal, s.client
	s.mu.Unlock()

	switch previous {
	case StateClosed:
		return
	case StateUnauthenticated:
		_ = s.conn.Close()
		s.hub.forget(s)
		return
	}

	h := s.hub
	client.Close()
	h.registry.Deregister(principal.ID, client)
	snapshot := h.presence.OnDisconnect(principal.ID)
	h.router.Broadcast(protocol.EventPresenceSnapshot, snapshot)
	h.forget(s)
	s.log.Info("Connection closed", "client_id", client.ID)
}
