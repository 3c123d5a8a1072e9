package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/omochice/realtime-chat/pkg/protocol"
)

var (
	ErrClientClosed = errors.New("client closed")
	ErrSlowClient   = errors.New("client outbound queue full")
)

// Identity is the stable, externally issued identifier of a user.
type Identity string

// Principal is what a session credential resolves to.
type Principal struct {
	ID   Identity
	Name string
}

// Client is the live handle of one admitted connection. Handles are compared
// by pointer: two connections of the same identity are different clients.
type Client struct {
	ID       string
	Identity Identity

	conn      Conn
	codec     protocol.Codec
	outgoing  chan []byte
	done      chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

// NewClient wraps conn for identity with an outbound queue of bufferSize frames.
func NewClient(conn Conn, codec protocol.Codec, identity Identity, bufferSize int, log *slog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		ID:       id,
		Identity: identity,
		conn:     conn,
		codec:    codec,
		outgoing: make(chan []byte, bufferSize),
		done:     make(chan struct{}),
		log:      log.With("client_id", id, "user_id", string(identity)),
	}
}

// Send queues frame for delivery without blocking.
func (c *Client) Send(frame protocol.Frame) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	data, err := c.codec.Encode(frame)
	if err != nil {
		return fmt.Errorf("encode %s: %w", frame.Event, err)
	}

	select {
	case c.outgoing <- data:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrSlowClient
	}
}

// WriteLoop drains the outbound queue onto the connection until the client is
// closed or ctx ends. A failed write closes the client.
func (c *Client) WriteLoop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case data := <-c.outgoing:
			if err := c.conn.Write(ctx, data); err != nil {
				c.log.Warn("Failed to write to client", "error", err)
				c.Close()
				return
			}
		}
	}
}

// Close stops delivery and closes the underlying connection. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.conn.Close(); err != nil {
			c.log.Debug("Failed to close connection", "error", err)
		}
	})
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// RemoteAddr returns the peer address of the connection.
func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr()
}
