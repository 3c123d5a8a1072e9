package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/omochice/realtime-chat/pkg/protocol"
)

// DefaultDialTimeout bounds Connect.
const DefaultDialTimeout = 10 * time.Second

var ErrNotConnected = errors.New("not connected to server")

// Conn is the transport a client speaks frames over.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// DialFunc opens the transport of a client.
type DialFunc func(ctx context.Context) (Conn, error)

// Base implements Client over any Conn. Transport packages embed it.
type Base struct {
	dial  DialFunc
	codec protocol.Codec
	log   *slog.Logger

	frames    chan protocol.Frame
	mu        sync.RWMutex
	conn      Conn
	done      chan struct{}
	ended     chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewBase(dial DialFunc, codec protocol.Codec, log *slog.Logger) *Base {
	return &Base{
		dial:   dial,
		codec:  codec,
		log:    log,
		frames: make(chan protocol.Frame, 32),
		done:   make(chan struct{}),
		ended:  make(chan struct{}),
	}
}

// Connect dials the server and starts receiving frames.
func (b *Base) Connect() error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultDialTimeout)
	defer cancel()
	conn, err := b.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	b.wg.Add(1)
	go b.receiveFrames(conn)
	return nil
}

// Disconnect closes the connection and waits for the receiver to stop.
func (b *Base) Disconnect() {
	b.closeOnce.Do(func() {
		close(b.done)
		b.mu.Lock()
		if b.conn != nil {
			_ = b.conn.Close()
		}
		b.mu.Unlock()
	})
	b.wg.Wait()
}

// IsConnected reports whether the connection is up.
func (b *Base) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.conn == nil {
		return false
	}
	select {
	case <-b.ended:
		return false
	default:
		return true
	}
}

// Frames delivers every frame the server sends. It is closed when the
// connection ends.
func (b *Base) Frames() <-chan protocol.Frame {
	return b.frames
}

func (b *Base) SendMessage(chatID string, members []string, content string) error {
	return b.Send(protocol.EventNewMessage, protocol.NewMessagePayload{ChatID: chatID, Members: members, Message: content})
}

func (b *Base) StartTyping(chatID string, members []string) error {
	return b.Send(protocol.EventStartTyping, protocol.TypingPayload{ChatID: chatID, Members: members})
}

func (b *Base) StopTyping(chatID string, members []string) error {
	return b.Send(protocol.EventStopTyping, protocol.TypingPayload{ChatID: chatID, Members: members})
}

func (b *Base) JoinChat(userID string, members []string) error {
	return b.Send(protocol.EventChatJoined, protocol.MembershipPayload{UserID: userID, Members: members})
}

func (b *Base) LeaveChat(userID string, members []string) error {
	return b.Send(protocol.EventChatLeaved, protocol.MembershipPayload{UserID: userID, Members: members})
}

// Send writes one frame.
func (b *Base) Send(event protocol.Event, payload any) error {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	frame, err := protocol.NewFrame(event, payload)
	if err != nil {
		return err
	}
	data, err := b.codec.Encode(frame)
	if err != nil {
		return err
	}
	if err := conn.Write(context.Background(), data); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

func (b *Base) receiveFrames(conn Conn) {
	defer b.wg.Done()
	defer close(b.frames)
	defer close(b.ended)

	for {
		data, err := conn.Read(context.Background())
		if err != nil {
			select {
			case <-b.done:
			default:
				b.log.Debug("Connection to server ended", "error", err)
			}
			return
		}

		frame, err := b.codec.Decode(data)
		if err != nil {
			b.log.Warn("Failed to decode frame", "error", err)
			continue
		}

		select {
		case b.frames <- frame:
		case <-b.done:
			return
		}
	}
}
