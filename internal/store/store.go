//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks

// Package store persists chat messages off the realtime path.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/omochice/realtime-chat/internal/chat"
)

var (
	ErrQueueFull        = errors.New("persistence queue full")
	ErrPersisterStopped = errors.New("persister stopped")
)

// MessageStore is the durable message collection.
type MessageStore interface {
	Append(ctx context.Context, record chat.MessageRecord) error
}

// PersistenceError reports a message that was delivered but not stored.
type PersistenceError struct {
	ChatID    string
	MessageID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist message %s in chat %s: %v", e.MessageID, e.ChatID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
