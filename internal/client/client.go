// Package client defines the common interface for chat clients.
package client

import "github.com/omochice/realtime-chat/pkg/protocol"

// Client defines the interface for chat clients.
// Both TCP and WebSocket implementations satisfy this interface.
type Client interface {
	Connect() error
	Disconnect()
	IsConnected() bool
	SendMessage(chatID string, members []string, content string) error
	StartTyping(chatID string, members []string) error
	StopTyping(chatID string, members []string) error
	JoinChat(userID string, members []string) error
	LeaveChat(userID string, members []string) error
	Frames() <-chan protocol.Frame
}
