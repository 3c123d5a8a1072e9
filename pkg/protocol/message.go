// Package protocol defines the frames exchanged between chat clients and the
// realtime server, and the codecs that put them on the wire.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrUnknownEvent is returned when a frame names an event this server does not
// accept from the given source.
var ErrUnknownEvent = errors.New("unknown event")

// Event names a frame.
type Event string

// Inbound events, sent by connected clients.
const (
	EventNewMessage  Event = "new_message"
	EventStartTyping Event = "start_typing"
	EventStopTyping  Event = "stop_typing"
	EventChatJoined  Event = "chat_joined"
	EventChatLeaved  Event = "chat_leaved"
)

// Outbound events, sent by the server to connections.
const (
	EventMessage          Event = "message"
	EventMessageAlert     Event = "message_alert"
	EventPresenceSnapshot Event = "presence_snapshot"
	EventConnectError     Event = "connect_error"
)

// Server-side events, pushed by the HTTP application through the events API.
const (
	EventAlert         Event = "alert"
	EventRefetchChats  Event = "refetch_chats"
	EventNewAttachment Event = "new_attachment"
	EventNewRequest    Event = "new_request"
)

// String returns the wire name of the event.
func (e Event) String() string {
	return string(e)
}

// Inbound reports whether clients may send e.
func (e Event) Inbound() bool {
	switch e {
	case EventNewMessage, EventStartTyping, EventStopTyping, EventChatJoined, EventChatLeaved:
		return true
	default:
		return false
	}
}

// ServerSide reports whether e may be pushed through the events API.
func (e Event) ServerSide() bool {
	switch e {
	case EventAlert, EventRefetchChats, EventNewAttachment, EventNewRequest:
		return true
	default:
		return false
	}
}

// Frame is a single event with its JSON payload.
type Frame struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals payload as the frame data.
func NewFrame(event Event, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return Frame{Event: event, Data: data}, nil
}

// Bind unmarshals the frame data into v and validates it.
func (f Frame) Bind(v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%s: missing payload", f.Event)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%s: failed to decode payload: %w", f.Event, err)
	}
	if err := Validate(v); err != nil {
		return fmt.Errorf("%s: %w", f.Event, err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags of a payload.
func Validate(v any) error {
	return validate.Struct(v)
}

// NewMessagePayload is the data of a new_message frame.
type NewMessagePayload struct {
	ChatID  string   `json:"chatId" validate:"required"`
	Members []string `json:"members"`
	Message string   `json:"message"`
}

// TypingPayload is the data of start_typing and stop_typing frames.
type TypingPayload struct {
	ChatID  string   `json:"chatId" validate:"required"`
	Members []string `json:"members"`
}

// MembershipPayload is the data of chat_joined and chat_leaved frames.
// UserID is taken as given; it is not checked against the sender.
type MembershipPayload struct {
	UserID  string   `json:"userId" validate:"required"`
	Members []string `json:"members"`
}

// EmitRequest is the body accepted by the events API.
type EmitRequest struct {
	Event   Event           `json:"event" validate:"required"`
	Members []string        `json:"members"`
	Data    json.RawMessage `json:"data"`
}

// Sender identifies the author of a realtime message.
type Sender struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// ChatMessage is the realtime rendition of a message. ID is transient and
// only meaningful to the realtime channel.
type ChatMessage struct {
	ID        string `json:"_id"`
	Content   string `json:"content"`
	Sender    Sender `json:"sender"`
	Chat      string `json:"chat"`
	CreatedAt string `json:"createdAt"`
}

// MessageEvent is the data of a message frame.
type MessageEvent struct {
	ChatID  string      `json:"chatId"`
	Message ChatMessage `json:"message"`
}

// ChatRef is the data of message_alert and typing frames.
type ChatRef struct {
	ChatID string `json:"chatId"`
}

// ConnectError is the data of the frame sent before a rejected connection is closed.
type ConnectError struct {
	Message string `json:"message"`
}
