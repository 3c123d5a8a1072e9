// Package ws provides a WebSocket client for the chat server.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/omochice/realtime-chat/internal/client"
	transportws "github.com/omochice/realtime-chat/internal/transport/ws"
	"github.com/omochice/realtime-chat/pkg/protocol"
)

const writeTimeout = 10 * time.Second

// Client is a WebSocket chat client.
type Client struct {
	*client.Base
}

var _ client.Client = (*Client)(nil)

// New creates a client for the endpoint at address, for example
// ws://localhost:8080/ws. token is sent as the session cookie.
func New(address, token string, codec protocol.Codec, log *slog.Logger) *Client {
	dial := func(ctx context.Context) (client.Conn, error) {
		target, err := endpoint(address, codec)
		if err != nil {
			return nil, err
		}
		return transportws.Dial(ctx, target, token, codec.Binary(), writeTimeout)
	}
	return &Client{Base: client.NewBase(dial, codec, log)}
}

func endpoint(address string, codec protocol.Codec) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("invalid server address %q: %w", address, err)
	}
	if codec.Name() != (protocol.JSONCodec{}).Name() {
		q := u.Query()
		q.Set("codec", codec.Name())
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
