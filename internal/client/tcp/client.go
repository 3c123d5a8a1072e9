// Package tcp provides a TCP client for the chat server.
package tcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/omochice/realtime-chat/internal/client"
	transporttcp "github.com/omochice/realtime-chat/internal/transport/tcp"
	"github.com/omochice/realtime-chat/pkg/protocol"
)

const writeTimeout = 10 * time.Second

// Client is a raw TCP chat client. Frames are newline delimited JSON.
type Client struct {
	*client.Base
}

var _ client.Client = (*Client)(nil)

// New creates a client for the server at address. token is sent as the
// first line of the connection.
func New(address, token string, log *slog.Logger) *Client {
	dial := func(ctx context.Context) (client.Conn, error) {
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, err
		}
		c := transporttcp.NewConn(conn, nil, writeTimeout)
		if err := c.Write(ctx, []byte(token)); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to send credential: %w", err)
		}
		return c, nil
	}
	return &Client{Base: client.NewBase(dial, protocol.JSONCodec{}, log)}
}
