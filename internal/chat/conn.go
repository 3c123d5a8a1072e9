// Package chat holds the realtime core: who is connected, who is present, and
// how events fan out to their connections.
package chat

import "context"

// Conn abstracts one physical realtime link, independent of transport.
// Frames are opaque bytes produced by the connection's codec.
type Conn interface {
	// Read blocks for the next inbound frame.
	// Returns io.EOF or a transport error once the link is gone.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one encoded frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the link. It must be safe to call more than once.
	Close() error

	// RemoteAddr returns the peer address for logging.
	RemoteAddr() string
}
