// Package ws provides the WebSocket transport of the chat server, built on
// gobwas/ws.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// MaxMessageSize bounds a single data message read from a peer, fragments
// included.
const MaxMessageSize = 1 << 20

var ErrMessageTooLarge = errors.New("message exceeds maximum size")

// Conn adapts a WebSocket connection to chat.Conn. One data message is one
// frame of the chat protocol.
type Conn struct {
	conn         net.Conn
	state        ws.State
	op           ws.OpCode
	writeTimeout time.Duration

	reader  *wsutil.Reader
	control wsutil.FrameHandlerFunc

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps conn after a completed handshake. source is where frames are
// read from, typically a reader already holding bytes past the handshake.
// binary selects binary data messages instead of text.
func NewConn(conn net.Conn, source io.Reader, state ws.State, binary bool, writeTimeout time.Duration) *Conn {
	if source == nil {
		source = conn
	}
	c := &Conn{
		conn:         conn,
		state:        state,
		op:           ws.OpText,
		writeTimeout: writeTimeout,
	}
	if binary {
		c.op = ws.OpBinary
	}
	c.control = wsutil.ControlFrameHandler(lockedWriter{c}, state)
	c.reader = &wsutil.Reader{
		Source:         source,
		State:          state,
		CheckUTF8:      !binary,
		MaxFrameSize:   MaxMessageSize,
		OnIntermediate: c.control,
	}
	return c
}

// Read implements chat.Conn. Control frames are answered in place. A close
// frame from the peer ends the stream with io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	deadline, _ := ctx.Deadline()
	// A failure here surfaces on the read itself.
	_ = c.conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		hdr, err := c.reader.NextFrame()
		if err != nil {
			return nil, readError(ctx, err)
		}
		if hdr.OpCode == ws.OpClose {
			// The echo may fail once the peer has gone; the stream is over either way.
			_ = c.control(hdr, c.reader)
			return nil, io.EOF
		}
		if hdr.OpCode.IsControl() {
			if err := c.control(hdr, c.reader); err != nil {
				return nil, readError(ctx, err)
			}
			continue
		}
		data, err := io.ReadAll(io.LimitReader(c.reader, MaxMessageSize+1))
		if err != nil {
			return nil, readError(ctx, err)
		}
		if len(data) > MaxMessageSize {
			return nil, ErrMessageTooLarge
		}
		return data, nil
	}
}

func readError(ctx context.Context, err error) error {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		return io.EOF
	}
	if errors.Is(err, wsutil.ErrFrameTooLarge) {
		return ErrMessageTooLarge
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return err
}

// Write implements chat.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(c.deadline(ctx)); err != nil {
		return err
	}
	if err := wsutil.WriteMessage(c.conn, c.state, c.op, data); err != nil {
		return fmt.Errorf("write websocket message: %w", err)
	}
	return nil
}

func (c *Conn) deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	if c.writeTimeout > 0 {
		return time.Now().Add(c.writeTimeout)
	}
	return time.Time{}
}

// Close implements chat.Conn. It sends a normal closure frame before closing
// the socket and is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "")
		_ = wsutil.WriteMessage(c.conn, c.state, ws.OpClose, body)
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// lockedWriter serializes control frame replies with data writes.
type lockedWriter struct {
	c *Conn
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	return w.c.conn.Write(p)
}
