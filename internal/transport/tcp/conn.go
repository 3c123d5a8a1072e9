// Package tcp provides the raw TCP transport of the chat server. Frames are
// newline delimited JSON documents.
package tcp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// MaxFrameSize bounds a single line read from a TCP peer.
const MaxFrameSize = 1 << 20

var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Conn adapts net.Conn to chat.Conn.
type Conn struct {
	conn         net.Conn
	reader       *bufio.Reader
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps conn. reader may hold bytes already peeked from conn; when nil
// a fresh reader is used.
func NewConn(conn net.Conn, reader *bufio.Reader, writeTimeout time.Duration) *Conn {
	if reader == nil {
		reader = bufio.NewReader(conn)
	}
	return &Conn{conn: conn, reader: reader, writeTimeout: writeTimeout}
}

// Read implements chat.Conn. It returns the next non-empty line without its
// terminator.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	deadline, hasDeadline := ctx.Deadline()
	// A failure here surfaces on the read itself, EOF included.
	_ = c.conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		line, err := c.readLine()
		if len(line) > 0 {
			return line, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if hasDeadline && errors.Is(err, os.ErrDeadlineExceeded) {
				return nil, context.DeadlineExceeded
			}
			return nil, err
		}
	}
}

func (c *Conn) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := c.reader.ReadSlice('\n')
		line = append(line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			if len(line) > MaxFrameSize {
				return nil, ErrFrameTooLarge
			}
			continue
		}
		if len(bytes.TrimRight(line, "\r\n")) > MaxFrameSize {
			return nil, ErrFrameTooLarge
		}
		line = bytes.TrimSpace(line)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		// A final line without terminator still counts at EOF.
		return line, err
	}
}

// Write implements chat.Conn. A newline is appended to data.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	line := make([]byte, 0, len(data)+1)
	line = append(line, data...)
	line = append(line, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(c.deadline(ctx)); err != nil {
		return err
	}
	if _, err := c.conn.Write(line); err != nil {
		return fmt.Errorf("write tcp frame: %w", err)
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

// Close implements chat.Conn.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
