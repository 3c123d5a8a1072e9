package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/omochice/realtime-chat/internal/chat"
	"github.com/omochice/realtime-chat/pkg/protocol"
	"github.com/stretchr/testify/require"
)

// mockConn is an in-memory chat.Conn. Closing it ends Read with io.EOF.
type mockConn struct {
	readCh     chan []byte
	closeCh    chan struct{}
	closeOnce  sync.Once
	writtenMu  sync.Mutex
	written    [][]byte
	writeErr   error
	writeBlock chan struct{}
	remoteAddr string
}

func newMockConn() *mockConn {
	return &mockConn{
		readCh:     make(chan []byte, 10),
		closeCh:    make(chan struct{}),
		remoteAddr: "mock-" + uuid.NewString(),
	}
}

func (m *mockConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-m.closeCh:
		return nil, io.EOF
	case data, ok := <-m.readCh:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	}
}

func (m *mockConn) Write(ctx context.Context, data []byte) error {
	if m.writeBlock != nil {
		select {
		case <-m.writeBlock:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	m.written = append(m.written, copied)
	return nil
}

func (m *mockConn) Close() error {
	m.closeOnce.Do(func() { close(m.closeCh) })
	return nil
}

func (m *mockConn) RemoteAddr() string {
	return m.remoteAddr
}

func (m *mockConn) isClosed() bool {
	select {
	case <-m.closeCh:
		return true
	default:
		return false
	}
}

// frames decodes everything written so far, optionally keeping one event.
func (m *mockConn) frames(t *testing.T, event protocol.Event) []protocol.Frame {
	t.Helper()
	m.writtenMu.Lock()
	defer m.writtenMu.Unlock()
	var frames []protocol.Frame
	for _, data := range m.written {
		f, err := protocol.JSONCodec{}.Decode(data)
		require.NoError(t, err)
		if event == "" || f.Event == event {
			frames = append(frames, f)
		}
	}
	return frames
}

func (m *mockConn) push(t *testing.T, event protocol.Event, payload any) {
	t.Helper()
	frame, err := protocol.NewFrame(event, payload)
	require.NoError(t, err)
	data, err := protocol.JSONCodec{}.Encode(frame)
	require.NoError(t, err)
	m.readCh <- data
}

var _ chat.Conn = (*mockConn)(nil)

var errUnknownCredential = errors.New("unknown credential")

// stubGate admits credentials equal to a known identity.
type stubGate struct {
	users map[string]string
}

func (g stubGate) Authenticate(_ context.Context, credential string) (chat.Principal, error) {
	name, ok := g.users[credential]
	if !ok {
		return chat.Principal{}, errUnknownCredential
	}
	return chat.Principal{ID: chat.Identity(credential), Name: name}, nil
}

type recordingArchiver struct {
	mu      sync.Mutex
	records []chat.MessageRecord
}

func (a *recordingArchiver) Archive(record chat.MessageRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, record)
}

func (a *recordingArchiver) all() []chat.MessageRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]chat.MessageRecord(nil), a.records...)
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

func newTestHub(archiver chat.Archiver) *chat.Hub {
	gate := stubGate{users: map[string]string{"A": "Alice", "B": "Bob", "C": "Carol"}}
	return chat.NewHub(testLogger(), gate, archiver, 16)
}

type session struct {
	conn *mockConn
	done chan error
}

// connect serves a new mock connection and waits for it to be registered.
func connect(t *testing.T, hub *chat.Hub, identity string) session {
	t.Helper()
	s := session{conn: newMockConn(), done: make(chan error, 1)}
	go func() {
		s.done <- hub.Serve(context.Background(), s.conn, protocol.JSONCodec{}, identity)
	}()
	require.Eventually(t, func() bool {
		c, ok := hub.Registry().Lookup(chat.Identity(identity))
		return ok && c.RemoteAddr() == s.conn.remoteAddr
	}, time.Second, 5*time.Millisecond)
	return s
}

func (s session) disconnect(t *testing.T) {
	t.Helper()
	require.NoError(t, s.conn.Close())
	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("session did not end")
	}
}

func snapshotOf(t *testing.T, f protocol.Frame) []string {
	t.Helper()
	var ids []string
	require.NoError(t, json.Unmarshal(f.Data, &ids))
	return ids
}

func newClient(identity string) (*chat.Client, *mockConn) {
	conn := newMockConn()
	return chat.NewClient(conn, protocol.JSONCodec{}, chat.Identity(identity), 8, testLogger()), conn
}
