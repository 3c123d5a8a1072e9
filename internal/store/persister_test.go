package store_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/omochice/realtime-chat/internal/chat"
	"github.com/omochice/realtime-chat/internal/mocks"
	"github.com/omochice/realtime-chat/internal/store"
	"github.com/omochice/realtime-chat/pkg/protocol"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newPersister(t *testing.T, messageStore store.MessageStore, queueSize int) *store.Persister {
	t.Helper()
	p := store.NewPersister(messageStore, logs.GetLoggerFromLevel(slog.LevelDebug), queueSize, 1, time.Second)
	p.Start(context.Background())
	t.Cleanup(p.Stop)
	return p
}

func TestPersister_AppendsArchivedRecords(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	messageStore := mocks.NewMockMessageStore(ctrl)
	rec := record("m1", "X", time.Now())

	var hasDeadline bool
	messageStore.EXPECT().Append(gomock.Any(), rec).
		DoAndReturn(func(ctx context.Context, _ chat.MessageRecord) error {
			_, hasDeadline = ctx.Deadline()
			return nil
		})

	p := newPersister(t, messageStore, 4)
	p.Archive(rec)
	p.Stop()

	req.Zero(p.Failures())
	req.True(hasDeadline)
}

func TestPersister_CountsStoreFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	messageStore := mocks.NewMockMessageStore(ctrl)
	messageStore.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("disk full")).Times(2)

	p := newPersister(t, messageStore, 4)
	p.Archive(record("m1", "X", time.Now()))
	p.Archive(record("m2", "X", time.Now()))
	p.Stop()

	require.Equal(t, int64(2), p.Failures())
}

func TestPersister_DropsWhenQueueIsFull(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	messageStore := mocks.NewMockMessageStore(ctrl)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	messageStore.EXPECT().Append(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, chat.MessageRecord) error {
			once.Do(func() { close(started) })
			<-release
			return nil
		}).Times(2)

	p := newPersister(t, messageStore, 1)
	p.Archive(record("m1", "X", time.Now()))
	<-started
	// m1 is held by the worker, m2 fills the queue, m3 has nowhere to go
	p.Archive(record("m2", "X", time.Now()))
	p.Archive(record("m3", "X", time.Now()))
	req.Equal(int64(1), p.Failures())

	close(release)
	p.Stop()
	req.Equal(int64(1), p.Failures())
}

func TestPersister_ArchiveAfterStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := newPersister(t, mocks.NewMockMessageStore(ctrl), 1)
	p.Stop()

	p.Archive(record("m1", "X", time.Now()))

	require.Equal(t, int64(1), p.Failures())
}

func TestPersistenceError_Unwrap(t *testing.T) {
	err := &store.PersistenceError{ChatID: "X", MessageID: "m1", Err: store.ErrQueueFull}

	require.ErrorIs(t, err, store.ErrQueueFull)
	require.Contains(t, err.Error(), "m1")
}

// pipeConn is the smallest chat.Conn able to carry one session.
type pipeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{in: make(chan []byte, 4), out: make(chan []byte, 4), closed: make(chan struct{})}
}

func (c *pipeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.in:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *pipeConn) Write(_ context.Context, data []byte) error {
	c.out <- data
	return nil
}

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *pipeConn) RemoteAddr() string { return "pipe" }

type singleUserGate struct{}

func (singleUserGate) Authenticate(context.Context, string) (chat.Principal, error) {
	return chat.Principal{ID: "A", Name: "Alice"}, nil
}

func TestPersister_FailureDoesNotRetractDelivery(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	messageStore := mocks.NewMockMessageStore(ctrl)
	appended := make(chan struct{})
	messageStore.EXPECT().Append(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, chat.MessageRecord) error {
			close(appended)
			return errors.New("store unavailable")
		})

	p := newPersister(t, messageStore, 4)
	hub := chat.NewHub(logs.GetLoggerFromLevel(slog.LevelDebug), singleUserGate{}, p, 8)
	conn := newPipeConn()
	done := make(chan error, 1)
	go func() { done <- hub.Serve(context.Background(), conn, protocol.JSONCodec{}, "token") }()

	frame, err := protocol.NewFrame(protocol.EventNewMessage, protocol.NewMessagePayload{ChatID: "X", Members: []string{"A"}, Message: "hi"})
	req.NoError(err)
	data, err := protocol.JSONCodec{}.Encode(frame)
	req.NoError(err)
	conn.in <- data

	// The sender still gets both frames even though the store fails
	for _, want := range []protocol.Event{protocol.EventMessage, protocol.EventMessageAlert} {
		select {
		case out := <-conn.out:
			got, err := protocol.JSONCodec{}.Decode(out)
			req.NoError(err)
			req.Equal(want, got.Event)
		case <-time.After(time.Second):
			t.Fatalf("no %s frame", want)
		}
	}

	<-appended
	req.Eventually(func() bool { return p.Failures() == 1 }, time.Second, 5*time.Millisecond)
	req.NoError(conn.Close())
	req.NoError(<-done)
}
