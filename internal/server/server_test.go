package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/omochice/realtime-chat/internal/auth"
	"github.com/omochice/realtime-chat/internal/chat"
	clienttcp "github.com/omochice/realtime-chat/internal/client/tcp"
	clientws "github.com/omochice/realtime-chat/internal/client/ws"
	"github.com/omochice/realtime-chat/internal/server"
	"github.com/omochice/realtime-chat/internal/store"
	"github.com/omochice/realtime-chat/pkg/protocol"
	"github.com/stretchr/testify/require"
)

const secret = "integration-secret"

type fixture struct {
	srv       *server.Server
	hub       *chat.Hub
	store     *store.BadgerStore
	persister *store.Persister
}

func start(t *testing.T) fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	badgerStore, err := store.OpenBadger(store.InMemory, log)
	require.NoError(t, err)
	persister := store.NewPersister(badgerStore, log, 16, 1, time.Second)
	persister.Start(context.Background())

	gate := auth.NewGate(auth.NewJWTVerifier(secret), log)
	hub := chat.NewHub(log, gate, persister, 16)
	srv := server.New("127.0.0.1:0", hub, log, time.Second)
	require.NoError(t, srv.Start())

	t.Cleanup(func() {
		srv.Stop()
		persister.Stop()
		_ = badgerStore.Close()
	})
	return fixture{srv: srv, hub: hub, store: badgerStore, persister: persister}
}

func token(t *testing.T, userID, name string) string {
	t.Helper()
	tok, err := auth.IssueToken(secret, userID, name, time.Hour)
	require.NoError(t, err)
	return tok
}

func next(t *testing.T, frames <-chan protocol.Frame, want protocol.Event) protocol.Frame {
	t.Helper()
	select {
	case f, ok := <-frames:
		require.True(t, ok, "connection closed while waiting for %s", want)
		require.Equal(t, want, f.Event)
		return f
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", want)
		return protocol.Frame{}
	}
}

func waitRegistered(t *testing.T, hub *chat.Hub, ids ...chat.Identity) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, id := range ids {
			if _, ok := hub.Registry().Lookup(id); !ok {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
}

func TestServer_WebSocketAndTCPShareOnePort(t *testing.T) {
	req := require.New(t)
	f := start(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	alice := clientws.New("ws://"+f.srv.Addr()+"/ws", token(t, "alice", "Alice"), protocol.JSONCodec{}, log)
	bob := clienttcp.New(f.srv.Addr(), token(t, "bob", "Bob"), log)
	req.NoError(alice.Connect())
	defer alice.Disconnect()
	req.NoError(bob.Connect())
	defer bob.Disconnect()
	waitRegistered(t, f.hub, "alice", "bob")
	members := []string{"alice", "bob"}

	// Presence reaches both transports
	req.NoError(bob.JoinChat("bob", members))
	for _, frames := range []<-chan protocol.Frame{alice.Frames(), bob.Frames()} {
		var online []string
		req.NoError(json.Unmarshal(next(t, frames, protocol.EventPresenceSnapshot).Data, &online))
		req.Equal([]string{"bob"}, online)
	}

	// A message from the WebSocket side reaches the TCP side and is stored
	req.NoError(alice.SendMessage("chat-1", members, "hello bob"))
	var event protocol.MessageEvent
	req.NoError(json.Unmarshal(next(t, bob.Frames(), protocol.EventMessage).Data, &event))
	req.Equal("hello bob", event.Message.Content)
	req.Equal(protocol.Sender{ID: "alice", Name: "Alice"}, event.Message.Sender)
	next(t, bob.Frames(), protocol.EventMessageAlert)
	next(t, alice.Frames(), protocol.EventMessage)
	next(t, alice.Frames(), protocol.EventMessageAlert)

	req.Eventually(func() bool {
		records, err := f.store.Recent(context.Background(), "chat-1", 10)
		return err == nil && len(records) == 1 && records[0].ID == event.Message.ID
	}, 2*time.Second, 10*time.Millisecond)

	// Disconnect is broadcast to everyone left
	bob.Disconnect()
	var online []string
	req.NoError(json.Unmarshal(next(t, alice.Frames(), protocol.EventPresenceSnapshot).Data, &online))
	req.Empty(online)
}

func TestServer_RejectsInvalidToken(t *testing.T) {
	f := start(t)
	client := clientws.New("ws://"+f.srv.Addr()+"/ws", "not-a-token", protocol.JSONCodec{}, logs.GetLoggerFromLevel(slog.LevelDebug))
	require.NoError(t, client.Connect())
	defer client.Disconnect()

	next(t, client.Frames(), protocol.EventConnectError)
	require.Zero(t, f.hub.Registry().Len())
}

func postEvent(t *testing.T, addr, tok string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	r, err := http.NewRequest(http.MethodPost, "http://"+addr+"/api/v1/events", bytes.NewReader(data))
	require.NoError(t, err)
	if tok != "" {
		r.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(r)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestServer_EventsAPI(t *testing.T) {
	req := require.New(t)
	f := start(t)
	alice := clientws.New("ws://"+f.srv.Addr()+"/ws", token(t, "alice", "Alice"), protocol.JSONCodec{}, logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(alice.Connect())
	defer alice.Disconnect()
	waitRegistered(t, f.hub, "alice")
	service := token(t, "http-app", "")

	tests := []struct {
		name   string
		token  string
		body   any
		status int
	}{
		{name: "no credential", token: "", body: map[string]any{"event": "alert"}, status: http.StatusUnauthorized},
		{name: "client event", token: service, body: map[string]any{"event": "new_message"}, status: http.StatusBadRequest},
		{name: "missing event", token: service, body: map[string]any{"members": []string{"alice"}}, status: http.StatusBadRequest},
		{name: "not json", token: service, body: "just a string", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postEvent(t, f.srv.Addr(), tt.token, tt.body)
			require.Equal(t, tt.status, resp.StatusCode)
		})
	}

	resp := postEvent(t, f.srv.Addr(), service, map[string]any{
		"event":   "refetch_chats",
		"members": []string{"alice", "offline"},
		"data":    map[string]string{"chatId": "chat-1"},
	})
	req.Equal(http.StatusAccepted, resp.StatusCode)
	var body map[string]any
	req.NoError(json.NewDecoder(resp.Body).Decode(&body))
	req.Equal(true, body["success"])

	got := next(t, alice.Frames(), protocol.EventRefetchChats)
	req.JSONEq(`{"chatId":"chat-1"}`, string(got.Data))
}

func TestServer_Health(t *testing.T) {
	req := require.New(t)
	f := start(t)
	alice := clientws.New("ws://"+f.srv.Addr()+"/ws", token(t, "alice", "Alice"), protocol.JSONCodec{}, logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(alice.Connect())
	defer alice.Disconnect()
	waitRegistered(t, f.hub, "alice")
	req.NoError(alice.JoinChat("alice", []string{"alice"}))
	next(t, alice.Frames(), protocol.EventPresenceSnapshot)

	resp, err := http.Get("http://" + f.srv.Addr() + "/healthz")
	req.NoError(err)
	defer resp.Body.Close()

	req.Equal(http.StatusOK, resp.StatusCode)
	var health map[string]any
	req.NoError(json.NewDecoder(resp.Body).Decode(&health))
	req.Equal("ok", health["status"])
	req.EqualValues(1, health["connections"])
	req.EqualValues(1, health["online"])
}

func TestServer_Stop(t *testing.T) {
	f := start(t)
	addr := f.srv.Addr()
	client := clientws.New("ws://"+addr+"/ws", token(t, "alice", "Alice"), protocol.JSONCodec{}, logs.GetLoggerFromLevel(slog.LevelDebug))
	require.NoError(t, client.Connect())
	defer client.Disconnect()
	waitRegistered(t, f.hub, "alice")

	f.srv.Stop()
	f.srv.Stop()

	require.Eventually(t, func() bool { return !client.IsConnected() }, 2*time.Second, 10*time.Millisecond)
	require.Zero(t, f.hub.SessionCount())
	if conn, err := net.Dial("tcp", addr); err == nil {
		conn.Close()
		t.Error("expected dial to fail after Stop()")
	}
}
