package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"vibely/internal/client/api"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationKey(t *testing.T) {
	assert.Equal(t, "3_12", ConversationKey(12, 3))
	assert.Equal(t, ConversationKey(3, 12), ConversationKey(12, 3))

	low, high, err := ParseConversationKey("3_12")
	require.NoError(t, err)
	assert.Equal(t, uint(3), low)
	assert.Equal(t, uint(12), high)

	for _, bad := range []string{"12_3", "3_3", "3-12", "a_b", ""} {
		_, _, err := ParseConversationKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestMaterialize_SortedRegardlessOfKeyOrder(t *testing.T) {
	snapshot := map[string]*api.Message{
		"zzz": {Text: "first", CreatedAt: 1000, Seq: 1},
		"aaa": {Text: "third", CreatedAt: 3000, Seq: 3},
		"mmm": {Text: "second", CreatedAt: 2000, Seq: 2},
		"bbb": {Text: "tie-b", CreatedAt: 4000, Seq: 5},
		"ccc": {Text: "tie-a", CreatedAt: 4000, Seq: 4},
		"nil": nil,
	}
	for range 20 {
		list := Materialize(snapshot)
		texts := make([]string, len(list))
		for i, m := range list {
			texts[i] = m.Text
		}
		assert.Equal(t, []string{"first", "second", "third", "tie-a", "tie-b"}, texts)
		assert.Equal(t, "zzz", list[0].Key)
	}
	assert.Empty(t, Materialize(nil))
}

func TestWebsocketURL(t *testing.T) {
	u, _ := url.Parse("https://vibely.example/api")
	assert.Equal(t, "wss://vibely.example/api/ws/chat", WebsocketURL(u))
	u, _ = url.Parse("http://localhost:8080/api/")
	assert.Equal(t, "ws://localhost:8080/api/ws/chat", WebsocketURL(u))
}

type recordingSender struct {
	key       string
	text      string
	createdAt time.Time
}

func (r *recordingSender) Send(_ context.Context, key, text string, createdAt time.Time) (*api.Message, error) {
	r.key, r.text, r.createdAt = key, text, createdAt
	return &api.Message{Key: "k1", Text: text, CreatedAt: createdAt.UnixMilli()}, nil
}

func TestSendAndDelivered(t *testing.T) {
	sender := &recordingSender{}
	s, err := New("1_2", 1, sender, Config{URL: "ws://unused"})
	require.NoError(t, err)

	before := time.Now()
	msg, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "k1", msg.Key)
	assert.Equal(t, "1_2", sender.key)
	assert.Equal(t, "hello", sender.text)
	assert.False(t, sender.createdAt.Before(before), "stamped with the local clock")

	assert.True(t, s.Delivered(api.Message{UserID: 1}), "own messages always show as delivered")
	assert.False(t, s.Delivered(api.Message{UserID: 2}))

	_, err = New("2_1", 1, sender, Config{URL: "ws://unused"})
	assert.Error(t, err)
}

// chatServer speaks the server side of the chat protocol. Every connection
// gets one snapshot per subscribe; dropFirst closes the first connection right
// after its snapshot.
type chatServer struct {
	*httptest.Server
	token     string
	dropFirst bool
	reject    string
	conns     atomic.Int32
}

func newChatServer(t *testing.T, cs *chatServer) *chatServer {
	t.Helper()
	upgrader := websocket.Upgrader{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth != "Bearer "+cs.token && r.URL.Query().Get("ticket") != "t-"+cs.token {
			http.Error(w, `{"message":"Authorization required"}`, http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		n := cs.conns.Add(1)

		var in frame
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		if cs.reject != "" {
			_ = conn.WriteJSON(frame{Type: "error", Key: in.Key, Message: cs.reject})
			return
		}
		_ = conn.WriteJSON(frame{Type: "error", Message: "Unknown message type"})
		_ = conn.WriteJSON(frame{Type: "snapshot", Key: "8_9", Messages: map[string]*api.Message{"x": {Text: "other chat"}}})
		_ = conn.WriteJSON(frame{Type: "snapshot", Key: in.Key, Messages: map[string]*api.Message{
			"b": {Text: "later", CreatedAt: int64(n) * 2000},
			"a": {Text: "earlier", CreatedAt: int64(n) * 1000},
		}})
		if n == 1 && cs.dropFirst {
			return
		}
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *chatServer) wsURL() string {
	return "ws" + strings.TrimPrefix(cs.URL, "http")
}

func TestSync_SnapshotsAndReconnect(t *testing.T) {
	cs := newChatServer(t, &chatServer{token: "tok", dropFirst: true})
	snapshots := make(chan []api.Message, 8)
	s, err := New("1_2", 1, &recordingSender{}, Config{
		URL:            cs.wsURL(),
		Token:          func() (string, error) { return "tok", nil },
		ReconnectDelay: 10 * time.Millisecond,
		OnSnapshot:     func(list []api.Message) { snapshots <- list },
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	first := <-snapshots
	require.Len(t, first, 2)
	assert.Equal(t, "earlier", first[0].Text)
	assert.Equal(t, "a", first[0].Key)

	// The first connection is dropped; Run dials again and the new snapshot
	// replaces the list.
	second := <-snapshots
	require.Len(t, second, 2)
	assert.Equal(t, int64(2000), second[0].CreatedAt)
	assert.Equal(t, second, s.Messages())
	assert.GreaterOrEqual(t, cs.conns.Load(), int32(2))

	require.NoError(t, s.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.ErrorIs(t, s.Run(context.Background()), ErrClosed)
}

func TestSync_TicketAuth(t *testing.T) {
	cs := newChatServer(t, &chatServer{token: "tok"})
	snapshots := make(chan []api.Message, 1)
	s, err := New("1_2", 1, &recordingSender{}, Config{
		URL:        cs.wsURL(),
		Ticket:     func(context.Context) (string, error) { return "t-tok", nil },
		OnSnapshot: func(list []api.Message) { snapshots <- list },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case list := <-snapshots:
		assert.Len(t, list, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot")
	}
	cancel()
	assert.NoError(t, <-done)
}

func TestSync_Rejected(t *testing.T) {
	t.Run("subscription refused", func(t *testing.T) {
		cs := newChatServer(t, &chatServer{token: "tok", reject: "You are not a participant of this conversation"})
		s, err := New("1_2", 1, &recordingSender{}, Config{
			URL:   cs.wsURL(),
			Token: func() (string, error) { return "tok", nil },
		})
		require.NoError(t, err)

		err = s.Run(context.Background())
		var rejected *RejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, "You are not a participant of this conversation", rejected.Message)
	})

	t.Run("handshake unauthorized", func(t *testing.T) {
		cs := newChatServer(t, &chatServer{token: "tok"})
		s, err := New("1_2", 1, &recordingSender{}, Config{
			URL:   cs.wsURL(),
			Token: func() (string, error) { return "wrong", nil },
		})
		require.NoError(t, err)

		err = s.Run(context.Background())
		var rejected *RejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, http.StatusUnauthorized, rejected.Status)
		assert.Zero(t, cs.conns.Load())
	})
}
