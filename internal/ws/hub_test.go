package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/heartline/matchqueue/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	h := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(h, r.URL.Query().Get("user_id"), w, r)
	}))
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNotifyTargetsUser(t *testing.T) {
	h, base := startHub(t)
	alice := dial(t, base+"?user_id=alice")
	bob := dial(t, base+"?user_id=bob")
	require.Eventually(t, func() bool { return h.Clients() == 2 }, time.Second, 10*time.Millisecond)

	h.Notify("alice", types.Event{Type: "match_found", Payload: map[string]string{"chat_id": "c1"}})

	var ev types.Event
	_ = alice.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, alice.ReadJSON(&ev))
	assert.Equal(t, "match_found", ev.Type)

	_ = bob.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	assert.Error(t, bob.ReadJSON(&ev), "bob must not receive alice's event")
}

func TestBroadcastAndDisconnect(t *testing.T) {
	h, base := startHub(t)
	a := dial(t, base+"?user_id=a")
	b := dial(t, base+"?user_id=b")
	require.Eventually(t, func() bool { return h.Clients() == 2 }, time.Second, 10*time.Millisecond)

	h.Broadcast(types.Event{Type: "arena_open"})
	for _, c := range []*websocket.Conn{a, b} {
		var ev types.Event
		_ = c.SetReadDeadline(time.Now().Add(time.Second))
		require.NoError(t, c.ReadJSON(&ev))
		assert.Equal(t, "arena_open", ev.Type)
	}

	a.Close()
	require.Eventually(t, func() bool { return h.Clients() == 1 }, time.Second, 10*time.Millisecond)
}
