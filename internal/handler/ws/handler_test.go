package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/finpilot/backend/internal/engine"
)

type fakeEngine struct {
	mu    sync.Mutex
	reply engine.Reply
	seen  []engine.TurnInput
}

func (f *fakeEngine) HandleTurn(_ context.Context, in engine.TurnInput) (engine.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, in)
	return f.reply, nil
}

type received struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Data      map[string]any `json:"data"`
}

func dial(t *testing.T, e Engine, path string) *websocket.Conn {
	t.Helper()
	r := chi.NewRouter()
	New(e, nil).RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestWebSocketTextTurn(t *testing.T) {
	fake := &fakeEngine{reply: engine.Reply{
		Text:    "Hello!",
		Agent:   "smalltalk",
		Route:   engine.RouteSmalltalk,
		Notices: []string{"heads up"},
	}}
	conn := dial(t, fake, "/ws/s1?userId=u1")

	var hello received
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connected", hello.Type)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "text",
		"data": map[string]string{"text": "hi there"},
	}))

	var notice, reply received
	require.NoError(t, conn.ReadJSON(&notice))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "notice", notice.Type)
	assert.Equal(t, "heads up", notice.Data["text"])
	assert.Equal(t, "reply", reply.Type)
	assert.Equal(t, "Hello!", reply.Data["text"])
	assert.Equal(t, "SMALLTALK", reply.Data["route"])

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.seen, 1)
	assert.Equal(t, engine.TurnInput{UserID: "u1", SessionID: "s1", Message: "hi there"}, fake.seen[0])
}

func TestWebSocketRejectsForeignSession(t *testing.T) {
	conn := dial(t, &fakeEngine{}, "/ws/s1?userId=u1")

	var hello received
	require.NoError(t, conn.ReadJSON(&hello))

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":      "text",
		"sessionId": "other",
		"data":      map[string]string{"text": "hi"},
	}))

	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "session mismatch", msg.Data["message"])
}

func TestWebSocketUnsupportedType(t *testing.T) {
	conn := dial(t, &fakeEngine{}, "/ws/s1?userId=u1")

	var hello received
	require.NoError(t, conn.ReadJSON(&hello))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "audio"}))

	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg.Type)
	assert.Contains(t, msg.Data["message"], "audio")
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://app.test"})

	req := httptest.NewRequest(http.MethodGet, "/ws/s1", nil)
	req.Header.Set("Origin", "http://app.test")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.test")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}
