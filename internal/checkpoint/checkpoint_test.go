package checkpoint

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/finpilot/backend/internal/model/chat"
)

func sampleSession() *chat.Session {
	builtAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s := chat.NewSession("s1", "u1", builtAt)
	s.Append(chat.Message{ID: "m1", Role: chat.RoleUser, Content: "Hello!", CreatedAt: builtAt})
	s.Append(chat.Message{ID: "m2", Role: chat.RoleAssistant, Content: "Hi there", Agent: "smalltalk", CreatedAt: builtAt})
	s.ProfileContext = "No profile on file."
	s.ProfileContextBuiltAt = &builtAt
	s.AccountIDs = []string{"a1"}
	s.Turns = 1
	return s
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := sampleSession()
	data, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, original.Messages, decoded.Messages)
	assert.True(t, original.ProfileContextBuiltAt.Equal(*decoded.ProfileContextBuiltAt))
	assert.Equal(t, original.AccountIDs, decoded.AccountIDs)
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	missing, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	session := sampleSession()
	require.NoError(t, store.Save(ctx, "s1", session))
	session.Append(chat.Message{Role: chat.RoleUser, Content: "not saved"})

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, loaded.Messages, 2)

	assert.ErrorIs(t, store.Save(ctx, "", session), ErrSessionIDRequired)
}

type fakeConn struct {
	mu   sync.Mutex
	data map[string][]byte
	args map[string][]any
}

func newFakeConn() *fakeConn {
	return &fakeConn{data: map[string][]byte{}, args: map[string][]any{}}
}

func (c *fakeConn) Close() error                                        { return nil }
func (c *fakeConn) Err() error                                          { return nil }
func (c *fakeConn) Send(string, ...interface{}) error                   { return nil }
func (c *fakeConn) Flush() error                                        { return nil }
func (c *fakeConn) Receive() (interface{}, error)                       { return nil, nil }
func (c *fakeConn) ReceiveContext(context.Context) (interface{}, error) { return nil, nil }

func (c *fakeConn) Do(cmd string, args ...interface{}) (interface{}, error) {
	return c.DoContext(context.Background(), cmd, args...)
}

func (c *fakeConn) DoContext(_ context.Context, cmd string, args ...interface{}) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, _ := args[0].(string)
	c.args[cmd] = args
	switch cmd {
	case "GET":
		if v, ok := c.data[key]; ok {
			return v, nil
		}
		return nil, nil
	case "SET":
		c.data[key] = args[1].([]byte)
		return "OK", nil
	}
	return nil, nil
}

type fakePool struct{ conn *fakeConn }

func (p fakePool) GetContext(context.Context) (redis.Conn, error) { return p.conn, nil }

func TestRedisStoreSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	conn := newFakeConn()
	store := NewRedisStore(fakePool{conn: conn}, RedisConfig{KeyPrefix: "fp:", TTL: time.Hour})

	missing, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, store.Save(ctx, "s1", sampleSession()))
	assert.Contains(t, conn.data, "fp:s1")
	assert.Equal(t, []any{"fp:s1", conn.data["fp:s1"], "PX", int64(3600000)}, conn.args["SET"])

	loaded, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "u1", loaded.UserID)
	assert.Len(t, loaded.Messages, 2)
}
