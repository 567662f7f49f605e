package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zhouzirui/finpilot/backend/internal/engine"
	"github.com/zhouzirui/finpilot/backend/internal/model/chat"
	"github.com/zhouzirui/finpilot/backend/internal/model/profile"
)

type stubEngine struct{}

func (stubEngine) HandleTurn(context.Context, engine.TurnInput) (engine.Reply, error) {
	return engine.Reply{Text: "ok", Agent: "smalltalk", Route: engine.RouteSmalltalk}, nil
}

func (stubEngine) History(context.Context, string) ([]chat.Message, error) {
	return []chat.Message{}, nil
}

func newTestRouter(ping func() error) http.Handler {
	return NewRouter(Options{
		Engine:      stubEngine{},
		Profiles:    profile.NewMemoryStore(),
		CORSOrigins: []string{"http://app.test"},
		Ping:        ping,
	})
}

func TestHealthz(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter(nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"ok"`)

	resp = httptest.NewRecorder()
	newTestRouter(func() error { return errors.New("down") }).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestRouterMountsAPI(t *testing.T) {
	r := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/turns", bytes.NewReader([]byte(`{"userId":"u1","sessionId":"s1","message":"hi"}`)))
	req.Header.Set("Origin", "http://app.test")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "http://app.test", resp.Header().Get("Access-Control-Allow-Origin"))

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/sessions/s1/messages", nil))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/profiles/nobody", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
