package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/finpilot/backend/internal/engine"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Engine runs one turn.
type Engine interface {
	HandleTurn(ctx context.Context, in engine.TurnInput) (engine.Reply, error)
}

// Handler runs turns over a WebSocket connection bound to one session.
type Handler struct {
	engine   Engine
	upgrader websocket.Upgrader
}

// New creates the WebSocket handler. An empty origin list accepts any origin.
func New(e Engine, allowedOrigins []string) *Handler {
	return &Handler{
		engine: e,
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the WebSocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TextMessage carries one user utterance.
type TextMessage struct {
	UserID string `json:"userId"`
	Text   string `json:"text"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "sessionID is required", http.StatusBadRequest)
		return
	}
	userID := r.URL.Query().Get("userId")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Str("component", "websocket").Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	logger := log.With().Str("component", "websocket").Str("session_id", sessionID).Logger()
	logger.Info().Msg("connection opened")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go pingLoop(ctx, conn)

	h.send(conn, outgoingMessage{Type: "connected", SessionID: sessionID})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn().Err(err).Msg("read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(conn, sessionID, "session mismatch")
			continue
		}

		switch msg.Type {
		case "text":
			h.handleText(ctx, conn, sessionID, userID, msg.Data)
		default:
			h.sendError(conn, sessionID, "unsupported message type: "+msg.Type)
		}
	}
}

func (h *Handler) handleText(ctx context.Context, conn *websocket.Conn, sessionID, userID string, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		h.sendError(conn, sessionID, "invalid text payload")
		return
	}
	if text.UserID == "" {
		text.UserID = userID
	}

	reply, err := h.engine.HandleTurn(ctx, engine.TurnInput{
		UserID:    text.UserID,
		SessionID: sessionID,
		Message:   text.Text,
	})
	if err != nil {
		h.sendError(conn, sessionID, err.Error())
		return
	}

	for _, notice := range reply.Notices {
		h.send(conn, outgoingMessage{Type: "notice", SessionID: sessionID, Data: map[string]string{"text": notice}})
	}
	h.send(conn, outgoingMessage{Type: "reply", SessionID: sessionID, Data: reply})
}

func (h *Handler) send(conn *websocket.Conn, msg outgoingMessage) {
	msg.Timestamp = time.Now().Unix()
	if err := conn.WriteJSON(msg); err != nil {
		log.Debug().Str("component", "websocket").Err(err).Str("type", msg.Type).Msg("write failed")
	}
}

func (h *Handler) sendError(conn *websocket.Conn, sessionID, message string) {
	h.send(conn, outgoingMessage{Type: "error", SessionID: sessionID, Data: map[string]string{"message": message}})
}

func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
