package stream

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/finpilot/backend/internal/engine"
	"github.com/zhouzirui/finpilot/backend/pkg/utils"
)

// Engine runs one turn.
type Engine interface {
	HandleTurn(ctx context.Context, in engine.TurnInput) (engine.Reply, error)
}

// Handler delivers a turn as Server-Sent Events.
type Handler struct {
	engine Engine
}

// New creates a new stream handler
func New(e Engine) *Handler {
	return &Handler{engine: e}
}

// RegisterRoutes mounts the SSE route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

// Event is one SSE payload.
type Event struct {
	Event     string       `json:"event"`
	SessionID string       `json:"sessionId,omitempty"`
	Content   string       `json:"content,omitempty"`
	Agent     string       `json:"agent,omitempty"`
	Route     engine.Route `json:"route,omitempty"`
	Finished  bool         `json:"finished,omitempty"`
	Error     string       `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	userID := r.URL.Query().Get("userId")
	message := r.URL.Query().Get("message")

	if userID == "" || message == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId and message are required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	h.Stream(r.Context(), w, flusher, engine.TurnInput{
		UserID:    userID,
		SessionID: sessionID,
		Message:   message,
	})
}

// Stream runs the turn and writes start, notice, reply and end events.
func (h *Handler) Stream(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, in engine.TurnInput) {
	utils.SendSSEEvent(w, flusher, "start", Event{Event: "start", SessionID: in.SessionID})

	reply, err := h.engine.HandleTurn(ctx, in)
	if err != nil {
		log.Warn().Str("component", "stream").Str("session_id", in.SessionID).Err(err).Msg("turn rejected")
		utils.SendSSEEvent(w, flusher, "error", Event{Event: "error", SessionID: in.SessionID, Error: err.Error()})
		utils.SendSSEEvent(w, flusher, "end", Event{Event: "end", SessionID: in.SessionID, Finished: true})
		return
	}

	for _, notice := range reply.Notices {
		utils.SendSSEEvent(w, flusher, "notice", Event{Event: "notice", SessionID: in.SessionID, Content: notice})
	}
	utils.SendSSEEvent(w, flusher, "reply", Event{
		Event:     "reply",
		SessionID: in.SessionID,
		Content:   reply.Text,
		Agent:     reply.Agent,
		Route:     reply.Route,
		Error:     reply.Error,
	})
	utils.SendSSEEvent(w, flusher, "end", Event{Event: "end", SessionID: in.SessionID, Finished: true})

	log.Debug().Str("component", "stream").Str("session_id", in.SessionID).Str("route", string(reply.Route)).Msg("stream completed")
}
