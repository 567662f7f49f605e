package turn

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/finpilot/backend/internal/engine"
	"github.com/zhouzirui/finpilot/backend/internal/model/chat"
	"github.com/zhouzirui/finpilot/backend/pkg/utils"
)

// Engine is the part of the turn engine the handler needs.
type Engine interface {
	HandleTurn(ctx context.Context, in engine.TurnInput) (engine.Reply, error)
	History(ctx context.Context, sessionID string) ([]chat.Message, error)
}

// Handler serves JSON turns and transcripts.
type Handler struct {
	engine Engine
}

// New creates the turn handler.
func New(e Engine) *Handler {
	return &Handler{engine: e}
}

// RegisterRoutes mounts the turn routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/turns", h.handleTurn)
	r.Get("/sessions/{sessionID}/messages", h.handleHistory)
}

type turnRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type turnResponse struct {
	SessionID string `json:"sessionId"`
	engine.Reply
}

func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	var payload turnRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.engine.HandleTurn(r.Context(), engine.TurnInput{
		UserID:    payload.UserID,
		SessionID: payload.SessionID,
		Message:   payload.Message,
	})
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, turnResponse{SessionID: payload.SessionID, Reply: reply})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	messages, err := h.engine.History(r.Context(), sessionID)
	if err != nil {
		log.Error().Str("component", "handler").Str("session_id", sessionID).Err(err).Msg("history failed")
		utils.RespondError(w, StatusFor(err), "failed to load history")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"messages":  messages,
	})
}

// StatusFor maps engine errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrSessionRequired),
		errors.Is(err, engine.ErrUserRequired),
		errors.Is(err, engine.ErrMessageRequired):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrSessionUserMismatch):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
