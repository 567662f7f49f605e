package profile

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/finpilot/backend/internal/engine"
	"github.com/zhouzirui/finpilot/backend/internal/model/profile"
	"github.com/zhouzirui/finpilot/backend/pkg/utils"
)

// Store is the profile persistence the handler reads and writes.
type Store interface {
	Get(ctx context.Context, userID string) (*profile.Profile, error)
	Accounts(ctx context.Context, userID string) ([]profile.Account, error)
	LinkAccount(ctx context.Context, account profile.Account) (profile.Account, error)
}

// Engine runs the turn that acknowledges a linked account.
type Engine interface {
	HandleTurn(ctx context.Context, in engine.TurnInput) (engine.Reply, error)
}

// Handler serves profile reads and account linking.
type Handler struct {
	profiles Store
	engine   Engine
}

// New creates the profile handler.
func New(profiles Store, e Engine) *Handler {
	return &Handler{profiles: profiles, engine: e}
}

// RegisterRoutes mounts the profile routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/profiles/{userID}", h.handleGet)
	r.Post("/profiles/{userID}/accounts", h.handleLinkAccount)
}

type profileResponse struct {
	UserID   string            `json:"userId"`
	Profile  *profile.Profile  `json:"profile,omitempty"`
	Missing  []string          `json:"missing"`
	Accounts []profile.Account `json:"accounts"`
	Complete bool              `json:"complete"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	p, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		log.Error().Str("component", "handler").Str("user_id", userID).Err(err).Msg("profile read failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	accounts, err := h.profiles.Accounts(r.Context(), userID)
	if err != nil {
		log.Error().Str("component", "handler").Str("user_id", userID).Err(err).Msg("account read failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to load accounts")
		return
	}
	if p == nil && len(accounts) == 0 {
		utils.RespondError(w, http.StatusNotFound, "profile not found")
		return
	}

	missing := profile.FieldNames
	if p != nil {
		missing = p.Fields.Missing()
	}
	if accounts == nil {
		accounts = []profile.Account{}
	}
	utils.RespondJSON(w, http.StatusOK, profileResponse{
		UserID:   userID,
		Profile:  p,
		Missing:  missing,
		Accounts: accounts,
		Complete: p.HasAllFields() && len(accounts) > 0,
	})
}

type linkRequest struct {
	Provider  string `json:"provider"`
	Name      string `json:"name"`
	Mask      string `json:"mask"`
	SessionID string `json:"sessionId"`
}

type linkResponse struct {
	Account profile.Account `json:"account"`
	Reply   *engine.Reply   `json:"reply,omitempty"`
}

func (h *Handler) handleLinkAccount(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var payload linkRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Name) == "" {
		utils.RespondError(w, http.StatusBadRequest, "account name is required")
		return
	}

	account, err := h.profiles.LinkAccount(r.Context(), profile.Account{
		UserID:   userID,
		Provider: strings.TrimSpace(payload.Provider),
		Name:     strings.TrimSpace(payload.Name),
		Mask:     strings.TrimSpace(payload.Mask),
	})
	if err != nil {
		if errors.Is(err, profile.ErrUserRequired) {
			utils.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Str("component", "handler").Str("user_id", userID).Err(err).Msg("link account failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to link account")
		return
	}

	resp := linkResponse{Account: account}
	if payload.SessionID != "" && h.engine != nil {
		reply, err := h.engine.HandleTurn(r.Context(), engine.TurnInput{
			UserID:    userID,
			SessionID: payload.SessionID,
			Kind:      engine.KindAccountLinked,
		})
		if err != nil {
			log.Warn().Str("component", "handler").Str("session_id", payload.SessionID).Err(err).Msg("account linked turn rejected")
		} else {
			resp.Reply = &reply
		}
	}

	utils.RespondJSON(w, http.StatusCreated, resp)
}
