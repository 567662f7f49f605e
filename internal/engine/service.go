// Package engine runs one conversation turn through the routing graph and
// persists the session state between turns.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/finpilot/backend/internal/checkpoint"
	"github.com/zhouzirui/finpilot/backend/internal/metrics"
	"github.com/zhouzirui/finpilot/backend/internal/model/chat"
	"github.com/zhouzirui/finpilot/backend/internal/service/ai"
)

const (
	apologyText          = "Sorry, I'm having trouble responding right now. Please try again in a moment."
	accountLinkedMessage = "A new financial account was linked."
)

// Error codes carried in Reply.Error.
const (
	ErrorModelUnavailable = "model_unavailable"
	ErrorTurnFailed       = "turn_failed"
	ErrorSaveFailed       = "state_not_saved"
)

// Service handles turns. The graph is compiled once and shared by all
// sessions; turns of one session run one at a time.
type Service struct {
	wf          *workflow
	graph       compose.Runnable[*TurnState, *TurnState]
	checkpoints checkpoint.Store
	locks       *keyedMutex
	cfg         Config
}

// NewService validates deps and compiles the turn graph.
func NewService(ctx context.Context, deps Dependencies, cfg Config) (*Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	wf := newWorkflow(deps, cfg)
	graph, err := wf.compileGraph(ctx)
	if err != nil {
		return nil, err
	}

	return &Service{
		wf:          wf,
		graph:       graph,
		checkpoints: deps.Checkpoints,
		locks:       newKeyedMutex(),
		cfg:         cfg,
	}, nil
}

// ProfileContext exposes the profile cache component.
func (s *Service) ProfileContext() *ProfileContext {
	return s.wf.profileCtx
}

// HandleTurn loads the session, runs the graph and saves the result. A
// graph failure yields the apology reply and leaves the stored state as it
// was. Invalid input and session ownership errors are returned as errors.
func (s *Service) HandleTurn(ctx context.Context, in TurnInput) (Reply, error) {
	in.Message = strings.TrimSpace(in.Message)
	if in.Kind == "" {
		in.Kind = KindMessage
	}
	switch {
	case in.SessionID == "":
		return Reply{}, ErrSessionRequired
	case in.UserID == "":
		return Reply{}, ErrUserRequired
	case in.Message == "" && !in.IsAccountLinked():
		return Reply{}, ErrMessageRequired
	}

	unlock := s.locks.Lock(in.SessionID)
	defer unlock()

	stored, err := s.checkpoints.Load(ctx, in.SessionID)
	if err != nil {
		log.Error().Str("component", "engine").Str("session_id", in.SessionID).Err(err).Msg("failed to load session")
		return s.apology(ctx, "", ErrorTurnFailed), nil
	}

	now := s.cfg.Clock()
	session := stored.Clone()
	if session == nil {
		session = chat.NewSession(in.SessionID, in.UserID, now)
	}
	if session.UserID != in.UserID {
		return Reply{}, ErrSessionUserMismatch
	}

	session.Append(s.inboundMessage(in, now))

	out, err := s.graph.Invoke(ctx, newTurnState(in, session, now))
	if err != nil {
		code := ErrorTurnFailed
		if errors.Is(err, ai.ErrModelUnavailable) {
			code = ErrorModelUnavailable
		}
		log.Error().Str("component", "engine").Str("session_id", in.SessionID).Err(err).Msg("turn failed, nothing saved")
		route := ""
		if out != nil {
			route = string(out.Route)
		}
		return s.apology(ctx, route, code), nil
	}

	reply := out.reply()
	if reply.Text == "" {
		reply.Text = apologyText
		reply.Agent = AgentSystem
	}
	session.Append(chat.Message{
		ID:        s.cfg.NewID(),
		Role:      chat.RoleAssistant,
		Content:   reply.Text,
		Agent:     reply.Agent,
		CreatedAt: s.cfg.Clock(),
	})
	session.Turns++
	session.UpdatedAt = s.cfg.Clock()

	if err := s.checkpoints.Save(ctx, in.SessionID, session); err != nil {
		log.Error().Str("component", "engine").Str("session_id", in.SessionID).Err(err).Msg("failed to save session")
		reply.Error = ErrorSaveFailed
	}
	return reply, nil
}

// History returns the persisted transcript of a session.
func (s *Service) History(ctx context.Context, sessionID string) ([]chat.Message, error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}
	session, err := s.checkpoints.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if session == nil {
		return []chat.Message{}, nil
	}
	return session.Messages, nil
}

// Session returns the persisted state of a session, nil when absent.
func (s *Service) Session(ctx context.Context, sessionID string) (*chat.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}
	return s.checkpoints.Load(ctx, sessionID)
}

func (s *Service) inboundMessage(in TurnInput, now time.Time) chat.Message {
	if in.IsAccountLinked() {
		content := in.Message
		if content == "" {
			content = accountLinkedMessage
		}
		return chat.Message{ID: s.cfg.NewID(), Role: chat.RoleSystem, Content: content, CreatedAt: now}
	}
	return chat.Message{ID: s.cfg.NewID(), Role: chat.RoleUser, Content: in.Message, CreatedAt: now}
}

func (s *Service) apology(ctx context.Context, route, code string) Reply {
	metrics.RecordFatalTurn(ctx, route)
	return Reply{
		Text:  apologyText,
		Agent: AgentSystem,
		Route: Route(route),
		Error: code,
	}
}
