package engine

import (
	"context"
	"fmt"

	"github.com/zhouzirui/finpilot/backend/internal/service/ai"
)

// respond runs a single-turn responder for agent. Extra sections are appended
// to the system prompt.
func (w *workflow) respond(ctx context.Context, st *TurnState, agent string, sections ...string) error {
	system := w.deps.Prompts.BuildSystemPrompt(agent, st.Session.ProfileContext, sections...)
	reply, err := w.deps.Model.Invoke(ctx, system, w.history(st))
	if err != nil {
		return fmt.Errorf("%s reply: %w", agent, err)
	}
	st.say(agent, reply.Text())
	return nil
}

func (w *workflow) smalltalk(ctx context.Context, st *TurnState) (*TurnState, error) {
	if err := w.respond(ctx, st, ai.AgentSmalltalk); err != nil {
		return nil, err
	}
	return st, nil
}

func (w *workflow) investment(ctx context.Context, st *TurnState) (*TurnState, error) {
	if err := w.respond(ctx, st, ai.AgentInvestment); err != nil {
		return nil, err
	}
	return st, nil
}
