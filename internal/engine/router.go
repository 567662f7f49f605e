package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/finpilot/backend/internal/metrics"
	"github.com/zhouzirui/finpilot/backend/internal/service/ai"
)

func (w *workflow) refreshContext(ctx context.Context, st *TurnState) (*TurnState, error) {
	w.profileCtx.RefreshIfStale(ctx, st.Session)
	w.profileCtx.GetProfileContext(ctx, st.Session)
	return st, nil
}

// route picks one of the four routes. A model failure is fatal for the turn.
func (w *workflow) route(ctx context.Context, st *TurnState) (*TurnState, error) {
	if st.Input.IsAccountLinked() {
		st.Route = RouteOnboarding
		metrics.RecordRoute(ctx, string(st.Route))
		return st, nil
	}

	status := "Profile status: INCOMPLETE. Route to ONBOARDING unless the message is small talk."
	if st.Session.ProfileComplete {
		status = "Profile status: COMPLETE."
	}
	system := w.deps.Prompts.BuildSystemPrompt(ai.AgentRouter, st.Session.ProfileContext, status)

	reply, err := w.deps.Model.Invoke(ctx, system, w.history(st))
	if err != nil {
		return nil, fmt.Errorf("route turn: %w", err)
	}

	raw := reply.Text()
	route, ok := ParseRoute(raw)
	if !ok {
		log.Warn().Str("component", "router").Str("label", raw).Msg("unknown route label, default to smalltalk")
	}
	if !st.Session.ProfileComplete && (route == RouteSpending || route == RouteInvestment) {
		log.Debug().Str("component", "router").Str("label", string(route)).Msg("profile incomplete, route to onboarding")
		route = RouteOnboarding
	}

	st.Route = route
	metrics.RecordRoute(ctx, string(route))
	log.Info().Str("component", "router").Str("session_id", st.Session.ID).Str("route", string(route)).Msg("turn routed")
	return st, nil
}

func (w *workflow) branchOnRoute(_ context.Context, st *TurnState) (string, error) {
	switch st.Route {
	case RouteSpending:
		return nodeSpending, nil
	case RouteInvestment:
		return nodeInvestment, nil
	case RouteOnboarding:
		return nodeOnboarding, nil
	}
	return nodeSmalltalk, nil
}
