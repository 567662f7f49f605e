package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	analysis "github.com/zhouzirui/finpilot/backend/internal/analysis/intent"
	"github.com/zhouzirui/finpilot/backend/internal/model/transaction"
	"github.com/zhouzirui/finpilot/backend/internal/service/ai"
)

const snapshotWindow = 30 * 24 * time.Hour

// initializeSpending takes the read-only user snapshot. It never fails.
func (w *workflow) initializeSpending(ctx context.Context, st *TurnState) (*TurnState, error) {
	session := st.Session
	snapshot := UserContext{
		ProfileContext:  session.ProfileContext,
		ProfileComplete: session.ProfileComplete,
		AccountIDs:      append([]string(nil), session.AccountIDs...),
	}

	totals, err := w.deps.Transactions.CategoryTotals(ctx, session.UserID, st.Now.Add(-snapshotWindow))
	if err != nil {
		log.Warn().Str("component", "spending").Str("user_id", session.UserID).Err(err).Msg("category totals unavailable")
	} else {
		snapshot.CategoryTotals = totals
	}

	st.Spending = SpendingState{
		UserID:   session.UserID,
		Snapshot: snapshot,
	}
	return st, nil
}

func (w *workflow) classifyIntent(ctx context.Context, st *TurnState) (*TurnState, error) {
	decision := w.deps.Intent.Classify(ctx, w.history(st), st.Spending.Snapshot.ProfileContext)
	st.Spending.DetectedIntent = decision.Intent
	log.Info().
		Str("component", "spending").
		Str("intent", string(decision.Intent)).
		Float32("confidence", decision.Confidence).
		Bool("fallback", decision.Fallback).
		Msg("spending intent classified")
	return st, nil
}

func (w *workflow) branchOnIntent(_ context.Context, st *TurnState) (string, error) {
	switch st.Spending.DetectedIntent {
	case analysis.SpendingAnalysis:
		return nodeSpendingAnalysis, nil
	case analysis.BudgetPlanning:
		return nodeBudgetPlanning, nil
	case analysis.Optimization:
		return nodeOptimization, nil
	case analysis.TransactionQuery:
		return nodeTransactionQuery, nil
	}
	return nodeGeneral, nil
}

func (w *workflow) spendingResponder(agent string) func(context.Context, *TurnState) (*TurnState, error) {
	return func(ctx context.Context, st *TurnState) (*TurnState, error) {
		if err := w.respond(ctx, st, agent, totalsSection(st.Spending.Snapshot.CategoryTotals)); err != nil {
			return nil, err
		}
		st.Spending.HasResult = true
		return st, nil
	}
}

// branchOnQueryResult is the loop control of the query and fetch cycle.
func (w *workflow) branchOnQueryResult(_ context.Context, st *TurnState) (string, error) {
	if st.Spending.HasResult {
		return compose.END, nil
	}
	if st.Spending.FetchAttempts >= w.cfg.FetchMaxAttempts {
		return compose.END, nil
	}
	return nodeFetchAndProcess, nil
}

func totalsSection(totals []transaction.CategoryTotal) string {
	if len(totals) == 0 {
		return "No categorized spending is available for the last 30 days."
	}
	var b strings.Builder
	b.WriteString("Spending by category, last 30 days:")
	for _, t := range totals {
		fmt.Fprintf(&b, "\n- %s: %s (%d transactions)", t.Category, t.Total.StringFixed(2), t.Count)
	}
	return b.String()
}

var spendingAgents = map[string]string{
	nodeSpendingAnalysis: ai.AgentSpendingAnalysis,
	nodeBudgetPlanning:   ai.AgentBudgetPlanning,
	nodeOptimization:     ai.AgentOptimization,
	nodeGeneral:          ai.AgentGeneral,
}
