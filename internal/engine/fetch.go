package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/finpilot/backend/internal/metrics"
	"github.com/zhouzirui/finpilot/backend/internal/service/ai"
	"github.com/zhouzirui/finpilot/backend/internal/service/categorize"
)

const (
	fetchRetrying   = "I couldn't reach your bank just now. Retrying..."
	fetchStruggling = "Still having trouble connecting to your bank. Trying again..."
	fetchGaveUp     = "I wasn't able to load your transactions after several attempts. Please reconnect your bank account and try again later."
	fetchEmpty      = "Your linked accounts don't have any transactions yet. Check back once some activity shows up."
)

func fetchFailureMessage(attempt, limit int) string {
	switch {
	case attempt >= limit:
		return fetchGaveUp
	case attempt == 1:
		return fetchRetrying
	}
	return fetchStruggling
}

// fetchAndProcess pulls transactions once, categorizes them and stores the
// batch. The attempt counter grows on every call.
func (w *workflow) fetchAndProcess(ctx context.Context, st *TurnState) (*TurnState, error) {
	st.Spending.FetchAttempts++
	attempt := st.Spending.FetchAttempts
	userID := st.Spending.UserID

	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.FetchTimeout)
	records, err := w.deps.Source.Fetch(fetchCtx, userID)
	cancel()
	metrics.RecordFetch(ctx, err == nil)
	if err != nil {
		log.Warn().Str("component", "fetch").Str("user_id", userID).Int("attempt", attempt).Err(err).Msg("transaction fetch failed")
		st.say(ai.AgentTransactionQuery, fetchFailureMessage(attempt, w.cfg.FetchMaxAttempts))
		return st, nil
	}

	if len(records) == 0 {
		st.say(ai.AgentTransactionQuery, fetchEmpty)
		st.Spending.HasResult = true
		return st, nil
	}

	if w.deps.Categorizer != nil {
		records = categorize.CategorizeBatch(ctx, w.deps.Categorizer, records, w.cfg.CategorizeWorkers)
	}
	for i := range records {
		if records[i].UserID == "" {
			records[i].UserID = userID
		}
		records[i] = records[i].WithHash()
	}

	result, err := w.deps.Transactions.BatchUpsert(ctx, records)
	metrics.RecordUpsert(ctx, result.Stored, result.Duplicates, result.Errors)
	if err == nil && result.Stored+result.Duplicates == 0 {
		err = fmt.Errorf("all %d rows failed to store", result.Errors)
	}
	if err != nil {
		log.Warn().Str("component", "fetch").Str("user_id", userID).Int("attempt", attempt).Err(err).Msg("transaction batch upsert failed")
		st.say(ai.AgentTransactionQuery, fetchFailureMessage(attempt, w.cfg.FetchMaxAttempts))
		return st, nil
	}

	log.Info().
		Str("component", "fetch").
		Str("user_id", userID).
		Int("attempt", attempt).
		Int("stored", result.Stored).
		Int("duplicates", result.Duplicates).
		Int("errors", result.Errors).
		Msg("transactions synced")
	st.say(ai.AgentTransactionQuery, fmt.Sprintf("Synced %d new transactions.", result.Stored))
	return st, nil
}
