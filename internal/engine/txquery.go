package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/zhouzirui/finpilot/backend/internal/model/transaction"
	"github.com/zhouzirui/finpilot/backend/internal/service/ai"
)

const (
	clarifyQuery   = "I couldn't work out which transactions you're looking for. Could you name a merchant, a category or a date range?"
	queryNoMatches = "I couldn't find any transactions matching that."
	queryStoreDown = "I couldn't look up your transactions right now. Please try again in a moment."
)

type filterPayload struct {
	Understood bool     `json:"understood" jsonschema_description:"false when the message is not a transaction lookup"`
	Category   *string  `json:"category,omitempty"`
	Merchant   *string  `json:"merchant,omitempty"`
	DateFrom   *string  `json:"date_from,omitempty" jsonschema_description:"YYYY-MM-DD"`
	DateTo     *string  `json:"date_to,omitempty" jsonschema_description:"YYYY-MM-DD"`
	MinAmount  *float64 `json:"min_amount,omitempty"`
	MaxAmount  *float64 `json:"max_amount,omitempty"`
	Sort       *string  `json:"sort,omitempty" jsonschema:"enum=date_desc,enum=date_asc,enum=amount_desc,enum=amount_asc"`
	Limit      *int     `json:"limit,omitempty"`
}

func (p filterPayload) toFilter(userID string) (transaction.Filter, error) {
	f := transaction.Filter{UserID: userID}
	if p.Category != nil {
		f.Category = strings.TrimSpace(*p.Category)
	}
	if p.Merchant != nil {
		f.Merchant = strings.TrimSpace(*p.Merchant)
	}
	var err error
	if f.From, err = parseDay(p.DateFrom); err != nil {
		return f, err
	}
	if f.To, err = parseDay(p.DateTo); err != nil {
		return f, err
	}
	if f.To != nil {
		end := f.To.Add(24*time.Hour - time.Nanosecond)
		f.To = &end
	}
	if p.MinAmount != nil {
		d := decimal.NewFromFloat(*p.MinAmount).Abs()
		f.MinAmount = &d
	}
	if p.MaxAmount != nil {
		d := decimal.NewFromFloat(*p.MaxAmount).Abs()
		f.MaxAmount = &d
	}
	if p.Sort != nil {
		f.Sort = *p.Sort
	}
	if p.Limit != nil {
		f.Limit = *p.Limit
	}
	return f.Normalize(), nil
}

func parseDay(value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(*value))
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", *value, err)
	}
	return &t, nil
}

// transactionQuery answers from the local store. An empty store leaves
// HasResult false so the loop fetches.
func (w *workflow) transactionQuery(ctx context.Context, st *TurnState) (*TurnState, error) {
	if st.Spending.HasResult {
		return st, nil
	}
	userID := st.Spending.UserID

	exists, err := w.deps.Transactions.ExistsAny(ctx, userID)
	if err != nil {
		log.Warn().Str("component", "txquery").Str("user_id", userID).Err(err).Msg("transaction store unavailable")
		st.say(ai.AgentTransactionQuery, queryStoreDown)
		st.Spending.HasResult = true
		return st, nil
	}
	if !exists {
		st.Spending.HasResult = false
		return st, nil
	}

	var payload filterPayload
	system := w.deps.Prompts.BuildSystemPrompt(ai.AgentTransactionQuery, "", "Today is "+st.Now.Format("2006-01-02")+".")
	err = w.deps.Model.InvokeStructured(ctx, system, w.history(st), &payload)
	if errors.Is(err, ai.ErrModelUnavailable) {
		return nil, fmt.Errorf("parse transaction query: %w", err)
	}

	var filter transaction.Filter
	if err == nil && payload.Understood {
		filter, err = payload.toFilter(userID)
	}
	if err != nil || !payload.Understood {
		log.Debug().Str("component", "txquery").Err(err).Msg("query not understood, ask for clarification")
		st.say(ai.AgentTransactionQuery, clarifyQuery)
		st.Spending.HasResult = true
		return st, nil
	}

	rows, err := w.deps.Transactions.Query(ctx, filter)
	if err != nil {
		log.Warn().Str("component", "txquery").Str("user_id", userID).Err(err).Msg("transaction query failed")
		st.say(ai.AgentTransactionQuery, queryStoreDown)
		st.Spending.HasResult = true
		return st, nil
	}

	st.say(ai.AgentTransactionQuery, formatTransactions(rows))
	st.Spending.HasResult = true
	return st, nil
}

func formatTransactions(rows []transaction.Record) string {
	if len(rows) == 0 {
		return queryNoMatches
	}

	var b strings.Builder
	noun := "transactions"
	if len(rows) == 1 {
		noun = "transaction"
	}
	fmt.Fprintf(&b, "I found %d %s:", len(rows), noun)
	for _, r := range rows {
		fmt.Fprintf(&b, "\n- %s  %s  %s", r.Date.Format("2006-01-02"), r.Merchant, r.Amount.StringFixed(2))
		if r.Currency != "" {
			b.WriteString(" " + r.Currency)
		}
		if r.IsCategorized() {
			b.WriteString(" (" + *r.Category + ")")
		}
	}
	return b.String()
}
