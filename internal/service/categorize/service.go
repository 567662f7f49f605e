package categorize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/finpilot/backend/internal/model/chat"
	"github.com/zhouzirui/finpilot/backend/internal/model/transaction"
	"github.com/zhouzirui/finpilot/backend/internal/service/ai"
)

// DefaultWorkers caps concurrent categorization calls.
const DefaultWorkers = 8

// Categorizer assigns a category to one transaction.
type Categorizer interface {
	Categorize(ctx context.Context, rec transaction.Record) (transaction.Record, error)
}

// Config controls the categorizer.
type Config struct {
	// UseModel enables model categorization. Without it only the merchant
	// keyword table is used.
	UseModel bool
}

// Service categorizes transactions with the model and falls back to the
// merchant keyword table when the model cannot answer.
type Service struct {
	model    ai.Model
	prompts  *ai.PromptManager
	useModel bool
}

var _ Categorizer = (*Service)(nil)

// NewService creates a categorizer. A nil model leaves only keywords.
func NewService(m ai.Model, prompts *ai.PromptManager, cfg Config) *Service {
	if prompts == nil {
		prompts = ai.NewPromptManager()
	}
	return &Service{
		model:    m,
		prompts:  prompts,
		useModel: cfg.UseModel && m != nil,
	}
}

type categoryPayload struct {
	Category    string   `json:"category" jsonschema_description:"broad lowercase category"`
	Subcategory string   `json:"subcategory,omitempty"`
	Confidence  float64  `json:"confidence" jsonschema_description:"0 to 1"`
	Tags        []string `json:"tags,omitempty"`
}

// Categorize returns rec with category fields set.
func (s *Service) Categorize(ctx context.Context, rec transaction.Record) (transaction.Record, error) {
	if !s.useModel {
		return withKeywordCategory(rec), nil
	}

	var payload categoryPayload
	system := s.prompts.BuildSystemPrompt(ai.AgentCategorizer, "")
	history := []chat.Message{{Role: chat.RoleUser, Content: describe(rec)}}
	err := s.model.InvokeStructured(ctx, system, history, &payload)
	if err == nil && strings.TrimSpace(payload.Category) != "" {
		category := strings.ToLower(strings.TrimSpace(payload.Category))
		confidence := clamp(payload.Confidence)
		rec.Category = &category
		rec.Confidence = &confidence
		if sub := strings.TrimSpace(payload.Subcategory); sub != "" {
			rec.Subcategory = &sub
		}
		rec.Tags = payload.Tags
		return rec, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return rec, ctxErr
	}
	if err != nil && !errors.Is(err, ai.ErrInvalidOutput) && !errors.Is(err, ai.ErrModelUnavailable) {
		return rec, fmt.Errorf("categorize %s: %w", rec.ExternalID, err)
	}
	log.Debug().Str("component", "categorize").Str("merchant", rec.Merchant).Err(err).Msg("model categorization failed, use keywords")
	return withKeywordCategory(rec), nil
}

// CategorizeBatch categorizes records with at most workers concurrent calls.
// Output order matches input order. A record whose categorization fails is
// returned uncategorized.
func CategorizeBatch(ctx context.Context, c Categorizer, records []transaction.Record, workers int) []transaction.Record {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	out := make([]transaction.Record, len(records))
	copy(out, records)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range out {
		g.Go(func() error {
			rec, err := c.Categorize(gctx, out[i])
			if err != nil {
				log.Warn().Str("component", "categorize").Str("external_id", out[i].ExternalID).Err(err).Msg("categorization failed")
				return nil
			}
			out[i] = rec
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func withKeywordCategory(rec transaction.Record) transaction.Record {
	category := classifyMerchant(rec.Merchant + " " + rec.Description)
	confidence := 0.4
	rec.Category = &category
	rec.Confidence = &confidence
	return rec
}

func describe(rec transaction.Record) string {
	return fmt.Sprintf("merchant: %s\ndescription: %s\namount: %s %s\ndate: %s",
		rec.Merchant, rec.Description, rec.Amount.String(), rec.Currency, rec.Date.Format("2006-01-02"))
}

func clamp(v float64) float64 {
	switch {
	case v <= 0:
		return 0.5
	case v > 1:
		return 1
	}
	return v
}
