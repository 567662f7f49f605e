package intent

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	analysis "github.com/zhouzirui/finpilot/backend/internal/analysis/intent"
	"github.com/zhouzirui/finpilot/backend/internal/model/chat"
	"github.com/zhouzirui/finpilot/backend/internal/service/ai"
)

// Config controls the classifier.
type Config struct {
	Enabled      bool
	HistoryLimit int
}

// Decision is the classified intent and how it was reached.
type Decision struct {
	Intent     analysis.Label
	Confidence float32
	Reason     string
	Fallback   bool
}

// Service classifies spending intents with the model and falls back to the
// keyword table whenever the model fails or answers with an unknown label.
type Service struct {
	model        ai.Model
	prompts      *ai.PromptManager
	fallback     func(text string) analysis.Label
	enabled      bool
	historyLimit int
}

// NewService creates the classifier. A nil model leaves only the fallback.
func NewService(m ai.Model, prompts *ai.PromptManager, cfg Config) *Service {
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 6
	}
	if prompts == nil {
		prompts = ai.NewPromptManager()
	}
	return &Service{
		model:        m,
		prompts:      prompts,
		fallback:     analysis.Classify,
		enabled:      cfg.Enabled && m != nil,
		historyLimit: historyLimit,
	}
}

// Enabled reports whether model classification is active.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled
}

type classifierPayload struct {
	Intent     string  `json:"intent" jsonschema:"enum=spending_analysis,enum=budget_planning,enum=optimization,enum=transaction_query,enum=general"`
	Confidence float32 `json:"confidence" jsonschema_description:"0 to 1"`
	Reason     string  `json:"reason,omitempty"`
}

// Classify never fails; every error path ends in the keyword fallback.
func (s *Service) Classify(ctx context.Context, history []chat.Message, profileContext string) Decision {
	message := chat.LastUserMessage(history)
	if !s.Enabled() {
		return s.fallbackDecision(message, "classifier disabled")
	}

	var payload classifierPayload
	system := s.prompts.BuildSystemPrompt(ai.AgentIntent, profileContext)
	if err := s.model.InvokeStructured(ctx, system, chat.Tail(history, s.historyLimit), &payload); err != nil {
		reason := "invalid output"
		if errors.Is(err, ai.ErrModelUnavailable) {
			reason = "model unavailable"
		}
		log.Warn().Str("component", "intent").Err(err).Msg("classifier failed, use keyword fallback")
		return s.fallbackDecision(message, reason)
	}

	label, ok := analysis.Parse(payload.Intent)
	if !ok {
		log.Warn().Str("component", "intent").Str("intent", payload.Intent).Msg("classifier returned unknown intent, use keyword fallback")
		return s.fallbackDecision(message, "unknown intent")
	}

	confidence := payload.Confidence
	if confidence <= 0 {
		confidence = 0.6
	}
	if confidence > 1 {
		confidence = 1
	}

	return Decision{
		Intent:     label,
		Confidence: confidence,
		Reason:     strings.TrimSpace(payload.Reason),
	}
}

func (s *Service) fallbackDecision(message, reason string) Decision {
	label := s.fallback(message)
	confidence := float32(0.3)
	if label != analysis.General {
		confidence = 0.55
	}
	return Decision{
		Intent:     label,
		Confidence: confidence,
		Reason:     "fallback: " + reason,
		Fallback:   true,
	}
}
