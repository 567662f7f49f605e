package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/finpilot/backend/internal/checkpoint"
	"github.com/zhouzirui/finpilot/backend/internal/model/chat"
	"github.com/zhouzirui/finpilot/backend/internal/model/profile"
	"github.com/zhouzirui/finpilot/backend/internal/model/transaction"
	"github.com/zhouzirui/finpilot/backend/internal/service/ai"
	"github.com/zhouzirui/finpilot/backend/internal/service/categorize"
	"github.com/zhouzirui/finpilot/backend/internal/service/intent"
)

// Memory records long-term episodes.
type Memory interface {
	AddEpisode(ctx context.Context, userID, text string, metadata map[string]any) error
}

// IntentClassifier picks the spending intent of a turn. It never fails.
type IntentClassifier interface {
	Classify(ctx context.Context, history []chat.Message, profileContext string) intent.Decision
}

// Dependencies are the collaborators wired into the graph.
type Dependencies struct {
	Model        ai.Model
	Prompts      *ai.PromptManager
	Profiles     profile.Store
	Transactions transaction.Store
	Source       transaction.Source
	Categorizer  categorize.Categorizer
	Intent       IntentClassifier
	Memory       Memory
	Checkpoints  checkpoint.Store
}

// MaxFetchAttempts bounds the fetch loop of one turn.
const MaxFetchAttempts = 3

// Config tunes the engine.
type Config struct {
	HistoryLimit      int
	FetchTimeout      time.Duration
	FetchMaxAttempts  int
	CategorizeWorkers int
	Clock             func() time.Time
	NewID             func() string
}

func (c Config) withDefaults() Config {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 12
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 30 * time.Second
	}
	if c.FetchMaxAttempts <= 0 || c.FetchMaxAttempts > MaxFetchAttempts {
		c.FetchMaxAttempts = MaxFetchAttempts
	}
	if c.CategorizeWorkers <= 0 {
		c.CategorizeWorkers = categorize.DefaultWorkers
	}
	if c.Clock == nil {
		c.Clock = func() time.Time { return time.Now().UTC() }
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	return c
}

func (d Dependencies) validate() error {
	switch {
	case d.Model == nil:
		return fmt.Errorf("engine: model is required")
	case d.Profiles == nil:
		return fmt.Errorf("engine: profile store is required")
	case d.Transactions == nil:
		return fmt.Errorf("engine: transaction store is required")
	case d.Source == nil:
		return fmt.Errorf("engine: transaction source is required")
	case d.Checkpoints == nil:
		return fmt.Errorf("engine: checkpoint store is required")
	}
	return nil
}

// workflow holds the node implementations shared by all graphs.
type workflow struct {
	deps       Dependencies
	cfg        Config
	profileCtx *ProfileContext
}

func newWorkflow(deps Dependencies, cfg Config) *workflow {
	if deps.Prompts == nil {
		deps.Prompts = ai.NewPromptManager()
	}
	if deps.Intent == nil {
		deps.Intent = intent.NewService(deps.Model, deps.Prompts, intent.Config{Enabled: true, HistoryLimit: cfg.HistoryLimit})
	}
	return &workflow{
		deps:       deps,
		cfg:        cfg,
		profileCtx: NewProfileContext(deps.Profiles, cfg.Clock),
	}
}

func (w *workflow) history(st *TurnState) []chat.Message {
	return chat.Tail(st.Session.Messages, w.cfg.HistoryLimit)
}
