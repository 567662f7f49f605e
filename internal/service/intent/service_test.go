package intent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"

	analysis "github.com/zhouzirui/finpilot/backend/internal/analysis/intent"
	"github.com/zhouzirui/finpilot/backend/internal/model/chat"
	"github.com/zhouzirui/finpilot/backend/internal/service/ai"
	"github.com/zhouzirui/finpilot/backend/internal/service/intent"
)

type stubModel struct {
	payload string
	err     error
}

func (s *stubModel) Invoke(context.Context, string, []chat.Message) (chat.ReplyContent, error) {
	return chat.TextReply(s.payload), s.err
}

func (s *stubModel) InvokeStructured(_ context.Context, _ string, _ []chat.Message, out any) error {
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(s.payload), out)
}

func history(text string) []chat.Message {
	return []chat.Message{{Role: chat.RoleUser, Content: text}}
}

func TestClassifyUsesModelLabel(t *testing.T) {
	svc := intent.NewService(&stubModel{payload: `{"intent":"budget_planning","confidence":0.8}`}, nil, intent.Config{Enabled: true})

	decision := svc.Classify(context.Background(), history("help me"), "")
	if decision.Intent != analysis.BudgetPlanning || decision.Fallback {
		t.Fatalf("unexpected decision %+v", decision)
	}
}

func TestClassifyFallsBackOnModelFailure(t *testing.T) {
	svc := intent.NewService(&stubModel{err: ai.ErrModelUnavailable}, nil, intent.Config{Enabled: true})

	decision := svc.Classify(context.Background(), history("How can I cut back on dining?"), "")
	if decision.Intent != analysis.Optimization || !decision.Fallback {
		t.Fatalf("unexpected decision %+v", decision)
	}
}

func TestClassifyFallsBackOnUnknownLabel(t *testing.T) {
	svc := intent.NewService(&stubModel{payload: `{"intent":"stocks"}`}, nil, intent.Config{Enabled: true})

	decision := svc.Classify(context.Background(), history("show me my purchases"), "")
	if decision.Intent != analysis.TransactionQuery || !decision.Fallback {
		t.Fatalf("unexpected decision %+v", decision)
	}
}

func TestClassifyDisabledUsesKeywords(t *testing.T) {
	svc := intent.NewService(&stubModel{err: errors.New("must not be called")}, nil, intent.Config{Enabled: false})

	decision := svc.Classify(context.Background(), history("random question"), "")
	if decision.Intent != analysis.General || !decision.Fallback {
		t.Fatalf("unexpected decision %+v", decision)
	}
}
