package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/finpilot/backend/internal/model/chat"
	"github.com/zhouzirui/finpilot/backend/internal/model/profile"
	"github.com/zhouzirui/finpilot/backend/internal/service/ai"
)

type recordingMemory struct {
	texts []string
	err   error
}

func (m *recordingMemory) AddEpisode(_ context.Context, _ string, text string, _ map[string]any) error {
	m.texts = append(m.texts, text)
	return m.err
}

func seedAllButChildren(t *testing.T, h *harness, userID string) {
	t.Helper()
	fields := allFields()
	delete(fields, profile.FieldChildrenCount)
	require.NoError(t, h.profiles.Upsert(context.Background(), userID, fields))
}

func TestOnboardingCompletesWhenLastFieldArrives(t *testing.T) {
	h := newHarness(t)
	seedAllButChildren(t, h, "u1")
	_, err := h.profiles.LinkAccount(context.Background(), profile.Account{UserID: "u1", Provider: "plaid", Name: "Checking"})
	require.NoError(t, err)

	h.model.route = "ONBOARDING"
	h.model.structured["extract"] = `{"children_count":2,"profile_complete":true,"reply":"Thanks, that's everything!"}`

	reply, err := h.svc.HandleTurn(context.Background(), turn("u1", "s1", "We have two kids"))
	require.NoError(t, err)
	assert.Equal(t, "Thanks, that's everything!", reply.Text)

	p, err := h.profiles.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, p.Complete)
	assert.Equal(t, 2, *p.Fields.ChildrenCount)

	session, err := h.checkpoints.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, session.ProfileComplete)
	assert.Equal(t, p.Summary(), session.ProfileContext)
	assert.Len(t, session.AccountIDs, 1)
}

func TestOnboardingKeepsCompletionWhenFlagWriteFails(t *testing.T) {
	h := newHarnessWith(t, Config{}, func(m *profile.MemoryStore) profile.Store {
		return completionWriteFails{MemoryStore: m}
	})
	seedAllButChildren(t, h, "u1")
	_, err := h.profiles.LinkAccount(context.Background(), profile.Account{UserID: "u1", Provider: "plaid", Name: "Checking"})
	require.NoError(t, err)

	h.model.route = "ONBOARDING"
	h.model.structured["extract"] = `{"children_count":2,"reply":"Thanks, that's everything!"}`

	_, err = h.svc.HandleTurn(context.Background(), turn("u1", "s1", "We have two kids"))
	require.NoError(t, err)

	p, err := h.profiles.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, *p.Fields.ChildrenCount)
	assert.False(t, p.Complete)

	session, err := h.checkpoints.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, session.ProfileComplete)
	assert.Equal(t, ContextIncomplete, session.ProfileContext)
}

func TestOnboardingIgnoresModelCompletionClaim(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.profiles.Upsert(context.Background(), "u1", allFields()))

	h.model.route = "ONBOARDING"
	h.model.structured["extract"] = `{"marital_status":"married","profile_complete":true,"reply":"You're all set!"}`

	_, err := h.svc.HandleTurn(context.Background(), turn("u1", "s1", "Still married"))
	require.NoError(t, err)

	p, err := h.profiles.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, p.Complete, "no linked account means incomplete")

	session, err := h.checkpoints.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, session.ProfileComplete)
}

func TestOnboardingLastWriteWins(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.profiles.Upsert(context.Background(), "u1", map[string]any{profile.FieldMaritalStatus: "single"}))

	h.model.route = "ONBOARDING"
	h.model.structured["extract"] = `{"marital_status":"married","reply":"Congratulations!"}`

	_, err := h.svc.HandleTurn(context.Background(), turn("u1", "s1", "I just got married"))
	require.NoError(t, err)

	p, err := h.profiles.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "married", *p.Fields.MaritalStatus)
}

func TestOnboardingClarifiesOnUnparseableExtraction(t *testing.T) {
	h := newHarness(t)
	h.model.route = "ONBOARDING"
	h.model.structured["extract"] = `Sure! You are 30.`

	reply, err := h.svc.HandleTurn(context.Background(), turn("u1", "s1", "I'm 30"))
	require.NoError(t, err)
	assert.Equal(t, clarifyProfile, reply.Text)

	p, err := h.profiles.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestOnboardingExtractionUnavailableIsFatal(t *testing.T) {
	h := newHarness(t)
	h.model.route = "ONBOARDING"
	h.model.structured["extract"] = "unavailable"

	reply, err := h.svc.HandleTurn(context.Background(), turn("u1", "s1", "I'm 30"))
	require.NoError(t, err)
	assert.Equal(t, ErrorModelUnavailable, reply.Error)

	session, err := h.checkpoints.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestAccountLinkedTurnConfirmsCompletion(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.profiles.Upsert(context.Background(), "u1", allFields()))
	_, err := h.profiles.LinkAccount(context.Background(), profile.Account{UserID: "u1", Provider: "plaid", Name: "Savings", Mask: "9876"})
	require.NoError(t, err)

	reply, err := h.svc.HandleTurn(context.Background(), TurnInput{UserID: "u1", SessionID: "s1", Kind: KindAccountLinked})
	require.NoError(t, err)

	assert.Equal(t, RouteOnboarding, reply.Route)
	assert.Contains(t, reply.Text, "Savings ••9876")
	assert.Contains(t, reply.Text, "profile is complete")
	assert.Zero(t, h.model.callCount("route"))
	assert.Zero(t, h.model.callCount("extract"))

	p, err := h.profiles.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, p.Complete)

	session, err := h.checkpoints.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, chat.RoleSystem, session.Messages[0].Role)
	assert.True(t, session.ProfileComplete)
}

func TestAccountLinkedTurnKeepsCompletionWhenFlagWriteFails(t *testing.T) {
	h := newHarnessWith(t, Config{}, func(m *profile.MemoryStore) profile.Store {
		return completionWriteFails{MemoryStore: m}
	})
	require.NoError(t, h.profiles.Upsert(context.Background(), "u1", allFields()))
	_, err := h.profiles.LinkAccount(context.Background(), profile.Account{UserID: "u1", Provider: "plaid", Name: "Savings", Mask: "9876"})
	require.NoError(t, err)

	reply, err := h.svc.HandleTurn(context.Background(), TurnInput{UserID: "u1", SessionID: "s1", Kind: KindAccountLinked})
	require.NoError(t, err)
	assert.NotContains(t, reply.Text, "profile is complete")
	assert.Contains(t, reply.Text, "Savings ••9876")

	p, err := h.profiles.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.False(t, p.Complete)

	session, err := h.checkpoints.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, session.ProfileComplete)
	assert.Equal(t, ContextIncomplete, session.ProfileContext)
}

func TestAccountLinkedTurnListsMissingFields(t *testing.T) {
	h := newHarness(t)
	seedAllButChildren(t, h, "u1")
	_, err := h.profiles.LinkAccount(context.Background(), profile.Account{UserID: "u1", Provider: "plaid", Name: "Checking"})
	require.NoError(t, err)

	reply, err := h.svc.HandleTurn(context.Background(), TurnInput{UserID: "u1", SessionID: "s1", Kind: KindAccountLinked})
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Thanks for linking Checking")
	assert.Contains(t, reply.Text, profile.FieldLabel(profile.FieldChildrenCount))
}

func TestRememberSwallowsMemoryFailures(t *testing.T) {
	mem := &recordingMemory{err: assert.AnError}
	w := &workflow{deps: Dependencies{Memory: mem}}
	st := newTurnState(turn("u1", "s1", "I'm 30"), chat.NewSession("s1", "u1", h0()), h0())
	st.Session.Append(chat.Message{Role: chat.RoleUser, Content: "I'm 30"})
	st.say(ai.AgentOnboarding, "Thanks!")

	out, err := w.remember(context.Background(), st)
	require.NoError(t, err)
	assert.Same(t, st, out)
	assert.Equal(t, []string{"user: I'm 30\nassistant: Thanks!"}, mem.texts)
}

func TestWithoutRouteLabels(t *testing.T) {
	in := []chat.Message{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "ONBOARDING"},
		{Role: chat.RoleAssistant, Content: "Welcome!"},
		{Role: chat.RoleUser, Content: "spending"},
	}
	out := withoutRouteLabels(in)
	require.Len(t, out, 3)
	assert.Equal(t, "Welcome!", out[1].Content)
}
