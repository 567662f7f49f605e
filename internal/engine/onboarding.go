package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/finpilot/backend/internal/model/chat"
	"github.com/zhouzirui/finpilot/backend/internal/model/profile"
	"github.com/zhouzirui/finpilot/backend/internal/service/ai"
	"github.com/zhouzirui/finpilot/backend/internal/service/memory"
)

const clarifyProfile = "Sorry, I didn't quite catch that. Could you tell me a bit about yourself, for example your age range and what you do for work?"

type extractionPayload struct {
	AgeRange                   *string `json:"age_range,omitempty" jsonschema_description:"e.g. 25-34"`
	LifeStage                  *string `json:"life_stage,omitempty" jsonschema_description:"e.g. student, early career, retired"`
	OccupationType             *string `json:"occupation_type,omitempty"`
	LocationContext            *string `json:"location_context,omitempty" jsonschema_description:"city, region or urban/rural"`
	FamilyStructure            *string `json:"family_structure,omitempty"`
	MaritalStatus              *string `json:"marital_status,omitempty"`
	TotalDependentsCount       *int    `json:"total_dependents_count,omitempty"`
	ChildrenCount              *int    `json:"children_count,omitempty"`
	CaregivingResponsibilities *string `json:"caregiving_responsibilities,omitempty"`
	ProfileComplete            *bool   `json:"profile_complete,omitempty" jsonschema_description:"whether you believe every field is now known"`
	Reply                      string  `json:"reply" jsonschema_description:"friendly reply to the user"`
}

func (p extractionPayload) fields() profile.Fields {
	values := map[string]any{}
	put := func(name string, v any) {
		switch x := v.(type) {
		case *string:
			if x != nil && strings.TrimSpace(*x) != "" {
				values[name] = *x
			}
		case *int:
			if x != nil {
				values[name] = *x
			}
		}
	}
	put(profile.FieldAgeRange, p.AgeRange)
	put(profile.FieldLifeStage, p.LifeStage)
	put(profile.FieldOccupationType, p.OccupationType)
	put(profile.FieldLocationContext, p.LocationContext)
	put(profile.FieldFamilyStructure, p.FamilyStructure)
	put(profile.FieldMaritalStatus, p.MaritalStatus)
	put(profile.FieldTotalDependentsCount, p.TotalDependentsCount)
	put(profile.FieldChildrenCount, p.ChildrenCount)
	put(profile.FieldCaregivingResponsibilities, p.CaregivingResponsibilities)
	return profile.FieldsFromMap(values)
}

func (w *workflow) onboardingEntry(_ context.Context, st *TurnState) (*TurnState, error) {
	st.Onboarding = OnboardingState{CurrentStep: StepContinue}
	return st, nil
}

func (w *workflow) branchOnboardingEntry(_ context.Context, st *TurnState) (string, error) {
	if st.Input.IsAccountLinked() {
		return nodeAckAccountLinked, nil
	}
	return nodeReadProfile, nil
}

func (w *workflow) readProfile(ctx context.Context, st *TurnState) (*TurnState, error) {
	p, err := w.deps.Profiles.Get(ctx, st.Session.UserID)
	if err != nil {
		log.Warn().Str("component", "onboarding").Str("user_id", st.Session.UserID).Err(err).Msg("profile read failed, start from empty")
		return st, nil
	}
	if p == nil {
		st.Onboarding.CurrentStep = StepWelcome
		return st, nil
	}
	st.Onboarding.Profile = p
	st.Onboarding.CollectedData = p.Fields
	return st, nil
}

func (w *workflow) extract(ctx context.Context, st *TurnState) (*TurnState, error) {
	collected := st.Onboarding.CollectedData
	sections := []string{"Onboarding step: " + st.Onboarding.CurrentStep}
	if missing := collected.Missing(); len(missing) > 0 {
		sections = append(sections, "Still missing: "+strings.Join(missing, ", "))
	}
	if known := (&profile.Profile{Fields: collected}).Summary(); known != "" {
		sections = append(sections, "Already known: "+known)
	}
	system := w.deps.Prompts.BuildSystemPrompt(ai.AgentOnboarding, "", sections...)

	var payload extractionPayload
	err := w.deps.Model.InvokeStructured(ctx, system, withoutRouteLabels(w.history(st)), &payload)
	switch {
	case errors.Is(err, ai.ErrModelUnavailable):
		return nil, fmt.Errorf("extract profile: %w", err)
	case err != nil || strings.TrimSpace(payload.Reply) == "":
		log.Warn().Str("component", "onboarding").Err(err).Msg("extraction unusable, ask for clarification")
		st.say(ai.AgentOnboarding, clarifyProfile)
		return st, nil
	}

	changed := collected.Merge(payload.fields())
	st.Onboarding.CollectedData = collected
	st.Onboarding.NeedsPersist = len(changed) > 0
	st.Onboarding.ModelClaim = payload.ProfileComplete
	if len(changed) > 0 {
		log.Debug().Str("component", "onboarding").Strs("fields", changed).Msg("profile fields extracted")
	}
	st.say(ai.AgentOnboarding, payload.Reply)
	return st, nil
}

func (w *workflow) remember(ctx context.Context, st *TurnState) (*TurnState, error) {
	if w.deps.Memory == nil {
		return st, nil
	}
	text := memory.FormatExchange(chat.LastUserMessage(st.Session.Messages), st.ReplyText)
	metadata := map[string]any{
		"agent":      ai.AgentOnboarding,
		"session_id": st.Session.ID,
		"step":       st.Onboarding.CurrentStep,
	}
	if err := w.deps.Memory.AddEpisode(ctx, st.Session.UserID, text, metadata); err != nil {
		log.Warn().Str("component", "onboarding").Str("user_id", st.Session.UserID).Err(err).Msg("episode write failed")
	}
	return st, nil
}

func (w *workflow) persist(ctx context.Context, st *TurnState) (*TurnState, error) {
	ob := st.Onboarding
	if ob.CollectedData.IsEmpty() || !ob.NeedsPersist {
		return st, nil
	}
	if err := w.deps.Profiles.Upsert(ctx, st.Session.UserID, ob.CollectedData.Values()); err != nil {
		log.Warn().Str("component", "onboarding").Str("user_id", st.Session.UserID).Err(err).Msg("profile upsert failed")
	}
	return st, nil
}

// evaluateCompletion recomputes completion from the store. When the profile
// cannot be read or the new value cannot be written, completion is left
// unchanged and nothing is propagated.
func (w *workflow) evaluateCompletion(ctx context.Context, st *TurnState) (*TurnState, error) {
	userID := st.Session.UserID
	st.Onboarding.Complete = st.Session.ProfileComplete
	st.Onboarding.Profile = nil

	p, err := w.deps.Profiles.Get(ctx, userID)
	if err != nil {
		log.Warn().Str("component", "onboarding").Str("user_id", userID).Err(err).Msg("completion check skipped, profile read failed")
		return st, nil
	}
	count, err := w.deps.Profiles.AccountCount(ctx, userID)
	if err != nil {
		log.Warn().Str("component", "onboarding").Str("user_id", userID).Err(err).Msg("completion check skipped, account count failed")
		return st, nil
	}

	complete := profile.IsComplete(p, count)
	event := log.Debug().Str("component", "onboarding").Str("user_id", userID).Bool("complete", complete).Int("accounts", count)
	if claim := st.Onboarding.ModelClaim; claim != nil {
		event = event.Bool("model_claim", *claim)
	}
	event.Msg("completion evaluated")

	persisted := p != nil && p.Complete
	if complete != persisted {
		if err := w.deps.Profiles.Upsert(ctx, userID, map[string]any{profile.CompletionKey: complete}); err != nil {
			log.Warn().Str("component", "onboarding").Str("user_id", userID).Err(err).Msg("completion upsert failed, keeping previous value")
			return st, nil
		}
	}

	if p != nil {
		p.Complete = complete
	}
	st.Onboarding.Profile = p
	st.Onboarding.Complete = complete
	st.Session.ProfileComplete = complete
	return st, nil
}

func (w *workflow) branchOnCompletion(_ context.Context, st *TurnState) (string, error) {
	if st.Onboarding.Complete && st.Onboarding.Profile != nil {
		return nodePropagate, nil
	}
	return compose.END, nil
}

func (w *workflow) propagate(ctx context.Context, st *TurnState) (*TurnState, error) {
	accounts, err := w.deps.Profiles.Accounts(ctx, st.Session.UserID)
	if err != nil {
		log.Warn().Str("component", "onboarding").Err(err).Msg("account list failed, keep cached ids")
		accounts = nil
	}
	w.profileCtx.Propagate(st.Session, st.Onboarding.Profile, accounts)
	return st, nil
}

const completionPending = "Thanks for linking %s! I'm still finishing your setup, so give me a moment before we dig into your spending."

// ackAccountLinked answers the linked-account notification without a model
// call.
func (w *workflow) ackAccountLinked(ctx context.Context, st *TurnState) (*TurnState, error) {
	userID := st.Session.UserID

	accounts, err := w.deps.Profiles.Accounts(ctx, userID)
	if err != nil {
		log.Warn().Str("component", "onboarding").Str("user_id", userID).Err(err).Msg("account list failed")
		st.say(ai.AgentOnboarding, "Thanks for linking your account! I'll pick it up shortly.")
		return st, nil
	}
	count, err := w.deps.Profiles.AccountCount(ctx, userID)
	if err != nil {
		count = len(accounts)
	}
	p, err := w.deps.Profiles.Get(ctx, userID)
	if err != nil {
		log.Warn().Str("component", "onboarding").Str("user_id", userID).Err(err).Msg("profile read failed")
		p = nil
	}

	labels := make([]string, 0, len(accounts))
	for _, a := range accounts {
		labels = append(labels, a.Label())
	}
	linked := "your account"
	if len(labels) > 0 {
		linked = strings.Join(labels, ", ")
	}

	if !profile.IsComplete(p, count) {
		var missing []string
		if p == nil {
			missing = profile.FieldNames
		} else {
			missing = p.Fields.Missing()
		}
		names := make([]string, 0, len(missing))
		for _, name := range missing {
			names = append(names, profile.FieldLabel(name))
		}
		text := fmt.Sprintf("Thanks for linking %s! To finish setting up, I still need a few details: %s.", linked, strings.Join(names, ", "))
		if count == 0 {
			text = "I couldn't find a linked account yet. Once the connection finishes I'll confirm it here."
		}
		st.say(ai.AgentOnboarding, text)
		return st, nil
	}

	if !p.Complete {
		if err := w.deps.Profiles.Upsert(ctx, userID, map[string]any{profile.CompletionKey: true}); err != nil {
			log.Warn().Str("component", "onboarding").Str("user_id", userID).Err(err).Msg("completion upsert failed, keeping previous value")
			st.say(ai.AgentOnboarding, fmt.Sprintf(completionPending, linked))
			return st, nil
		}
		p.Complete = true
	}
	st.Onboarding.Profile = p
	st.Onboarding.Complete = true
	w.profileCtx.Propagate(st.Session, p, accounts)

	st.say(ai.AgentOnboarding, fmt.Sprintf("All set! I can now see %s and your profile is complete. Ask me about your spending or budget any time.", linked))
	return st, nil
}

// withoutRouteLabels drops assistant turns that only carry a route label.
func withoutRouteLabels(messages []chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != chat.RoleUser {
			if _, ok := ParseRoute(msg.Content); ok {
				continue
			}
		}
		out = append(out, msg)
	}
	return out
}
