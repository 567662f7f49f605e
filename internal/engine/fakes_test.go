package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/finpilot/backend/internal/checkpoint"
	"github.com/zhouzirui/finpilot/backend/internal/model/chat"
	"github.com/zhouzirui/finpilot/backend/internal/model/profile"
	"github.com/zhouzirui/finpilot/backend/internal/model/transaction"
	"github.com/zhouzirui/finpilot/backend/internal/service/ai"
)

var errUnavailable = fmt.Errorf("%w: connection refused", ai.ErrModelUnavailable)

// fakeModel answers by recognising the agent from its system prompt.
type fakeModel struct {
	mu         sync.Mutex
	route      string
	routeErr   error
	reply      string
	replyErr   error
	structured map[string]string
	calls      map[string]int
}

func newFakeModel() *fakeModel {
	return &fakeModel{reply: "ok", structured: map[string]string{}, calls: map[string]int{}}
}

func agentOf(system string) string {
	switch {
	case strings.HasPrefix(system, "You route messages"):
		return "route"
	case strings.HasPrefix(system, "You are onboarding"):
		return "extract"
	case strings.HasPrefix(system, "Translate the user's question"):
		return "filter"
	case strings.HasPrefix(system, "Classify the user's spending"):
		return "intent"
	}
	return "reply"
}

func (m *fakeModel) Invoke(_ context.Context, system string, _ []chat.Message) (chat.ReplyContent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent := agentOf(system)
	m.calls[agent]++
	if agent == "route" {
		if m.routeErr != nil {
			return chat.ReplyContent{}, m.routeErr
		}
		return chat.ParseReplyContent(m.route), nil
	}
	if m.replyErr != nil {
		return chat.ReplyContent{}, m.replyErr
	}
	return chat.TextReply(m.reply), nil
}

func (m *fakeModel) InvokeStructured(_ context.Context, system string, _ []chat.Message, out any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent := agentOf(system)
	m.calls[agent]++
	raw, ok := m.structured[agent]
	if !ok {
		return fmt.Errorf("%w: no scripted output for %s", ai.ErrInvalidOutput, agent)
	}
	if raw == "unavailable" {
		return errUnavailable
	}
	return ai.DecodeJSONObject(raw, out)
}

func (m *fakeModel) callCount(agent string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[agent]
}

// memoryTxStore implements transaction.Store with a hash-keyed map.
type memoryTxStore struct {
	mu   sync.Mutex
	rows map[string]transaction.Record
}

func newMemoryTxStore() *memoryTxStore {
	return &memoryTxStore{rows: map[string]transaction.Record{}}
}

func (s *memoryTxStore) ExistsAny(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryTxStore) Query(_ context.Context, f transaction.Filter) ([]transaction.Record, error) {
	f = f.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []transaction.Record
	for _, r := range s.rows {
		if r.UserID != f.UserID {
			continue
		}
		if f.Merchant != "" && !strings.Contains(strings.ToLower(r.Merchant), strings.ToLower(f.Merchant)) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memoryTxStore) BatchUpsert(_ context.Context, records []transaction.Record) (transaction.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res transaction.UpsertResult
	for _, r := range records {
		if _, ok := s.rows[r.Hash]; ok {
			res.Duplicates++
			continue
		}
		s.rows[r.Hash] = r
		res.Stored++
	}
	return res, nil
}

func (s *memoryTxStore) CategoryTotals(context.Context, string, time.Time) ([]transaction.CategoryTotal, error) {
	return nil, nil
}

// scriptedSource fails until it has been called failures times.
type scriptedSource struct {
	mu       sync.Mutex
	calls    int
	failures int
	records  []transaction.Record
}

func (s *scriptedSource) Fetch(_ context.Context, userID string) ([]transaction.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures < 0 || s.calls <= s.failures {
		return nil, fmt.Errorf("%w: bank timeout", transaction.ErrSourceUnavailable)
	}
	out := make([]transaction.Record, len(s.records))
	for i, r := range s.records {
		r.UserID = userID
		out[i] = r.WithHash()
	}
	return out, nil
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type failingProfiles struct {
	profile.Store
}

func (failingProfiles) Get(context.Context, string) (*profile.Profile, error) {
	return nil, errors.New("database is locked")
}

// completionWriteFails rejects every upsert that carries the completion
// flag and passes everything else through.
type completionWriteFails struct {
	*profile.MemoryStore
}

func (s completionWriteFails) Upsert(ctx context.Context, userID string, fields map[string]any) error {
	if _, ok := fields[profile.CompletionKey]; ok {
		return errors.New("disk I/O error")
	}
	return s.MemoryStore.Upsert(ctx, userID, fields)
}

// stepClock advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func counterIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("msg-%03d", n)
	}
}

type harness struct {
	svc         *Service
	model       *fakeModel
	profiles    *profile.MemoryStore
	txs         *memoryTxStore
	source      *scriptedSource
	checkpoints *checkpoint.MemoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, Config{}, nil)
}

// newHarnessWith builds a harness with cfg overrides. wrap, when set,
// decorates the memory profile store handed to the engine.
func newHarnessWith(t *testing.T, cfg Config, wrap func(*profile.MemoryStore) profile.Store) *harness {
	t.Helper()
	clock := stepClock()
	h := &harness{
		model:       newFakeModel(),
		profiles:    profile.NewMemoryStore().WithClock(clock),
		txs:         newMemoryTxStore(),
		source:      &scriptedSource{},
		checkpoints: checkpoint.NewMemoryStore(),
	}
	var profiles profile.Store = h.profiles
	if wrap != nil {
		profiles = wrap(h.profiles)
	}
	cfg.Clock = clock
	cfg.NewID = counterIDs()
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = time.Second
	}
	svc, err := NewService(context.Background(), Dependencies{
		Model:        h.model,
		Profiles:     profiles,
		Transactions: h.txs,
		Source:       h.source,
		Checkpoints:  h.checkpoints,
	}, cfg)
	require.NoError(t, err)
	h.svc = svc
	return h
}

func allFields() map[string]any {
	return map[string]any{
		profile.FieldAgeRange:                   "25-34",
		profile.FieldLifeStage:                  "early career",
		profile.FieldOccupationType:             "engineer",
		profile.FieldLocationContext:            "Austin, urban",
		profile.FieldFamilyStructure:            "couple",
		profile.FieldMaritalStatus:              "married",
		profile.FieldTotalDependentsCount:       0,
		profile.FieldChildrenCount:              0,
		profile.FieldCaregivingResponsibilities: "none",
	}
}

// seedCompleteProfile stores all fields, one account and the completion flag.
func (h *harness) seedCompleteProfile(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	fields := allFields()
	fields[profile.CompletionKey] = true
	require.NoError(t, h.profiles.Upsert(ctx, userID, fields))
	_, err := h.profiles.LinkAccount(ctx, profile.Account{UserID: userID, Provider: "plaid", Name: "Checking", Mask: "1234"})
	require.NoError(t, err)
}

func coffee(externalID string, day int) transaction.Record {
	return transaction.Record{
		Provider:   "plaid",
		ExternalID: externalID,
		Date:       time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC),
		Amount:     decimal.RequireFromString("-4.50"),
		Currency:   "USD",
		Merchant:   "Blue Bottle Coffee",
	}
}
