package profile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUserRequired is returned when a store call has no user id.
var ErrUserRequired = errors.New("user id is required")

// Store persists onboarding profiles and linked accounts.
type Store interface {
	// Get returns nil, nil when the user has no profile yet.
	Get(ctx context.Context, userID string) (*Profile, error)
	AccountCount(ctx context.Context, userID string) (int, error)
	Accounts(ctx context.Context, userID string) ([]Account, error)
	// Upsert writes the known demographic fields and CompletionKey; other
	// keys are dropped.
	Upsert(ctx context.Context, userID string, fields map[string]any) error
	LinkAccount(ctx context.Context, account Account) (Account, error)
}

// MemoryStore implements Store in memory, suitable for local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	accounts map[string][]Account
	now      func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]Profile),
		accounts: make(map[string][]Account),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Get looks up a profile by user id.
func (s *MemoryStore) Get(_ context.Context, userID string) (*Profile, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// AccountCount returns the number of linked accounts.
func (s *MemoryStore) AccountCount(_ context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrUserRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts[userID]), nil
}

// Accounts lists linked accounts in link order.
func (s *MemoryStore) Accounts(_ context.Context, userID string) ([]Account, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Account(nil), s.accounts[userID]...), nil
}

// Upsert merges fields into the user's profile, creating it when absent.
func (s *MemoryStore) Upsert(_ context.Context, userID string, fields map[string]any) error {
	if userID == "" {
		return ErrUserRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		p = Profile{UserID: userID}
	}
	p.Fields.Merge(FieldsFromMap(fields))
	if v, ok := fields[CompletionKey].(bool); ok {
		p.Complete = v
	}
	p.UpdatedAt = s.now()
	s.profiles[userID] = p
	return nil
}

// LinkAccount records a linked account and assigns an id when missing.
func (s *MemoryStore) LinkAccount(_ context.Context, account Account) (Account, error) {
	if account.UserID == "" {
		return Account{}, ErrUserRequired
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.LinkedAt.IsZero() {
		account.LinkedAt = s.now()
	}
	s.mu.Lock()
	s.accounts[account.UserID] = append(s.accounts[account.UserID], account)
	s.mu.Unlock()
	return account, nil
}
