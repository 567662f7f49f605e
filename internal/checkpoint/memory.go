package checkpoint

import (
	"context"
	"sync"

	"github.com/zhouzirui/finpilot/backend/internal/model/chat"
)

// MemoryStore keeps encoded checkpoints in process memory, suitable for
// local runs and tests. Sessions are stored encoded so callers never share
// mutable state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

// Load returns a decoded copy of the saved session.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*chat.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}

	s.mu.RLock()
	data, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return Decode(data)
}

// Save replaces the checkpoint for sessionID.
func (s *MemoryStore) Save(_ context.Context, sessionID string, session *chat.Session) error {
	if sessionID == "" {
		return ErrSessionIDRequired
	}

	data, err := Encode(session)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sessions[sessionID] = data
	s.mu.Unlock()
	return nil
}
