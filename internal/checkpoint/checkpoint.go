// Package checkpoint persists conversation sessions between turns.
package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/zhouzirui/finpilot/backend/internal/model/chat"
)

// ErrSessionIDRequired is returned for an empty checkpoint key.
var ErrSessionIDRequired = errors.New("session id is required")

// Store loads and saves the latest state of a session.
type Store interface {
	// Load returns nil, nil when nothing was saved for the session yet.
	Load(ctx context.Context, sessionID string) (*chat.Session, error)
	Save(ctx context.Context, sessionID string, session *chat.Session) error
}

// Encode serializes a session for storage.
func Encode(session *chat.Session) ([]byte, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return data, nil
}

// Decode restores a session written by Encode.
func Decode(data []byte) (*chat.Session, error) {
	var session chat.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}
