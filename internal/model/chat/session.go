package chat

import "time"

// Session captures the durable cross-turn state of one conversation. It is
// the unit the checkpoint store loads and saves.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Messages  []Message `json:"messages"`
	Turns     int       `json:"turns"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	ProfileContext        string     `json:"profileContext,omitempty"`
	ProfileContextBuiltAt *time.Time `json:"profileContextBuiltAt,omitempty"`
	ProfileComplete       bool       `json:"profileComplete"`
	AccountIDs            []string   `json:"accountIds,omitempty"`
}

// NewSession returns an empty session owned by userID.
func NewSession(id, userID string, now time.Time) *Session {
	return &Session{
		ID:        id,
		UserID:    userID,
		Messages:  make([]Message, 0, 16),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message to the transcript.
func (s *Session) Append(msg Message) {
	s.Messages = append(s.Messages, msg)
}

// Clone returns a deep copy so a failed turn never leaks into the original.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	out.AccountIDs = append([]string(nil), s.AccountIDs...)
	if s.ProfileContextBuiltAt != nil {
		builtAt := *s.ProfileContextBuiltAt
		out.ProfileContextBuiltAt = &builtAt
	}
	return &out
}
