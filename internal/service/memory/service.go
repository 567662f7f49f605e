package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrEmptyEpisode is returned when there is nothing to remember.
var ErrEmptyEpisode = errors.New("episode content is empty")

// EpisodeWriter persists one episode and returns its id.
type EpisodeWriter interface {
	Add(ctx context.Context, userID, content string, metadata map[string]any) (string, error)
}

// Service records long-term memory episodes for a user.
type Service struct {
	writer   EpisodeWriter
	maxChars int
}

// NewService creates a memory service on writer.
func NewService(writer EpisodeWriter) *Service {
	return &Service{writer: writer, maxChars: 4000}
}

// AddEpisode stores text as an episode. Text longer than the limit is cut
// at a rune boundary.
func (s *Service) AddEpisode(ctx context.Context, userID, text string, metadata map[string]any) error {
	if userID == "" {
		return fmt.Errorf("add episode: user id is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyEpisode
	}
	if runes := []rune(text); len(runes) > s.maxChars {
		text = string(runes[:s.maxChars])
	}

	id, err := s.writer.Add(ctx, userID, text, metadata)
	if err != nil {
		return fmt.Errorf("add episode: %w", err)
	}

	log.Debug().Str("component", "memory").Str("user_id", userID).Str("episode_id", id).Msg("episode stored")
	return nil
}

// FormatExchange renders one user/assistant exchange as episode text.
func FormatExchange(userMessage, reply string) string {
	var b strings.Builder
	if msg := strings.TrimSpace(userMessage); msg != "" {
		b.WriteString("user: ")
		b.WriteString(msg)
	}
	if r := strings.TrimSpace(reply); r != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("assistant: ")
		b.WriteString(r)
	}
	return b.String()
}
