package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Episode is a stored memory episode.
type Episode struct {
	ID        string
	UserID    string
	Content   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// EpisodeRepository persists long-term memory episodes.
type EpisodeRepository struct {
	db *gorm.DB
}

// NewEpisodeRepository creates a repository on s.
func NewEpisodeRepository(s *Store) *EpisodeRepository {
	return &EpisodeRepository{db: s.DB}
}

// Add stores an episode and returns its id.
func (r *EpisodeRepository) Add(ctx context.Context, userID, content string, metadata map[string]any) (string, error) {
	row := EpisodeRow{UserID: userID, Content: content, Metadata: metadata}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("add episode for %s: %w", userID, err)
	}
	return row.ID, nil
}

// Recent returns the newest episodes first.
func (r *EpisodeRepository) Recent(ctx context.Context, userID string, limit int) ([]Episode, error) {
	if limit <= 0 {
		limit = 10
	}

	var rows []EpisodeRow
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("recent episodes for %s: %w", userID, err)
	}

	episodes := make([]Episode, 0, len(rows))
	for _, row := range rows {
		episodes = append(episodes, Episode(row))
	}
	return episodes, nil
}
