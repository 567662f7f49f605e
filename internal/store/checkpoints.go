package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zhouzirui/finpilot/backend/internal/checkpoint"
	"github.com/zhouzirui/finpilot/backend/internal/model/chat"
)

// CheckpointRepository implements checkpoint.Store on the relational
// database, one row per session.
type CheckpointRepository struct {
	db *gorm.DB
}

var _ checkpoint.Store = (*CheckpointRepository)(nil)

// NewCheckpointRepository creates a repository on s.
func NewCheckpointRepository(s *Store) *CheckpointRepository {
	return &CheckpointRepository{db: s.DB}
}

// Load returns nil, nil for an unknown session.
func (r *CheckpointRepository) Load(ctx context.Context, sessionID string) (*chat.Session, error) {
	if sessionID == "" {
		return nil, checkpoint.ErrSessionIDRequired
	}

	var row CheckpointRow
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", sessionID, err)
	}
	return checkpoint.Decode(row.State)
}

// Save replaces the session's checkpoint.
func (r *CheckpointRepository) Save(ctx context.Context, sessionID string, session *chat.Session) error {
	if sessionID == "" {
		return checkpoint.ErrSessionIDRequired
	}

	data, err := checkpoint.Encode(session)
	if err != nil {
		return err
	}

	row := CheckpointRow{
		SessionID: sessionID,
		UserID:    session.UserID,
		State:     data,
		Turns:     session.Turns,
		UpdatedAt: time.Now().UTC(),
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "state", "turns", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", sessionID, err)
	}
	return nil
}
