package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProfileRow is the persisted onboarding profile.
type ProfileRow struct {
	UserID                     string  `gorm:"primaryKey;size:64"`
	AgeRange                   *string `gorm:"size:64"`
	LifeStage                  *string `gorm:"size:128"`
	OccupationType             *string `gorm:"size:128"`
	LocationContext            *string `gorm:"size:128"`
	FamilyStructure            *string `gorm:"size:128"`
	MaritalStatus              *string `gorm:"size:64"`
	TotalDependentsCount       *int
	ChildrenCount              *int
	CaregivingResponsibilities *string `gorm:"size:256"`
	ProfileComplete            bool    `gorm:"not null;default:false"`
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// TableName returns the table name for GORM.
func (ProfileRow) TableName() string {
	return "user_profiles"
}

// AccountRow is a linked financial account.
type AccountRow struct {
	ID       string    `gorm:"primaryKey;size:36"`
	UserID   string    `gorm:"size:64;index;not null"`
	Provider string    `gorm:"size:64;not null"`
	Name     string    `gorm:"size:128"`
	Mask     string    `gorm:"size:8"`
	LinkedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM.
func (AccountRow) TableName() string {
	return "linked_accounts"
}

// BeforeCreate assigns an id when missing.
func (a *AccountRow) BeforeCreate(_ *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.LinkedAt.IsZero() {
		a.LinkedAt = time.Now().UTC()
	}
	return nil
}

// TransactionRow is one stored transaction keyed by canonical hash.
type TransactionRow struct {
	ID            uint            `gorm:"primaryKey;autoIncrement"`
	CanonicalHash string          `gorm:"size:64;uniqueIndex;not null"`
	UserID        string          `gorm:"size:64;not null;index:idx_tx_user_date,priority:1"`
	Provider      string          `gorm:"size:64;not null"`
	ExternalID    string          `gorm:"size:128;not null"`
	AccountID     string          `gorm:"size:64"`
	Date          time.Time       `gorm:"not null;index:idx_tx_user_date,priority:2"`
	Amount        decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Currency      string          `gorm:"size:8"`
	Merchant      string          `gorm:"size:256;index"`
	Description   string          `gorm:"size:512"`
	Category      *string         `gorm:"size:64;index"`
	Subcategory   *string         `gorm:"size:64"`
	Confidence    *float64
	Tags          []string `gorm:"serializer:json"`
	CreatedAt     time.Time
}

// TableName returns the table name for GORM.
func (TransactionRow) TableName() string {
	return "transactions"
}

// EpisodeRow is a long-term memory episode.
type EpisodeRow struct {
	ID        string         `gorm:"primaryKey;size:36"`
	UserID    string         `gorm:"size:64;not null;index:idx_episode_user_created,priority:1"`
	Content   string         `gorm:"type:text;not null"`
	Metadata  map[string]any `gorm:"serializer:json"`
	CreatedAt time.Time      `gorm:"index:idx_episode_user_created,priority:2"`
}

// TableName returns the table name for GORM.
func (EpisodeRow) TableName() string {
	return "memory_episodes"
}

// BeforeCreate assigns an id when missing.
func (e *EpisodeRow) BeforeCreate(_ *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// CheckpointRow holds the encoded state of one session.
type CheckpointRow struct {
	SessionID string `gorm:"primaryKey;size:64"`
	UserID    string `gorm:"size:64;index;not null"`
	State     []byte `gorm:"not null"`
	Turns     int    `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// TableName returns the table name for GORM.
func (CheckpointRow) TableName() string {
	return "conversation_checkpoints"
}
