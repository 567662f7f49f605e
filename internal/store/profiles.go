package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zhouzirui/finpilot/backend/internal/model/profile"
)

// ProfileRepository implements profile.Store.
type ProfileRepository struct {
	db  *gorm.DB
	now func() time.Time
}

var _ profile.Store = (*ProfileRepository)(nil)

// NewProfileRepository creates a repository on s.
func NewProfileRepository(s *Store) *ProfileRepository {
	return &ProfileRepository{db: s.DB, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns nil, nil when the user has no profile.
func (r *ProfileRepository) Get(ctx context.Context, userID string) (*profile.Profile, error) {
	if userID == "" {
		return nil, profile.ErrUserRequired
	}

	var row ProfileRow
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", userID, err)
	}
	return row.toProfile(), nil
}

// AccountCount counts linked accounts without caching.
func (r *ProfileRepository) AccountCount(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, profile.ErrUserRequired
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&AccountRow{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count accounts %s: %w", userID, err)
	}
	return int(count), nil
}

// Accounts lists linked accounts oldest first.
func (r *ProfileRepository) Accounts(ctx context.Context, userID string) ([]profile.Account, error) {
	if userID == "" {
		return nil, profile.ErrUserRequired
	}

	var rows []AccountRow
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("linked_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list accounts %s: %w", userID, err)
	}

	accounts := make([]profile.Account, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, profile.Account{
			ID:       row.ID,
			UserID:   row.UserID,
			Provider: row.Provider,
			Name:     row.Name,
			Mask:     row.Mask,
			LinkedAt: row.LinkedAt,
		})
	}
	return accounts, nil
}

// Upsert writes the known fields. Columns not named in fields keep their
// stored value.
func (r *ProfileRepository) Upsert(ctx context.Context, userID string, fields map[string]any) error {
	if userID == "" {
		return profile.ErrUserRequired
	}

	values := profile.FieldsFromMap(fields)
	now := r.now()
	row := ProfileRow{UserID: userID, CreatedAt: now, UpdatedAt: now}
	row.applyFields(values)

	columns := make([]string, 0, len(profile.FieldNames)+2)
	for name := range values.Values() {
		columns = append(columns, name)
	}
	if complete, ok := fields[profile.CompletionKey].(bool); ok {
		row.ProfileComplete = complete
		columns = append(columns, profile.CompletionKey)
	}
	if len(columns) == 0 {
		return nil
	}
	columns = append(columns, "updated_at")

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", userID, err)
	}
	return nil
}

// LinkAccount stores a newly linked account.
func (r *ProfileRepository) LinkAccount(ctx context.Context, account profile.Account) (profile.Account, error) {
	if account.UserID == "" {
		return profile.Account{}, profile.ErrUserRequired
	}

	if account.LinkedAt.IsZero() {
		account.LinkedAt = r.now()
	}
	row := AccountRow{
		ID:       account.ID,
		UserID:   account.UserID,
		Provider: account.Provider,
		Name:     account.Name,
		Mask:     account.Mask,
		LinkedAt: account.LinkedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return profile.Account{}, fmt.Errorf("link account for %s: %w", account.UserID, err)
	}

	account.ID = row.ID
	account.LinkedAt = row.LinkedAt
	return account, nil
}

func (row *ProfileRow) applyFields(f profile.Fields) {
	row.AgeRange = f.AgeRange
	row.LifeStage = f.LifeStage
	row.OccupationType = f.OccupationType
	row.LocationContext = f.LocationContext
	row.FamilyStructure = f.FamilyStructure
	row.MaritalStatus = f.MaritalStatus
	row.TotalDependentsCount = f.TotalDependentsCount
	row.ChildrenCount = f.ChildrenCount
	row.CaregivingResponsibilities = f.CaregivingResponsibilities
}

func (row ProfileRow) toProfile() *profile.Profile {
	return &profile.Profile{
		UserID: row.UserID,
		Fields: profile.Fields{
			AgeRange:                   row.AgeRange,
			LifeStage:                  row.LifeStage,
			OccupationType:             row.OccupationType,
			LocationContext:            row.LocationContext,
			FamilyStructure:            row.FamilyStructure,
			MaritalStatus:              row.MaritalStatus,
			TotalDependentsCount:       row.TotalDependentsCount,
			ChildrenCount:              row.ChildrenCount,
			CaregivingResponsibilities: row.CaregivingResponsibilities,
		},
		Complete:  row.ProfileComplete,
		UpdatedAt: row.UpdatedAt,
	}
}
