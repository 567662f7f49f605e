package store

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations applies the schema in order. IDs are never reused.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "001_user_profiles",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&ProfileRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&ProfileRow{})
			},
		},
		{
			ID: "002_linked_accounts",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&AccountRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&AccountRow{})
			},
		},
		{
			ID: "003_transactions",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&TransactionRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&TransactionRow{})
			},
		},
		{
			ID: "004_memory_episodes",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&EpisodeRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&EpisodeRow{})
			},
		},
		{
			ID: "005_conversation_checkpoints",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&CheckpointRow{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&CheckpointRow{})
			},
		},
	})
	return m.Migrate()
}
