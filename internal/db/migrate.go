package db

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zulandar/foundry/internal/config"
	"github.com/zulandar/foundry/internal/models"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Builder{},
		&models.BuildJob{},
		&models.BuilderEvent{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedBuilders upserts Builder rows from configuration. Operational state
// (clean status, failure counters, current job) is never touched for
// builders that already exist.
func SeedBuilders(db *gorm.DB, builders []config.BuilderConfig) error {
	for _, bc := range builders {
		b := models.Builder{
			Name:        bc.Name,
			URL:         bc.URL,
			Arch:        bc.Arch,
			Virtualized: bc.Virtualized,
			VMHost:      bc.VMHost,
			Manual:      bc.Manual,
			OK:          true,
			CleanStatus: models.CleanStatusDirty,
		}

		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"url", "arch", "virtualized", "vm_host", "manual"}),
		}).Create(&b)
		if result.Error != nil {
			return fmt.Errorf("db: seed builder %q: %w", bc.Name, result.Error)
		}
	}
	return nil
}
