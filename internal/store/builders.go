package store

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/zulandar/foundry/internal/models"
)

// Builder returns the builder with the given name.
func Builder(db *gorm.DB, name string) (*models.Builder, error) {
	var b models.Builder
	if err := db.First(&b, "name = ?", name).Error; err != nil {
		return nil, fmt.Errorf("store: builder %s: %w", name, err)
	}
	return &b, nil
}

// Builders lists every builder, ordered by name.
func Builders(db *gorm.DB) ([]models.Builder, error) {
	var builders []models.Builder
	if err := db.Order("name ASC").Find(&builders).Error; err != nil {
		return nil, fmt.Errorf("store: list builders: %w", err)
	}
	return builders, nil
}

// SetCleanStatus records the builder's clean/dirty state.
func SetCleanStatus(db *gorm.DB, name, status string) error {
	if status != models.CleanStatusClean && status != models.CleanStatusDirty {
		return fmt.Errorf("store: bad clean status %q", status)
	}
	if err := db.Model(&models.Builder{}).Where("name = ?", name).
		Update("clean_status", status).Error; err != nil {
		return fmt.Errorf("store: set clean status %s: %w", name, err)
	}
	return nil
}

// SetBuilderOK enables or disables a builder, recording the note on the
// builder row and in the event trail.
func SetBuilderOK(db *gorm.DB, name string, ok bool, note string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Builder{}).Where("name = ?", name).Updates(map[string]interface{}{
			"builder_ok":   ok,
			"failure_note": note,
		}).Error; err != nil {
			return fmt.Errorf("store: set builder ok %s: %w", name, err)
		}
		kind := models.EventEnabled
		if !ok {
			kind = models.EventDisabled
		}
		return RecordEvent(tx, name, kind, "", note)
	})
}

// SetVersion overwrites the builder's recorded worker version.
func SetVersion(db *gorm.DB, name, version string) error {
	if err := db.Model(&models.Builder{}).Where("name = ?", name).
		Update("version", version).Error; err != nil {
		return fmt.Errorf("store: set version %s: %w", name, err)
	}
	return nil
}

// IncrementBuilderFailureCount bumps the builder's failure counter and
// returns the new value.
func IncrementBuilderFailureCount(db *gorm.DB, name string) (int, error) {
	var count int
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Builder{}).Where("name = ?", name).
			Update("failure_count", gorm.Expr("failure_count + 1")).Error; err != nil {
			return fmt.Errorf("store: bump builder failures %s: %w", name, err)
		}
		var b models.Builder
		if err := tx.Select("failure_count").First(&b, "name = ?", name).Error; err != nil {
			return fmt.Errorf("store: read builder failures %s: %w", name, err)
		}
		count = b.FailureCount
		return nil
	})
	return count, err
}

// ResetBuilderFailureCount zeroes the builder's failure counter.
func ResetBuilderFailureCount(db *gorm.DB, name string) error {
	if err := db.Model(&models.Builder{}).Where("name = ?", name).
		Update("failure_count", 0).Error; err != nil {
		return fmt.Errorf("store: reset builder failures %s: %w", name, err)
	}
	return nil
}
