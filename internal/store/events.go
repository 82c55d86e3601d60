package store

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/zulandar/foundry/internal/models"
)

// RecordEvent appends an operator-visible note to a builder's history.
func RecordEvent(db *gorm.DB, builder, kind, jobID, note string) error {
	ev := models.BuilderEvent{
		Builder: builder,
		Kind:    kind,
		JobID:   jobID,
		Note:    note,
	}
	if err := db.Create(&ev).Error; err != nil {
		return fmt.Errorf("store: record event for %s: %w", builder, err)
	}
	return nil
}

// Events returns the most recent events for a builder, newest first. A
// limit of 0 means no limit; an empty builder name selects all builders.
func Events(db *gorm.DB, builder string, limit int) ([]models.BuilderEvent, error) {
	q := db.Order("id DESC")
	if builder != "" {
		q = q.Where("builder = ?", builder)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var events []models.BuilderEvent
	if err := q.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("store: list events for %s: %w", builder, err)
	}
	return events, nil
}
