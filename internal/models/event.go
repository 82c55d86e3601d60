package models

import "time"

// BuilderEvent kinds recorded in the audit trail.
const (
	EventDisabled  = "disabled"
	EventEnabled   = "enabled"
	EventLostJob   = "lost-job"
	EventCancelled = "cancelled"
	EventReset     = "reset"
)

// BuilderEvent is an operator-visible note attached to a builder's history.
type BuilderEvent struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Builder   string `gorm:"size:64;index"`
	Kind      string `gorm:"size:16"`
	JobID     string `gorm:"size:32"`
	Note      string `gorm:"type:text"`
	CreatedAt time.Time
}
