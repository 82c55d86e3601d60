package models

import "time"

// BuildJob status values. Waiting, Running, Cancelling and Cancelled are
// owned by the scanner subsystem; Built and Failed are the terminal states
// handed back to the rest of the system.
const (
	JobWaiting    = "waiting"
	JobRunning    = "running"
	JobCancelling = "cancelling"
	JobCancelled  = "cancelled"
	JobBuilt      = "built"
	JobFailed     = "failed"
)

// BuildJob build-type kinds. Each kind has a matching behaviour.
const (
	KindPackage = "package"
	KindRecipe  = "recipe"
	KindCI      = "ci"
)

// BuildJob is a unit of build work awaiting or undergoing execution.
type BuildJob struct {
	ID           string `gorm:"primaryKey;size:32"`
	Kind         string `gorm:"size:16;default:package;index"`
	Status       string `gorm:"size:16;default:waiting;index"`
	Builder      string `gorm:"size:64;index"`
	Arch         string `gorm:"size:32;index"`
	Priority     int    `gorm:"default:50"`
	Source       string `gorm:"size:255"`
	Ref          string `gorm:"size:128"`
	RequiresVM   bool   `gorm:"default:false"`
	Logtail      string `gorm:"type:text"`
	FailureCount int    `gorm:"default:0"`
	FailureNote  string `gorm:"type:text"`
	DateStarted  *time.Time
	DateFinished *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Assigned reports whether the job is currently attached to a builder.
func (j *BuildJob) Assigned() bool {
	return j.Builder != ""
}
