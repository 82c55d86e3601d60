// Package store implements the authoritative job and builder state store
// over GORM. The scanner is the only writer for a builder's row while its
// scan is in flight; jobs are claimed atomically so two scanners can never
// dispatch the same waiting job.
package store

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zulandar/foundry/internal/models"
)

// Job returns the job with the given ID.
func Job(db *gorm.DB, id string) (*models.BuildJob, error) {
	var job models.BuildJob
	if err := db.First(&job, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("store: job %s: %w", id, err)
	}
	return &job, nil
}

// AcquireNextJob atomically claims the next eligible waiting job for the
// builder and attaches it. Eligibility: matching arch, not requiring
// virtualization the builder lacks, unassigned, status waiting. It uses
// SELECT ... FOR UPDATE SKIP LOCKED so concurrent scanners skip each
// other's candidates. Returns (nil, nil) when no job is eligible.
//
// The claim attaches the job (job.builder, builder.current_job) and marks
// the builder dirty but leaves the job waiting; MarkRunning is called only
// after the dispatch RPC succeeds. A crash before the dispatch RPC is
// recovered by the next scan's lost-job rule; a crash after it is healed
// by the monitor path, which records the running state when the worker
// reports the expected cookie.
func AcquireNextJob(db *gorm.DB, builder *models.Builder) (*models.BuildJob, error) {
	if builder == nil {
		return nil, fmt.Errorf("store: builder is required")
	}

	var claimed models.BuildJob

	err := db.Transaction(func(tx *gorm.DB) error {
		q := tx.Where("status = ? AND builder = ? AND arch = ?", models.JobWaiting, "", builder.Arch)
		if !builder.Virtualized {
			q = q.Where("requires_vm = ?", false)
		}
		// SQLite has no row locks; transaction serialization covers the
		// single-process local mode.
		if tx.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		result := q.
			Order("priority ASC, created_at ASC").
			Limit(1).
			Find(&claimed)
		if result.Error != nil {
			return fmt.Errorf("store: find waiting job: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := tx.Model(&models.BuildJob{}).Where("id = ?", claimed.ID).
			Update("builder", builder.Name).Error; err != nil {
			return fmt.Errorf("store: claim job %s: %w", claimed.ID, err)
		}
		claimed.Builder = builder.Name

		if err := tx.Model(&models.Builder{}).Where("name = ?", builder.Name).Updates(map[string]interface{}{
			"current_job":  claimed.ID,
			"clean_status": models.CleanStatusDirty,
		}).Error; err != nil {
			return fmt.Errorf("store: attach job %s to %s: %w", claimed.ID, builder.Name, err)
		}
		return nil
	})

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &claimed, nil
}

// MarkRunning records a successful dispatch: the job is running on the
// builder as of startedAt.
func MarkRunning(db *gorm.DB, jobID, builderName string, startedAt time.Time) error {
	err := db.Model(&models.BuildJob{}).Where("id = ?", jobID).Updates(map[string]interface{}{
		"status":       models.JobRunning,
		"builder":      builderName,
		"date_started": startedAt,
	}).Error
	if err != nil {
		return fmt.Errorf("store: mark running %s: %w", jobID, err)
	}
	return nil
}

// MarkBuilt records a finished build, detaching the job from its builder.
// success selects between the built and failed terminal states.
func MarkBuilt(db *gorm.DB, jobID string, success bool, finishedAt time.Time) error {
	status := models.JobBuilt
	if !success {
		status = models.JobFailed
	}
	return finishJob(db, jobID, status, "", finishedAt)
}

// MarkCancelled records a completed cancellation.
func MarkCancelled(db *gorm.DB, jobID string, finishedAt time.Time) error {
	return finishJob(db, jobID, models.JobCancelled, "", finishedAt)
}

// MarkFailed records a permanent job failure with the causing error text.
func MarkFailed(db *gorm.DB, jobID, reason string, finishedAt time.Time) error {
	return finishJob(db, jobID, models.JobFailed, reason, finishedAt)
}

func finishJob(db *gorm.DB, jobID, status, note string, finishedAt time.Time) error {
	return db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":        status,
			"builder":       "",
			"date_finished": finishedAt,
		}
		if note != "" {
			updates["failure_note"] = note
		}
		if err := tx.Model(&models.BuildJob{}).Where("id = ?", jobID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("store: finish job %s: %w", jobID, err)
		}
		if err := detachBuilder(tx, jobID); err != nil {
			return err
		}
		return nil
	})
}

// ResetToWaiting returns a job to the queue, detaching it from its builder.
// The started timestamp and logtail are cleared so the next dispatch starts
// from a clean record.
func ResetToWaiting(db *gorm.DB, jobID string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.BuildJob{}).Where("id = ?", jobID).Updates(map[string]interface{}{
			"status":       models.JobWaiting,
			"builder":      "",
			"date_started": nil,
			"logtail":      "",
		}).Error; err != nil {
			return fmt.Errorf("store: reset job %s: %w", jobID, err)
		}
		return detachBuilder(tx, jobID)
	})
}

// detachBuilder clears current_job on whichever builder holds jobID.
func detachBuilder(tx *gorm.DB, jobID string) error {
	if err := tx.Model(&models.Builder{}).Where("current_job = ?", jobID).
		Update("current_job", "").Error; err != nil {
		return fmt.Errorf("store: detach job %s: %w", jobID, err)
	}
	return nil
}

// RequestCancel moves a job towards cancellation. A waiting job is
// cancelled outright; a running job enters cancelling and is driven to
// completion by its builder's scanner.
func RequestCancel(db *gorm.DB, jobID string, now time.Time) error {
	job, err := Job(db, jobID)
	if err != nil {
		return err
	}
	switch job.Status {
	case models.JobWaiting:
		return finishJob(db, jobID, models.JobCancelled, "", now)
	case models.JobRunning:
		if err := db.Model(&models.BuildJob{}).Where("id = ?", jobID).
			Update("status", models.JobCancelling).Error; err != nil {
			return fmt.Errorf("store: request cancel %s: %w", jobID, err)
		}
		return nil
	default:
		return fmt.Errorf("store: job %s is %s, cannot cancel", jobID, job.Status)
	}
}

// AppendLogtail replaces the job's trailing log excerpt.
func AppendLogtail(db *gorm.DB, jobID, text string) error {
	if err := db.Model(&models.BuildJob{}).Where("id = ?", jobID).
		Update("logtail", text).Error; err != nil {
		return fmt.Errorf("store: logtail %s: %w", jobID, err)
	}
	return nil
}

// IncrementJobFailureCount bumps the job's failure counter and returns the
// new value.
func IncrementJobFailureCount(db *gorm.DB, jobID string) (int, error) {
	var count int
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.BuildJob{}).Where("id = ?", jobID).
			Update("failure_count", gorm.Expr("failure_count + 1")).Error; err != nil {
			return fmt.Errorf("store: bump job failures %s: %w", jobID, err)
		}
		var job models.BuildJob
		if err := tx.Select("failure_count").First(&job, "id = ?", jobID).Error; err != nil {
			return fmt.Errorf("store: read job failures %s: %w", jobID, err)
		}
		count = job.FailureCount
		return nil
	})
	return count, err
}

// GenerateJobID creates a unique job ID in job-xxxxxxxx format (8-char hex).
func GenerateJobID() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("store: generate job ID: %w", err)
	}
	return "job-" + hex.EncodeToString(b), nil
}

// Jobs lists jobs, optionally filtered by status, newest first.
func Jobs(db *gorm.DB, status string) ([]models.BuildJob, error) {
	var jobs []models.BuildJob
	q := db.Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	return jobs, nil
}
