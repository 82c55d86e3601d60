// Package models defines the GORM persistence models for Foundry.
package models

import "time"

// Builder clean-status values.
const (
	CleanStatusClean = "clean"
	CleanStatusDirty = "dirty"
)

// Builder represents a remote build worker in the fleet.
type Builder struct {
	Name         string `gorm:"primaryKey;size:64"`
	URL          string `gorm:"size:255"`
	Arch         string `gorm:"size:32;index"`
	Virtualized  bool   `gorm:"default:false"`
	VMHost       string `gorm:"size:255"`
	// No column default: gorm would treat an explicit false as unset and
	// write the default, making disabled builders impossible to insert.
	OK           bool   `gorm:"column:builder_ok;index"`
	Manual       bool   `gorm:"default:false"`
	CleanStatus  string `gorm:"size:16;default:dirty"`
	CurrentJob   string `gorm:"size:32;index"`
	FailureCount int    `gorm:"default:0"`
	FailureNote  string `gorm:"type:text"`
	Version      string `gorm:"size:64"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
