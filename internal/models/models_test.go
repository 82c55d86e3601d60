package models

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&Builder{}, &BuildJob{}, &BuilderEvent{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func TestBuildJobAssigned(t *testing.T) {
	j := BuildJob{}
	if j.Assigned() {
		t.Error("unassigned job reported Assigned() = true")
	}
	j.Builder = "bob"
	if !j.Assigned() {
		t.Error("assigned job reported Assigned() = false")
	}
}

func TestCleanStatusValues(t *testing.T) {
	if CleanStatusClean != "clean" || CleanStatusDirty != "dirty" {
		t.Errorf("clean status constants = %q, %q", CleanStatusClean, CleanStatusDirty)
	}
}

func TestBuilderCreatePreservesDisabled(t *testing.T) {
	db := testDB(t)
	b := Builder{Name: "bob", Arch: "amd64", OK: false, CleanStatus: CleanStatusClean}
	if err := db.Create(&b).Error; err != nil {
		t.Fatalf("create builder: %v", err)
	}

	var got Builder
	if err := db.First(&got, "name = ?", "bob").Error; err != nil {
		t.Fatalf("load builder: %v", err)
	}
	if got.OK {
		t.Error("builder created disabled reads back enabled")
	}
}

func TestBuildJobPriorityDefault(t *testing.T) {
	db := testDB(t)
	j := BuildJob{ID: "j1", Kind: KindPackage, Status: JobWaiting, Arch: "amd64"}
	if err := db.Create(&j).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}

	var got BuildJob
	if err := db.First(&got, "id = ?", "j1").Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if got.Priority != 50 {
		t.Errorf("default priority = %d, want 50", got.Priority)
	}
}
