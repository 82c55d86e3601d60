package store

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zulandar/foundry/internal/models"
)

// testDB creates an in-memory SQLite database with all required tables.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Builder{}, &models.BuildJob{}, &models.BuilderEvent{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

func addBuilder(t *testing.T, db *gorm.DB, b models.Builder) *models.Builder {
	t.Helper()
	if b.CleanStatus == "" {
		b.CleanStatus = models.CleanStatusDirty
	}
	b.OK = true
	if err := db.Create(&b).Error; err != nil {
		t.Fatalf("create builder %s: %v", b.Name, err)
	}
	return &b
}

func addJob(t *testing.T, db *gorm.DB, j models.BuildJob) *models.BuildJob {
	t.Helper()
	if j.Status == "" {
		j.Status = models.JobWaiting
	}
	if j.Kind == "" {
		j.Kind = models.KindPackage
	}
	if err := db.Create(&j).Error; err != nil {
		t.Fatalf("create job %s: %v", j.ID, err)
	}
	return &j
}

func TestAcquireNextJobClaims(t *testing.T) {
	db := testDB(t)
	b := addBuilder(t, db, models.Builder{Name: "bob", Arch: "amd64"})
	addJob(t, db, models.BuildJob{ID: "job-1", Arch: "amd64", Priority: 2})
	addJob(t, db, models.BuildJob{ID: "job-0", Arch: "amd64", Priority: 1})

	got, err := AcquireNextJob(db, b)
	if err != nil {
		t.Fatalf("AcquireNextJob: %v", err)
	}
	if got == nil || got.ID != "job-0" {
		t.Fatalf("claimed %+v, want job-0 (highest priority)", got)
	}
	if got.Builder != "bob" {
		t.Errorf("claimed job builder = %q, want bob", got.Builder)
	}

	// Builder row now references the job and is dirty.
	refreshed, err := Builder(db, "bob")
	if err != nil {
		t.Fatalf("Builder: %v", err)
	}
	if refreshed.CurrentJob != "job-0" {
		t.Errorf("builder current_job = %q, want job-0", refreshed.CurrentJob)
	}
	if refreshed.CleanStatus != models.CleanStatusDirty {
		t.Errorf("builder clean_status = %q, want dirty", refreshed.CleanStatus)
	}

	// The claimed job is no longer eligible for another builder.
	b2 := addBuilder(t, db, models.Builder{Name: "rob", Arch: "amd64"})
	got2, err := AcquireNextJob(db, b2)
	if err != nil {
		t.Fatalf("AcquireNextJob (second): %v", err)
	}
	if got2 == nil || got2.ID != "job-1" {
		t.Errorf("second claim = %+v, want job-1", got2)
	}
}

func TestAcquireNextJobEligibility(t *testing.T) {
	db := testDB(t)
	addJob(t, db, models.BuildJob{ID: "arm-job", Arch: "arm64"})
	addJob(t, db, models.BuildJob{ID: "vm-job", Arch: "amd64", RequiresVM: true})

	plain := addBuilder(t, db, models.Builder{Name: "bob", Arch: "amd64"})
	got, err := AcquireNextJob(db, plain)
	if err != nil {
		t.Fatalf("AcquireNextJob: %v", err)
	}
	if got != nil {
		t.Errorf("non-virtualized amd64 builder claimed %v, want nothing", got.ID)
	}

	vm := addBuilder(t, db, models.Builder{Name: "vbob", Arch: "amd64", Virtualized: true})
	got, err = AcquireNextJob(db, vm)
	if err != nil {
		t.Fatalf("AcquireNextJob (vm): %v", err)
	}
	if got == nil || got.ID != "vm-job" {
		t.Errorf("virtualized builder claimed %+v, want vm-job", got)
	}
}

func TestMarkRunningAndBuilt(t *testing.T) {
	db := testDB(t)
	b := addBuilder(t, db, models.Builder{Name: "bob", Arch: "amd64"})
	addJob(t, db, models.BuildJob{ID: "job-1", Arch: "amd64"})

	claimed, err := AcquireNextJob(db, b)
	if err != nil || claimed == nil {
		t.Fatalf("AcquireNextJob: %v %v", claimed, err)
	}

	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := MarkRunning(db, "job-1", "bob", started); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	job, _ := Job(db, "job-1")
	if job.Status != models.JobRunning || job.DateStarted == nil {
		t.Errorf("after MarkRunning: %+v", job)
	}

	if err := MarkBuilt(db, "job-1", true, started.Add(time.Hour)); err != nil {
		t.Fatalf("MarkBuilt: %v", err)
	}
	job, _ = Job(db, "job-1")
	if job.Status != models.JobBuilt {
		t.Errorf("status = %q, want built", job.Status)
	}
	if job.Assigned() {
		t.Error("finished job should be detached")
	}
	refreshed, _ := Builder(db, "bob")
	if refreshed.CurrentJob != "" {
		t.Errorf("builder current_job = %q, want empty", refreshed.CurrentJob)
	}
}

func TestResetToWaitingDetaches(t *testing.T) {
	db := testDB(t)
	b := addBuilder(t, db, models.Builder{Name: "bob", Arch: "amd64"})
	addJob(t, db, models.BuildJob{ID: "job-1", Arch: "amd64"})
	if _, err := AcquireNextJob(db, b); err != nil {
		t.Fatalf("AcquireNextJob: %v", err)
	}
	if err := MarkRunning(db, "job-1", "bob", time.Now()); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}

	if err := ResetToWaiting(db, "job-1"); err != nil {
		t.Fatalf("ResetToWaiting: %v", err)
	}
	job, _ := Job(db, "job-1")
	if job.Status != models.JobWaiting || job.Assigned() || job.DateStarted != nil {
		t.Errorf("after reset: %+v", job)
	}
	refreshed, _ := Builder(db, "bob")
	if refreshed.CurrentJob != "" {
		t.Errorf("builder still references job: %q", refreshed.CurrentJob)
	}
	// Clean status is untouched: the builder still needs clearing.
	if refreshed.CleanStatus != models.CleanStatusDirty {
		t.Errorf("clean_status = %q, want dirty", refreshed.CleanStatus)
	}
}

func TestRequestCancel(t *testing.T) {
	db := testDB(t)
	now := time.Now()

	addJob(t, db, models.BuildJob{ID: "waiting-job", Arch: "amd64"})
	if err := RequestCancel(db, "waiting-job", now); err != nil {
		t.Fatalf("RequestCancel (waiting): %v", err)
	}
	job, _ := Job(db, "waiting-job")
	if job.Status != models.JobCancelled {
		t.Errorf("waiting job status = %q, want cancelled", job.Status)
	}

	addJob(t, db, models.BuildJob{ID: "running-job", Arch: "amd64", Status: models.JobRunning, Builder: "bob"})
	if err := RequestCancel(db, "running-job", now); err != nil {
		t.Fatalf("RequestCancel (running): %v", err)
	}
	job, _ = Job(db, "running-job")
	if job.Status != models.JobCancelling {
		t.Errorf("running job status = %q, want cancelling", job.Status)
	}
	if job.Builder != "bob" {
		t.Error("cancelling job must stay attached until the scanner finishes it")
	}

	if err := RequestCancel(db, "waiting-job", now); err == nil {
		t.Error("cancelling a terminal job should fail")
	}
}

func TestFailureCounters(t *testing.T) {
	db := testDB(t)
	addBuilder(t, db, models.Builder{Name: "bob", Arch: "amd64"})
	addJob(t, db, models.BuildJob{ID: "job-1", Arch: "amd64"})

	for want := 1; want <= 3; want++ {
		got, err := IncrementBuilderFailureCount(db, "bob")
		if err != nil {
			t.Fatalf("IncrementBuilderFailureCount: %v", err)
		}
		if got != want {
			t.Errorf("builder count = %d, want %d", got, want)
		}
	}

	got, err := IncrementJobFailureCount(db, "job-1")
	if err != nil {
		t.Fatalf("IncrementJobFailureCount: %v", err)
	}
	if got != 1 {
		t.Errorf("job count = %d, want 1", got)
	}

	if err := ResetBuilderFailureCount(db, "bob"); err != nil {
		t.Fatalf("ResetBuilderFailureCount: %v", err)
	}
	b, _ := Builder(db, "bob")
	if b.FailureCount != 0 {
		t.Errorf("builder count after reset = %d, want 0", b.FailureCount)
	}
}

func TestSetBuilderOKRecordsEvent(t *testing.T) {
	db := testDB(t)
	addBuilder(t, db, models.Builder{Name: "bob", Arch: "amd64"})

	if err := SetBuilderOK(db, "bob", false, "too many failures"); err != nil {
		t.Fatalf("SetBuilderOK: %v", err)
	}
	b, _ := Builder(db, "bob")
	if b.OK {
		t.Error("builder should be disabled")
	}
	if b.FailureNote != "too many failures" {
		t.Errorf("failure note = %q", b.FailureNote)
	}

	events, err := Events(db, "bob", 10)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 || events[0].Kind != models.EventDisabled {
		t.Errorf("events = %+v, want one disabled event", events)
	}
}

func TestSetVersionAndCleanStatus(t *testing.T) {
	db := testDB(t)
	addBuilder(t, db, models.Builder{Name: "bob", Arch: "amd64"})

	if err := SetVersion(db, "bob", "4.1"); err != nil {
		t.Fatalf("SetVersion: %v", err)
	}
	if err := SetCleanStatus(db, "bob", models.CleanStatusClean); err != nil {
		t.Fatalf("SetCleanStatus: %v", err)
	}
	b, _ := Builder(db, "bob")
	if b.Version != "4.1" || b.CleanStatus != models.CleanStatusClean {
		t.Errorf("builder = %+v", b)
	}

	if err := SetCleanStatus(db, "bob", "sparkling"); err == nil {
		t.Error("bad clean status should be rejected")
	}
}

func TestAppendLogtail(t *testing.T) {
	db := testDB(t)
	addJob(t, db, models.BuildJob{ID: "job-1", Arch: "amd64"})

	if err := AppendLogtail(db, "job-1", "gcc -O2 main.c"); err != nil {
		t.Fatalf("AppendLogtail: %v", err)
	}
	job, _ := Job(db, "job-1")
	if job.Logtail != "gcc -O2 main.c" {
		t.Errorf("logtail = %q", job.Logtail)
	}
}
