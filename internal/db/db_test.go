package db

import (
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zulandar/foundry/internal/config"
	"github.com/zulandar/foundry/internal/models"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		User: "foundry",
		Pass: "secret",
		Host: "10.0.0.5",
		Port: 3307,
		Name: "foundry_prod",
	})

	for _, want := range []string{"foundry:secret@", "tcp(10.0.0.5:3307)", "/foundry_prod", "parseTime=true"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("DSN %q missing %q", dsn, want)
		}
	}
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return db
}

func TestAutoMigrate(t *testing.T) {
	db := testDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, table := range []string{"builders", "build_jobs", "builder_events"} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("table %q missing after migrate", table)
		}
	}
}

func TestSeedBuilders(t *testing.T) {
	db := testDB(t)
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}

	builders := []config.BuilderConfig{
		{Name: "bob", URL: "http://bob:8221", Arch: "amd64"},
		{Name: "vbob", URL: "http://vbob:8221", Arch: "arm64", Virtualized: true, VMHost: "kvm-01"},
	}
	if err := SeedBuilders(db, builders); err != nil {
		t.Fatalf("SeedBuilders: %v", err)
	}

	var got models.Builder
	if err := db.First(&got, "name = ?", "vbob").Error; err != nil {
		t.Fatalf("lookup vbob: %v", err)
	}
	if !got.Virtualized || got.VMHost != "kvm-01" {
		t.Errorf("vbob = %+v, want virtualized with vm_host kvm-01", got)
	}
	if !got.OK {
		t.Error("seeded builder should start enabled")
	}
	if got.CleanStatus != models.CleanStatusDirty {
		t.Errorf("seeded clean status = %q, want dirty", got.CleanStatus)
	}

	// Reseeding with a changed URL updates config fields but not state.
	db.Model(&models.Builder{}).Where("name = ?", "vbob").Updates(map[string]interface{}{
		"failure_count": 3,
		"clean_status":  models.CleanStatusClean,
	})
	builders[1].URL = "http://vbob2:8221"
	if err := SeedBuilders(db, builders); err != nil {
		t.Fatalf("SeedBuilders (reseed): %v", err)
	}
	if err := db.First(&got, "name = ?", "vbob").Error; err != nil {
		t.Fatalf("lookup vbob: %v", err)
	}
	if got.URL != "http://vbob2:8221" {
		t.Errorf("URL = %q, want updated", got.URL)
	}
	if got.FailureCount != 3 || got.CleanStatus != models.CleanStatusClean {
		t.Errorf("reseed clobbered state: %+v", got)
	}
}
