package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
database:
  driver: mysql
  host: 10.0.0.5
  port: 3307
  name: foundry_prod
  user: foundry
  pass: hunter2

scan_interval: 20s
new_builder_scan_interval: 10m
cancel_timeout: 2m
job_reset_threshold: 4
builder_reset_threshold: 6
builder_reset_failure_multiple: 2

dashboard:
  port: 9090

notify:
  slack:
    token: xoxb-test
    channel: "#builds"
  digest_schedule: "0 8 * * *"

github:
  token: ghp_test

builders:
  - name: bob
    url: http://bob.internal:8221
    arch: amd64
  - name: vbob
    url: http://vbob.internal:8221
    arch: arm64
    virtualized: true
    vm_host: kvm-03.internal
  - name: frog
    url: http://frog.internal:8221
    arch: amd64
    manual: true
`

func TestParseFull(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Database.Host != "10.0.0.5" || cfg.Database.Port != 3307 {
		t.Errorf("database = %s:%d, want 10.0.0.5:3307", cfg.Database.Host, cfg.Database.Port)
	}
	if cfg.ScanInterval.Std() != 20*time.Second {
		t.Errorf("scan_interval = %v, want 20s", cfg.ScanInterval)
	}
	if cfg.NewBuilderScanInterval.Std() != 10*time.Minute {
		t.Errorf("new_builder_scan_interval = %v, want 10m", cfg.NewBuilderScanInterval)
	}
	if cfg.CancelTimeout.Std() != 2*time.Minute {
		t.Errorf("cancel_timeout = %v, want 2m", cfg.CancelTimeout)
	}
	if cfg.JobResetThreshold != 4 {
		t.Errorf("job_reset_threshold = %d, want 4", cfg.JobResetThreshold)
	}
	if cfg.BuilderResetThreshold != 6 || cfg.BuilderResetFailureMultiple != 2 {
		t.Errorf("builder reset thresholds = %d, %d, want 6, 2",
			cfg.BuilderResetThreshold, cfg.BuilderResetFailureMultiple)
	}
	if cfg.Dashboard.Port != 9090 {
		t.Errorf("dashboard.port = %d, want 9090", cfg.Dashboard.Port)
	}
	if cfg.Notify.Slack.Channel != "#builds" {
		t.Errorf("notify.slack.channel = %q", cfg.Notify.Slack.Channel)
	}
	if len(cfg.Builders) != 3 {
		t.Fatalf("builders = %d, want 3", len(cfg.Builders))
	}
	if !cfg.Builders[1].Virtualized || cfg.Builders[1].VMHost != "kvm-03.internal" {
		t.Errorf("vbob = %+v, want virtualized with vm_host", cfg.Builders[1])
	}
	if !cfg.Builders[2].Manual {
		t.Error("frog should be manual")
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("builders: []\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Database.Driver != "mysql" {
		t.Errorf("default driver = %q, want mysql", cfg.Database.Driver)
	}
	if cfg.Database.Host != "127.0.0.1" || cfg.Database.Port != 3306 {
		t.Errorf("default database = %s:%d", cfg.Database.Host, cfg.Database.Port)
	}
	if cfg.ScanInterval.Std() != 15*time.Second {
		t.Errorf("default scan_interval = %v, want 15s", cfg.ScanInterval)
	}
	if cfg.NewBuilderScanInterval.Std() != 5*time.Minute {
		t.Errorf("default new_builder_scan_interval = %v, want 5m", cfg.NewBuilderScanInterval)
	}
	if cfg.CancelTimeout.Std() != 3*time.Minute {
		t.Errorf("default cancel_timeout = %v, want 3m", cfg.CancelTimeout)
	}
	if cfg.JobResetThreshold != 3 || cfg.BuilderResetThreshold != 5 || cfg.BuilderResetFailureMultiple != 3 {
		t.Errorf("default thresholds = %d, %d, %d, want 3, 5, 3",
			cfg.JobResetThreshold, cfg.BuilderResetThreshold, cfg.BuilderResetFailureMultiple)
	}
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("default dashboard.port = %d, want 8080", cfg.Dashboard.Port)
	}
}

func TestParseInvalidDriver(t *testing.T) {
	_, err := Parse([]byte("database:\n  driver: postgres\n"))
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), "database.driver") {
		t.Errorf("error %q should mention database.driver", err)
	}
}

func TestParseBuilderValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing url",
			yaml: "builders:\n  - name: bob\n    arch: amd64\n",
			want: "url is required",
		},
		{
			name: "missing arch",
			yaml: "builders:\n  - name: bob\n    url: http://bob:8221\n",
			want: "arch is required",
		},
		{
			name: "virtualized without vm_host",
			yaml: "builders:\n  - name: bob\n    url: http://bob:8221\n    arch: amd64\n    virtualized: true\n",
			want: "vm_host is required",
		},
		{
			name: "duplicate name",
			yaml: "builders:\n  - {name: bob, url: http://a:1, arch: amd64}\n  - {name: bob, url: http://b:1, arch: amd64}\n",
			want: "duplicated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foundry.yaml")
	if err := os.WriteFile(path, []byte(fullYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Builders) != 3 {
		t.Errorf("builders = %d, want 3", len(cfg.Builders))
	}
}
