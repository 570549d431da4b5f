package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesPoolDefaults(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "pool.toml")
	if err := os.WriteFile(file, []byte("env = [\"A=1\"]\n"), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	fc, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if fc.Pool.Max != 6 {
		t.Fatalf("expected default max 6, got %d", fc.Pool.Max)
	}
	if fc.Pool.MaxIdleTime != 5*time.Minute {
		t.Fatalf("expected default max_idle_time 5m, got %v", fc.Pool.MaxIdleTime)
	}
}

func TestLoadGroupsFromTOML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "groups.toml")
	data := `
[[groups]]
app_root = "/apps/a"
min_processes = 1
max_processes = 4
spawn_method = "direct"
start_timeout = "30s"

[[groups]]
app_root = "/apps/b"
app_group_name = "b-staging"
`
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	groups, err := LoadGroupsFromTOML(file)
	if err != nil {
		t.Fatalf("load groups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if groups[0].AppRoot != "/apps/a" || groups[0].MinProcesses != 1 || groups[0].MaxProcesses != 4 {
		t.Fatalf("unexpected group 0: %+v", groups[0])
	}
	if groups[0].StartTimeout != 30*time.Second {
		t.Fatalf("expected start_timeout 30s, got %v", groups[0].StartTimeout)
	}
	if groups[1].GroupName() != "b-staging" {
		t.Fatalf("expected group name override, got %s", groups[1].GroupName())
	}
}

func TestLoadGroupsFromTOMLRequiresAppRoot(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bad.toml")
	data := `
[[groups]]
min_processes = 1
`
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	if _, err := LoadGroupsFromTOML(file); err == nil {
		t.Fatal("expected error for missing app_root")
	}
}

func TestLoadLoggerConfig(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "log.toml")
	data := `
[log]
dir = "/var/log/pool"
max_size_mb = 50
`
	if err := os.WriteFile(file, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	lc, err := LoadLoggerConfig(file)
	if err != nil {
		t.Fatalf("load logger config: %v", err)
	}
	if lc.Dir != "/var/log/pool" || lc.MaxSizeMB != 50 {
		t.Fatalf("unexpected logger config: %+v", lc)
	}
}
