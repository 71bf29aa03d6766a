package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RegistryPath == "" {
		t.Fatalf("registry path empty")
	}
	if cfg.OperationTimeout != 30*time.Second || cfg.DevtoolsPortMin != 9222 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "appctl.toml")
	content := `
registry_path = "/tmp/custom/registry.db"
log_level = "debug"
log_buffer_lines = 250
stop_wait = "5s"
devtools_port_min = 9300
devtools_port_max = 9310

[app_log]
dir = "/tmp/applogs"
max_size_mb = 2
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RegistryPath != "/tmp/custom/registry.db" || cfg.LogLevel != "debug" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.LogBufferLines != 250 || cfg.StopWait != 5*time.Second {
		t.Fatalf("numeric/duration values not applied: %+v", cfg)
	}
	if cfg.AppLog.Dir != "/tmp/applogs" || cfg.AppLog.MaxSizeMB != 2 {
		t.Fatalf("app_log section not applied: %+v", cfg.AppLog)
	}
	if cfg.DevtoolsPortMin != 9300 || cfg.DevtoolsPortMax != 9310 {
		t.Fatalf("port range not applied: %+v", cfg)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "appctl.toml")
	if err := os.WriteFile(path, []byte(`registry_path = "/from/file.db"`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("APPCTL_REGISTRY", "/from/env.db")
	t.Setenv("APPCTL_LOG_LEVEL", "error")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RegistryPath != "/from/env.db" {
		t.Fatalf("env registry override lost: %q", cfg.RegistryPath)
	}
	if cfg.LogLevel != "error" {
		t.Fatalf("env log level override lost: %q", cfg.LogLevel)
	}
}

func TestPortRangeNormalized(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "appctl.toml")
	content := "devtools_port_min = 9400\ndevtools_port_max = 9000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DevtoolsPortMax != cfg.DevtoolsPortMin {
		t.Fatalf("inverted range not normalized: %+v", cfg)
	}
}
