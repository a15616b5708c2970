package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "probe.yaml")

	if err := os.WriteFile(path, []byte("client:\n  name: \"ensemble\"\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Client.Name != "ensemble" {
		t.Fatalf("expected client name from file, got %q", cfg.Client.Name)
	}
	if cfg.Client.Version == "" || cfg.LogLevel == "" {
		t.Fatalf("expected defaults for version/log level")
	}
	if cfg.Discovery.Timeout != 15*time.Second {
		t.Fatalf("expected default timeout, got %s", cfg.Discovery.Timeout)
	}
	if cfg.Discovery.Concurrency <= 0 || cfg.Discovery.ProvidersDir == "" {
		t.Fatalf("expected discovery defaults")
	}
}

func TestLoadConfigProviders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe.yaml")
	data := `
discovery:
  timeout: 3s
  concurrency: -1
providers:
  - name: files
    command: npx
    args: ["-y", "server-filesystem", "/tmp"]
    env:
      DEBUG: "0"
    timeout: 500ms
  - name: off
    command: off-server
    disabled: true
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Discovery.Timeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %s", cfg.Discovery.Timeout)
	}
	if cfg.Discovery.Concurrency != defaultConcurrency {
		t.Fatalf("expected non-positive concurrency to reset, got %d", cfg.Discovery.Concurrency)
	}
	if len(cfg.Providers) != 2 {
		t.Fatalf("expected 2 providers, got %d", len(cfg.Providers))
	}
	files := cfg.Providers[0]
	if files.Command != "npx" || len(files.Args) != 3 || files.Env["DEBUG"] != "0" {
		t.Fatalf("unexpected provider: %+v", files)
	}
	if files.Timeout != 500*time.Millisecond {
		t.Fatalf("expected provider timeout 500ms, got %s", files.Timeout)
	}
	if !cfg.Providers[1].Disabled {
		t.Fatalf("expected second provider disabled")
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing config")
	}
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if cfg.Client.Name != "probe" {
		t.Fatalf("expected default config returned on error")
	}
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe.yaml")
	if err := os.WriteFile(path, []byte("discovery: [unclosed"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadConfigTypeErrorReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe.yaml")
	data := "discovery:\n  timeout: 0s\n  concurrency: 0\nlog_level: [bad]\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err == nil {
		t.Fatalf("expected type error")
	}
	if cfg.Discovery.Timeout != defaultTimeout {
		t.Fatalf("expected default timeout after decode error, got %s", cfg.Discovery.Timeout)
	}
	if cfg.Discovery.Concurrency != defaultConcurrency {
		t.Fatalf("expected default concurrency after decode error, got %d", cfg.Discovery.Concurrency)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Fatalf("expected default log level after decode error, got %q", cfg.LogLevel)
	}
}
