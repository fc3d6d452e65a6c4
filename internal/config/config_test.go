package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"parley/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[transcriber]
base_url = "https://stt.example.com"

[websocket]
auth_secret = "secret"
`)
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be reported as existing")
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if cfg.Workflow.TranscribeWorkers != 4 {
		t.Fatalf("transcribe workers = %d, want default 4", cfg.Workflow.TranscribeWorkers)
	}
	if cfg.Analyzer.BaseURL == "" {
		t.Fatal("expected default analyzer base URL")
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("log format = %q, want console", cfg.Logging.Format)
	}
}

func TestLoadRejectsMissingTranscriberURL(t *testing.T) {
	path := writeConfig(t, `
[websocket]
auth_secret = "secret"
`)
	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for missing transcriber.base_url")
	}
	if !strings.Contains(err.Error(), "transcriber.base_url") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsMissingAuthSecret(t *testing.T) {
	path := writeConfig(t, `
[transcriber]
base_url = "https://stt.example.com"
`)
	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for missing websocket.auth_secret")
	}
	if !strings.Contains(err.Error(), "auth_secret") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadRejectsBadLogFormat(t *testing.T) {
	path := writeConfig(t, `
[transcriber]
base_url = "https://stt.example.com"

[websocket]
auth_secret = "secret"

[logging]
format = "xml"
`)
	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for unsupported log format")
	}
}

func TestExpandPathsAreAbsolute(t *testing.T) {
	path := writeConfig(t, `
[paths]
data_dir = "~/parley-test-data"

[transcriber]
base_url = "https://stt.example.com"

[websocket]
auth_secret = "secret"
`)
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("data dir %q not absolute", cfg.Paths.DataDir)
	}
	if strings.HasPrefix(cfg.Paths.DataDir, "~") {
		t.Fatalf("data dir %q not expanded", cfg.Paths.DataDir)
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = "/tmp/parley"
	if got := cfg.DatabasePath(); got != "/tmp/parley/parley.db" {
		t.Fatalf("DatabasePath = %q", got)
	}
}
