package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"parley/internal/ws"
)

func writeTestConfig(t *testing.T, apiBind string) string {
	t.Helper()

	base := t.TempDir()
	path := filepath.Join(base, "parley.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
media_dir = %q
log_dir = %q
api_bind = %q

[transcriber]
base_url = "http://127.0.0.1:9"
api_key = "test"

[analyzer]
base_url = "http://127.0.0.1:9"
api_key = "test"

[websocket]
auth_secret = "cli-test-secret"
`,
		filepath.Join(base, "data"),
		filepath.Join(base, "media"),
		filepath.Join(base, "logs"),
		apiBind,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	output, err := execute(t, "--config", path, "config", "init")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(output, path) {
		t.Fatalf("output missing path: %q", output)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[paths]") {
		t.Fatalf("sample config missing paths section")
	}

	if _, err := execute(t, "--config", path, "config", "init"); err == nil {
		t.Fatal("second init without --force must fail")
	}
	if _, err := execute(t, "--config", path, "config", "init", "--force"); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}

func TestTokenCommandMintsVerifiableCredential(t *testing.T) {
	cfgPath := writeTestConfig(t, "127.0.0.1:0")

	output, err := execute(t, "--config", cfgPath, "token", "user-42", "--ttl", "5m")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	token := strings.TrimSpace(output)
	userID, err := ws.VerifyToken("cli-test-secret", token)
	if err != nil {
		t.Fatalf("minted token failed verification: %v", err)
	}
	if userID != "user-42" {
		t.Fatalf("token subject = %q", userID)
	}
}

func TestQueueListRendersDaemonResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/queue" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"tasks":[{"id":"abcd1234efgh","kind":"transcribe","status":"pending","attempt":1,"max_attempts":5}]}`))
	}))
	defer server.Close()

	cfgPath := writeTestConfig(t, strings.TrimPrefix(server.URL, "http://"))

	output, err := execute(t, "--config", cfgPath, "queue", "list")
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	if !strings.Contains(output, "abcd1234") || !strings.Contains(output, "transcribe") {
		t.Fatalf("unexpected output: %q", output)
	}
	if !strings.Contains(output, "1/5") {
		t.Fatalf("attempt column missing: %q", output)
	}
}

func TestStatusReportsDaemonUnreachable(t *testing.T) {
	cfgPath := writeTestConfig(t, "127.0.0.1:1")

	_, err := execute(t, "--config", cfgPath, "status")
	if err == nil || !strings.Contains(err.Error(), "unreachable") {
		t.Fatalf("expected unreachable error, got %v", err)
	}
}
