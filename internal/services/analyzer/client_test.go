package analyzer_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"parley/internal/config"
	"parley/internal/services"
	"parley/internal/services/analyzer"
)

func newClient(url string, opts ...analyzer.Option) *analyzer.Client {
	cfg := config.Analyzer{
		BaseURL: url,
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
	}
	return analyzer.NewClient(cfg, opts...)
}

func completionBody(content string) string {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}, "finish_reason": "stop"},
		},
	}
	encoded, _ := json.Marshal(payload)
	return string(encoded)
}

func TestCompleteSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("unexpected model: %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %#v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("analysis result")))
	}))
	defer server.Close()

	client := newClient(server.URL)
	content, err := client.Complete(context.Background(), "You analyze conversations.", "transcript here")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if content != "analysis result" {
		t.Fatalf("unexpected content: %q", content)
	}
}

func TestCompleteQuotaStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit exceeded"}}`))
	}))
	defer server.Close()

	client := newClient(server.URL)
	_, err := client.Complete(context.Background(), "system", "user")
	if !services.IsQuota(err) {
		t.Fatalf("expected quota classification, got %v", err)
	}
}

func TestCompletePermanentOnRefusal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"","refusal":"cannot analyze this"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client := newClient(server.URL)
	_, err := client.Complete(context.Background(), "system", "user")
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent classification, got %v", err)
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(completionBody("second try")))
	}))
	defer server.Close()

	client := newClient(server.URL, analyzer.WithRetryPolicy(3, 0, 0))
	content, err := client.Complete(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if content != "second try" {
		t.Fatalf("unexpected content: %q", content)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 calls, got %d", got)
	}
}

func TestCompleteRequiresPrompts(t *testing.T) {
	client := newClient("http://127.0.0.1:0")
	if _, err := client.Complete(context.Background(), "", "user"); !services.IsPermanent(err) {
		t.Fatalf("expected permanent error for missing system prompt, got %v", err)
	}
	if _, err := client.Complete(context.Background(), "system", ""); !services.IsPermanent(err) {
		t.Fatalf("expected permanent error for missing user prompt, got %v", err)
	}
}
