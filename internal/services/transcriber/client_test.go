package transcriber_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"parley/internal/config"
	"parley/internal/services"
	"parley/internal/services/transcriber"
)

func newClient(url string, opts ...transcriber.Option) *transcriber.Client {
	cfg := config.Transcriber{
		BaseURL: url,
		APIKey:  "test-key",
		Model:   "whisper-1",
	}
	return transcriber.NewClient(cfg, opts...)
}

func TestTranscribeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header: %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("unexpected model field: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hello from the call"}`))
	}))
	defer server.Close()

	client := newClient(server.URL)
	text, err := client.Transcribe(context.Background(), strings.NewReader("fake-audio"), "clip.ogg")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello from the call" {
		t.Fatalf("unexpected transcript: %q", text)
	}
}

func TestTranscribeQuotaStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit exceeded"}}`))
	}))
	defer server.Close()

	client := newClient(server.URL)
	_, err := client.Transcribe(context.Background(), strings.NewReader("fake-audio"), "clip.ogg")
	if err == nil {
		t.Fatal("expected error")
	}
	if !services.IsQuota(err) {
		t.Fatalf("expected quota classification, got %v", err)
	}
}

func TestTranscribeQuotaBodyFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"you have exceeded your quota","type":"insufficient_quota"}}`))
	}))
	defer server.Close()

	client := newClient(server.URL)
	_, err := client.Transcribe(context.Background(), strings.NewReader("fake-audio"), "clip.ogg")
	if !services.IsQuota(err) {
		t.Fatalf("expected quota classification for quota body, got %v", err)
	}
}

func TestTranscribePermanentOnClientError(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"unsupported audio format"}}`))
	}))
	defer server.Close()

	client := newClient(server.URL)
	_, err := client.Transcribe(context.Background(), strings.NewReader("fake-audio"), "clip.ogg")
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent classification, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected no retry on permanent error, got %d calls", got)
	}
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"text":"eventually worked"}`))
	}))
	defer server.Close()

	client := newClient(server.URL, transcriber.WithRetryPolicy(4, 0, 0))
	text, err := client.Transcribe(context.Background(), strings.NewReader("fake-audio"), "clip.ogg")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "eventually worked" {
		t.Fatalf("unexpected transcript: %q", text)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 calls, got %d", got)
	}
}

func TestTranscribeRejectsEmptyAudio(t *testing.T) {
	client := newClient("http://127.0.0.1:0")
	_, err := client.Transcribe(context.Background(), strings.NewReader(""), "clip.ogg")
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent classification for empty audio, got %v", err)
	}
}
