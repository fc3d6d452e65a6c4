package services_test

import (
	"errors"
	"testing"

	"parley/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	err := services.Wrap(services.ErrQuota, "transcribe", "call service", "rate limited", errors.New("http 429"))
	if !services.IsQuota(err) {
		t.Fatalf("expected quota classification for %v", err)
	}
	if services.IsPermanent(err) {
		t.Fatalf("quota error misclassified as permanent: %v", err)
	}
	if !services.IsTransient(err) {
		t.Fatalf("quota error should still be retryable: %v", err)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "analyze", "call service", "", errors.New("boom"))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
}

func TestPermanentNotTransient(t *testing.T) {
	err := services.Wrap(services.ErrPermanent, "transcribe", "verify blob", "source audio missing", nil)
	if !services.IsPermanent(err) {
		t.Fatalf("expected permanent classification for %v", err)
	}
	if services.IsTransient(err) {
		t.Fatalf("permanent error must not be retryable: %v", err)
	}
}

func TestUserMessageStripsMarker(t *testing.T) {
	err := services.Wrap(services.ErrPermanent, "analyze", "validate transcripts", "expected 2 transcripts, found 1", nil)
	got := services.UserMessage(err)
	want := "analyze: validate transcripts: expected 2 transcripts, found 1"
	if got != want {
		t.Fatalf("UserMessage = %q, want %q", got, want)
	}
}

func TestUserMessageNilError(t *testing.T) {
	if got := services.UserMessage(nil); got != "" {
		t.Fatalf("UserMessage(nil) = %q", got)
	}
}
