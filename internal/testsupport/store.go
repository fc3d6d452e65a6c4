package testsupport

import (
	"context"
	"testing"

	"parley/internal/config"
	"parley/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewConversation creates a conversation for tests using the provided store.
func NewConversation(t testing.TB, st *store.Store, userID string, recordingType store.RecordingType) *store.Conversation {
	t.Helper()

	conv, err := st.CreateConversation(context.Background(), userID, "default", recordingType)
	if err != nil {
		t.Fatalf("store.CreateConversation: %v", err)
	}
	return conv
}

// NewAudioPart creates an uploaded audio part for tests.
func NewAudioPart(t testing.TB, st *store.Store, conversationID, slotKey, blobRef string) *store.AudioPart {
	t.Helper()

	part, err := st.CreateAudioPart(context.Background(), conversationID, slotKey, blobRef)
	if err != nil {
		t.Fatalf("store.CreateAudioPart: %v", err)
	}
	return part
}
