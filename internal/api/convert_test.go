package api_test

import (
	"testing"
	"time"

	"parley/internal/api"
	"parley/internal/store"
)

func TestFromTaskCopiesFields(t *testing.T) {
	now := time.Now().UTC()
	task := &store.Task{
		ID:          "t-1",
		Kind:        "transcribe",
		Status:      store.TaskPending,
		Attempt:     2,
		MaxAttempts: 5,
		StallCount:  1,
		NextRunAt:   now,
		LastError:   "timeout",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	summary := api.FromTask(task)
	if summary.ID != "t-1" || summary.Kind != "transcribe" || summary.Status != "pending" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Attempt != 2 || summary.MaxAttempts != 5 || summary.StallCount != 1 {
		t.Fatalf("attempt fields not copied: %+v", summary)
	}
	if summary.LastError != "timeout" {
		t.Fatalf("last error = %q", summary.LastError)
	}
}

func TestFromConversationIncludesParts(t *testing.T) {
	conv := &store.Conversation{
		ID:            "c-1",
		UserID:        "u-1",
		Mode:          "default",
		RecordingType: store.RecordingPaired,
		Status:        store.ConversationCompleted,
		Result:        "analysis text",
	}
	parts := []*store.AudioPart{
		{ID: "p-1", SlotKey: "1", Status: store.PartTranscribed, Transcript: "hello"},
		{ID: "p-2", SlotKey: "2", Status: store.PartTranscribed, Transcript: "world", BlobRef: "p-2.ogg"},
	}
	view := api.FromConversation(conv, parts)
	if view.Status != "completed" || view.Result != "analysis text" {
		t.Fatalf("unexpected view: %+v", view)
	}
	if len(view.Parts) != 2 {
		t.Fatalf("parts = %d, want 2", len(view.Parts))
	}
	if view.Parts[0].HasAudio {
		t.Fatal("part without blob ref should report no audio")
	}
	if !view.Parts[1].HasAudio {
		t.Fatal("part with blob ref should report audio present")
	}
}

func TestFromTaskStatsSortsByKind(t *testing.T) {
	stats := map[string]store.TaskStats{
		"transcribe": {Pending: 3},
		"analyze":    {Dead: 1},
		"sweep":      {Done: 7},
	}
	out := api.FromTaskStats(stats)
	if len(out) != 3 {
		t.Fatalf("len = %d", len(out))
	}
	if out[0].Kind != "analyze" || out[1].Kind != "sweep" || out[2].Kind != "transcribe" {
		t.Fatalf("unexpected order: %+v", out)
	}
	if out[2].Pending != 3 || out[0].Dead != 1 || out[1].Done != 7 {
		t.Fatalf("counts not copied: %+v", out)
	}
}
