package store_test

import (
	"context"
	"sync"
	"testing"

	"parley/internal/store"
	"parley/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	conv, err := st.CreateConversation(ctx, "user-1", "interview", store.RecordingSingle)
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if conv.ID == "" {
		t.Fatal("expected conversation ID to be assigned")
	}
	if conv.Status != store.ConversationWaiting {
		t.Fatalf("expected new conversation waiting, got %s", conv.Status)
	}

	fetched, err := st.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if fetched == nil || fetched.UserID != "user-1" {
		t.Fatalf("unexpected fetched conversation: %#v", fetched)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	conv := testsupport.NewConversation(t, st, "user-1", store.RecordingSingle)
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	fetched, err := reopened.GetConversation(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("GetConversation after reopen failed: %v", err)
	}
	if fetched == nil {
		t.Fatal("expected conversation to survive reopen")
	}
}

func TestGetConversationMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	conv, err := st.GetConversation(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if conv != nil {
		t.Fatalf("expected nil for missing conversation, got %#v", conv)
	}
}

func TestCreateConversationRejectsUnknownRecordingType(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	if _, err := st.CreateConversation(context.Background(), "user-1", "interview", store.RecordingType("triple")); err == nil {
		t.Fatal("expected error for unknown recording type")
	}
}

func TestClaimForAnalysisSingleWinner(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	conv := testsupport.NewConversation(t, st, "user-1", store.RecordingPaired)

	ctx := context.Background()
	const racers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := st.ClaimForAnalysis(ctx, conv.ID)
			if err != nil {
				t.Errorf("ClaimForAnalysis failed: %v", err)
				return
			}
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}

	updated, err := st.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if updated.Status != store.ConversationProcessing {
		t.Fatalf("expected processing after claim, got %s", updated.Status)
	}
}

func TestCompleteAnalysisGuardedOnProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	conv := testsupport.NewConversation(t, st, "user-1", store.RecordingSingle)

	ctx := context.Background()
	if ok, err := st.CompleteAnalysis(ctx, conv.ID, "summary"); err != nil {
		t.Fatalf("CompleteAnalysis failed: %v", err)
	} else if ok {
		t.Fatal("expected completion of a waiting conversation to be rejected")
	}

	if won, err := st.ClaimForAnalysis(ctx, conv.ID); err != nil || !won {
		t.Fatalf("ClaimForAnalysis: won=%v err=%v", won, err)
	}
	if ok, err := st.CompleteAnalysis(ctx, conv.ID, "summary"); err != nil || !ok {
		t.Fatalf("CompleteAnalysis: ok=%v err=%v", ok, err)
	}

	updated, err := st.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if updated.Status != store.ConversationCompleted || updated.Result != "summary" {
		t.Fatalf("unexpected terminal state: %#v", updated)
	}

	if ok, err := st.FailConversation(ctx, conv.ID, "late failure"); err != nil {
		t.Fatalf("FailConversation failed: %v", err)
	} else if ok {
		t.Fatal("expected failure of a completed conversation to be rejected")
	}
}

func TestFailConversationClearsResult(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	conv := testsupport.NewConversation(t, st, "user-1", store.RecordingSingle)

	ctx := context.Background()
	if ok, err := st.FailConversation(ctx, conv.ID, "transcription exhausted retries"); err != nil || !ok {
		t.Fatalf("FailConversation: ok=%v err=%v", ok, err)
	}

	updated, err := st.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if updated.Status != store.ConversationFailed {
		t.Fatalf("expected failed, got %s", updated.Status)
	}
	if updated.ErrorDetail != "transcription exhausted retries" {
		t.Fatalf("unexpected error detail: %q", updated.ErrorDetail)
	}
	if updated.Result != "" {
		t.Fatalf("expected empty result on failure, got %q", updated.Result)
	}
}

func TestAudioPartSlotUniqueness(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	conv := testsupport.NewConversation(t, st, "user-1", store.RecordingPaired)

	ctx := context.Background()
	if _, err := st.CreateAudioPart(ctx, conv.ID, "party_a", "blobs/a.ogg"); err != nil {
		t.Fatalf("CreateAudioPart failed: %v", err)
	}
	if _, err := st.CreateAudioPart(ctx, conv.ID, "party_a", "blobs/a2.ogg"); err == nil {
		t.Fatal("expected duplicate slot insert to fail")
	}
	if _, err := st.CreateAudioPart(ctx, conv.ID, "party_b", "blobs/b.ogg"); err != nil {
		t.Fatalf("CreateAudioPart for second slot failed: %v", err)
	}

	parts, err := st.AudioPartsByConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("AudioPartsByConversation failed: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
}

func TestPartTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	conv := testsupport.NewConversation(t, st, "user-1", store.RecordingSingle)
	part := testsupport.NewAudioPart(t, st, conv.ID, "solo", "blobs/solo.ogg")

	ctx := context.Background()
	if ok, err := st.MarkPartProcessing(ctx, part.ID); err != nil || !ok {
		t.Fatalf("MarkPartProcessing: ok=%v err=%v", ok, err)
	}
	if ok, err := st.SetPartTranscribed(ctx, part.ID, "hello world"); err != nil || !ok {
		t.Fatalf("SetPartTranscribed: ok=%v err=%v", ok, err)
	}

	// Transcribed is terminal for a part.
	if ok, err := st.MarkPartProcessing(ctx, part.ID); err != nil {
		t.Fatalf("MarkPartProcessing failed: %v", err)
	} else if ok {
		t.Fatal("expected transcribed part to reject processing transition")
	}
	if ok, err := st.FailPart(ctx, part.ID, "too late"); err != nil {
		t.Fatalf("FailPart failed: %v", err)
	} else if ok {
		t.Fatal("expected transcribed part to reject failure")
	}

	count, err := st.CountTranscribed(ctx, conv.ID)
	if err != nil {
		t.Fatalf("CountTranscribed failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 transcribed part, got %d", count)
	}
}

func TestFailedPartCanReenterProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	conv := testsupport.NewConversation(t, st, "user-1", store.RecordingSingle)
	part := testsupport.NewAudioPart(t, st, conv.ID, "solo", "blobs/solo.ogg")

	ctx := context.Background()
	if ok, err := st.MarkPartProcessing(ctx, part.ID); err != nil || !ok {
		t.Fatalf("MarkPartProcessing: ok=%v err=%v", ok, err)
	}
	if ok, err := st.FailPart(ctx, part.ID, "service timeout"); err != nil || !ok {
		t.Fatalf("FailPart: ok=%v err=%v", ok, err)
	}
	if ok, err := st.MarkPartProcessing(ctx, part.ID); err != nil || !ok {
		t.Fatalf("retry MarkPartProcessing: ok=%v err=%v", ok, err)
	}

	updated, err := st.GetAudioPart(ctx, part.ID)
	if err != nil {
		t.Fatalf("GetAudioPart failed: %v", err)
	}
	if updated.Status != store.PartProcessing {
		t.Fatalf("expected processing, got %s", updated.Status)
	}
	if updated.ErrorDetail != "" {
		t.Fatalf("expected error detail cleared on retry, got %q", updated.ErrorDetail)
	}
}

func TestBlobRefLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	conv := testsupport.NewConversation(t, st, "user-1", store.RecordingSingle)
	part := testsupport.NewAudioPart(t, st, conv.ID, "solo", "blobs/solo.ogg")

	ctx := context.Background()
	inUse, err := st.BlobRefInUse(ctx, "blobs/solo.ogg")
	if err != nil {
		t.Fatalf("BlobRefInUse failed: %v", err)
	}
	if !inUse {
		t.Fatal("expected blob to be referenced")
	}

	if err := st.ClearPartBlobRef(ctx, part.ID); err != nil {
		t.Fatalf("ClearPartBlobRef failed: %v", err)
	}
	inUse, err = st.BlobRefInUse(ctx, "blobs/solo.ogg")
	if err != nil {
		t.Fatalf("BlobRefInUse failed: %v", err)
	}
	if inUse {
		t.Fatal("expected blob reference to be released")
	}
}

func TestCheckHealthReportsTables(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	health, err := st.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable {
		t.Fatalf("unexpected health: %#v", health)
	}
	if len(health.MissingTables) != 0 {
		t.Fatalf("expected no missing tables, got %v", health.MissingTables)
	}
	if !health.IntegrityCheck {
		t.Fatal("expected integrity check to pass")
	}
}
