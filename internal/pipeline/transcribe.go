package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"parley/internal/logging"
	"parley/internal/services"
	"parley/internal/store"
)

// handleTranscribe runs one transcription attempt for an uploaded audio part.
// Redelivery of an already-transcribed part skips straight to aggregation so
// at-least-once task delivery stays safe.
func (p *Pipeline) handleTranscribe(ctx context.Context, task *store.Task) error {
	payload, err := decodePayload[TranscribePayload](task)
	if err != nil {
		return err
	}
	ctx = services.WithConversationID(ctx, payload.ConversationID)
	ctx = services.WithAudioPartID(ctx, payload.AudioPartID)
	logger := logging.WithContext(ctx, p.logger)

	part, err := p.store.GetAudioPart(ctx, payload.AudioPartID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "transcribe", "load part", "", err)
	}
	if part == nil {
		return services.Wrap(services.ErrPermanent, "transcribe", "load part", "audio part not found", nil)
	}
	if part.Status == store.PartTranscribed {
		logger.Info("part already transcribed; re-running aggregation",
			logging.String(logging.FieldEventType, "transcription_replayed"),
		)
		return p.runAggregation(ctx, payload.ConversationID, payload.UserID)
	}

	exists, err := p.blobs.Exists(payload.BlobRef)
	if err != nil {
		return services.Wrap(services.ErrTransient, "transcribe", "check blob", "", err)
	}
	if !exists {
		detail := "source audio missing"
		if _, failErr := p.store.FailPart(ctx, payload.AudioPartID, detail); failErr != nil {
			logger.Error("failed to record missing-source failure",
				logging.Error(failErr),
				logging.String(logging.FieldEventType, "part_update_failed"),
			)
		}
		p.emit(payload.ConversationID, payload.UserID, EventFailed, partEventPayload{
			ConversationID: payload.ConversationID,
			AudioPartID:    payload.AudioPartID,
			SlotKey:        part.SlotKey,
			Detail:         detail,
		})
		return services.Wrap(services.ErrPermanent, "transcribe", "check blob", detail, nil)
	}

	if ok, err := p.store.MarkPartProcessing(ctx, payload.AudioPartID); err != nil {
		return services.Wrap(services.ErrTransient, "transcribe", "mark processing", "", err)
	} else if !ok {
		return services.Wrap(services.ErrPermanent, "transcribe", "mark processing", "part is not in a processable state", nil)
	}
	p.emit(payload.ConversationID, payload.UserID, EventProcessing, partEventPayload{
		ConversationID: payload.ConversationID,
		AudioPartID:    payload.AudioPartID,
		SlotKey:        part.SlotKey,
	})

	transcript, err := p.transcribeBlob(ctx, payload)
	if err != nil {
		p.recordTranscribeFailure(ctx, logger, task, payload, err)
		return err
	}

	if ok, err := p.store.SetPartTranscribed(ctx, payload.AudioPartID, transcript); err != nil {
		return services.Wrap(services.ErrTransient, "transcribe", "store transcript", "", err)
	} else if !ok {
		return services.Wrap(services.ErrPermanent, "transcribe", "store transcript", "part left processing state", nil)
	}
	logger.Info("part transcribed",
		logging.Int("transcript_chars", len(transcript)),
		logging.String(logging.FieldEventType, "part_transcribed"),
	)
	p.emit(payload.ConversationID, payload.UserID, EventTranscribed, partEventPayload{
		ConversationID: payload.ConversationID,
		AudioPartID:    payload.AudioPartID,
		SlotKey:        part.SlotKey,
	})

	p.deleteBlob(ctx, logger, payload)

	return p.runAggregation(ctx, payload.ConversationID, payload.UserID)
}

func (p *Pipeline) transcribeBlob(ctx context.Context, payload TranscribePayload) (string, error) {
	reader, err := p.blobs.Open(payload.BlobRef)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "transcribe", "open blob", "", err)
	}
	defer reader.Close()
	return p.transcriber.Transcribe(ctx, reader, payload.BlobRef)
}

// recordTranscribeFailure persists the failure detail on the part. Quota
// failures keep the source blob so a later retry can run; the distinguishable
// quota detail is written only once the attempt budget is spent.
func (p *Pipeline) recordTranscribeFailure(ctx context.Context, logger *slog.Logger, task *store.Task, payload TranscribePayload, cause error) {
	detail := services.UserMessage(cause)
	if services.IsQuota(cause) && task.Attempt >= task.MaxAttempts {
		detail = "transcription quota exceeded; retry later"
	}
	if _, err := p.store.FailPart(ctx, payload.AudioPartID, detail); err != nil {
		logger.Error("failed to record transcription failure",
			logging.Error(err),
			logging.String(logging.FieldEventType, "part_update_failed"),
		)
	}
}

// deleteBlob removes the source bytes after a successful transcription.
// Deletion failures are logged, not fatal; the retention sweep collects
// leftovers.
func (p *Pipeline) deleteBlob(ctx context.Context, logger *slog.Logger, payload TranscribePayload) {
	if err := p.blobs.Delete(payload.BlobRef); err != nil {
		logger.Warn("failed to delete source blob",
			logging.Error(err),
			logging.String(logging.FieldBlobRef, payload.BlobRef),
			logging.String(logging.FieldEventType, "blob_delete_failed"),
		)
		return
	}
	if err := p.store.ClearPartBlobRef(ctx, payload.AudioPartID); err != nil {
		logger.Warn("failed to clear blob reference",
			logging.Error(err),
			logging.String(logging.FieldEventType, "part_update_failed"),
		)
	}
}

// transcribeHook finalizes a transcription task that will never run again.
type transcribeHook struct {
	p *Pipeline
}

func (h transcribeHook) OnExhausted(ctx context.Context, task *store.Task, cause error) {
	payload, err := decodePayload[TranscribePayload](task)
	if err != nil {
		h.p.logger.Error("cannot finalize transcription task with bad payload",
			logging.String(logging.FieldTaskID, task.ID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "task_finalize_failed"),
		)
		return
	}
	ctx = services.WithConversationID(ctx, payload.ConversationID)
	logger := logging.WithContext(ctx, h.p.logger)

	detail := services.UserMessage(cause)
	if services.IsQuota(cause) {
		detail = "transcription quota exceeded; retry later"
	} else {
		// Terminal non-quota failure: the source bytes have no further use.
		h.p.deleteBlob(ctx, logger, payload)
	}

	if _, err := h.p.store.FailPart(ctx, payload.AudioPartID, detail); err != nil {
		logger.Error("failed to mark part failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "part_update_failed"),
		)
	}
	if ok, err := h.p.store.FailConversation(ctx, payload.ConversationID, fmt.Sprintf("transcription failed: %s", detail)); err != nil {
		logger.Error("failed to mark conversation failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "conversation_update_failed"),
		)
	} else if ok {
		h.p.emit(payload.ConversationID, payload.UserID, EventFailed, conversationEventPayload{
			ConversationID: payload.ConversationID,
			Status:         string(store.ConversationFailed),
			Detail:         fmt.Sprintf("transcription failed: %s", detail),
		})
	}
}
