package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"parley/internal/logging"
	"parley/internal/services"
	"parley/internal/store"
)

// handleAnalyze runs one analysis attempt for a conversation whose
// transcripts are complete.
func (p *Pipeline) handleAnalyze(ctx context.Context, task *store.Task) error {
	payload, err := decodePayload[AnalyzePayload](task)
	if err != nil {
		return err
	}
	ctx = services.WithConversationID(ctx, payload.ConversationID)
	logger := logging.WithContext(ctx, p.logger)

	conv, err := p.store.GetConversation(ctx, payload.ConversationID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "analyze", "load conversation", "", err)
	}
	if conv == nil {
		return services.Wrap(services.ErrPermanent, "analyze", "load conversation", "conversation not found", nil)
	}
	if conv.IsTerminal() {
		// Redelivery after a crash that raced the terminal write.
		logger.Info("conversation already terminal; nothing to do",
			logging.String("status", string(conv.Status)),
			logging.String(logging.FieldEventType, "analysis_replayed"),
		)
		return nil
	}

	parts, err := p.store.AudioPartsByConversation(ctx, payload.ConversationID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "analyze", "load parts", "", err)
	}
	transcripts := make([]string, 0, len(parts))
	for _, part := range parts {
		if part.Transcript != "" {
			transcripts = append(transcripts, part.Transcript)
		}
	}

	required := conv.RecordingType.RequiredParts()
	if len(transcripts) != required {
		detail := fmt.Sprintf("expected %d transcripts, found %d", required, len(transcripts))
		p.failConversation(ctx, logger, conv, detail)
		return services.Wrap(services.ErrPermanent, "analyze", "validate transcripts", detail, nil)
	}

	prompt, err := BuildPrompt(conv.Mode, conv.RecordingType, transcripts)
	if err != nil {
		detail := services.UserMessage(err)
		p.failConversation(ctx, logger, conv, detail)
		return err
	}

	result, err := p.analyzer.Complete(ctx, prompt.System, prompt.User)
	if err != nil {
		if services.IsPermanent(err) {
			p.failConversation(ctx, logger, conv, services.UserMessage(err))
		}
		return err
	}

	if ok, err := p.store.CompleteAnalysis(ctx, payload.ConversationID, result); err != nil {
		return services.Wrap(services.ErrTransient, "analyze", "store result", "", err)
	} else if !ok {
		// Lost to a concurrent terminal write; the other writer already
		// emitted its event.
		logger.Warn("conversation left processing before result write",
			logging.String(logging.FieldEventType, "analysis_result_discarded"),
		)
		return nil
	}

	logger.Info("analysis completed",
		logging.Int("result_chars", len(result)),
		logging.String(logging.FieldEventType, "analysis_completed"),
	)
	p.emit(payload.ConversationID, payload.UserID, EventCompleted, conversationEventPayload{
		ConversationID: payload.ConversationID,
		Status:         string(store.ConversationCompleted),
		Result:         result,
	})
	return nil
}

// failConversation performs the best-effort terminal failure write and emits
// the failed event when this writer performed the transition.
func (p *Pipeline) failConversation(ctx context.Context, logger *slog.Logger, conv *store.Conversation, detail string) {
	ok, err := p.store.FailConversation(ctx, conv.ID, detail)
	if err != nil {
		logger.Error("failed to record conversation failure",
			logging.Error(err),
			logging.String(logging.FieldEventType, "conversation_update_failed"),
		)
		return
	}
	if ok {
		p.emit(conv.ID, conv.UserID, EventFailed, conversationEventPayload{
			ConversationID: conv.ID,
			Status:         string(store.ConversationFailed),
			Detail:         detail,
		})
	}
}

// analyzeHook finalizes an analysis task whose retry budget is spent.
type analyzeHook struct {
	p *Pipeline
}

func (h analyzeHook) OnExhausted(ctx context.Context, task *store.Task, cause error) {
	payload, err := decodePayload[AnalyzePayload](task)
	if err != nil {
		h.p.logger.Error("cannot finalize analysis task with bad payload",
			logging.String(logging.FieldTaskID, task.ID),
			logging.Error(err),
			logging.String(logging.FieldEventType, "task_finalize_failed"),
		)
		return
	}
	ctx = services.WithConversationID(ctx, payload.ConversationID)
	logger := logging.WithContext(ctx, h.p.logger)

	conv, err := h.p.store.GetConversation(ctx, payload.ConversationID)
	if err != nil || conv == nil {
		logger.Error("cannot load conversation for terminal failure",
			logging.Error(err),
			logging.String(logging.FieldEventType, "conversation_update_failed"),
		)
		return
	}
	if conv.IsTerminal() {
		return
	}

	detail := services.UserMessage(cause)
	if services.IsQuota(cause) {
		detail = "analysis quota exceeded; retry later"
	}
	h.p.failConversation(ctx, logger, conv, detail)
}
