package pipeline

import (
	"context"

	"parley/internal/logging"
	"parley/internal/services"
	"parley/internal/store"
)

// runAggregation decides whether the conversation has every transcript it
// needs, and if so advances it to analysis exactly once. Concurrent callers
// race on a single conditional update; only the winner enqueues the analysis
// task. Re-invocation against an already-processing or terminal conversation
// is a no-op.
func (p *Pipeline) runAggregation(ctx context.Context, conversationID, userID string) error {
	logger := logging.WithContext(services.WithConversationID(ctx, conversationID), p.logger)

	conv, err := p.store.GetConversation(ctx, conversationID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "aggregate", "load conversation", "", err)
	}
	if conv == nil {
		return services.Wrap(services.ErrPermanent, "aggregate", "load conversation", "conversation not found", nil)
	}
	if conv.Status != store.ConversationWaiting {
		return nil
	}

	transcribed, err := p.store.CountTranscribed(ctx, conversationID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "aggregate", "count transcripts", "", err)
	}
	if transcribed < conv.RecordingType.RequiredParts() {
		logger.Info("waiting for remaining parts",
			logging.Int("transcribed", transcribed),
			logging.Int("required", conv.RecordingType.RequiredParts()),
			logging.String(logging.FieldEventType, "aggregation_waiting"),
		)
		return nil
	}

	// The count above is advisory only. This conditional update is the gate
	// that serializes concurrent completions.
	won, err := p.store.ClaimForAnalysis(ctx, conversationID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "aggregate", "claim conversation", "", err)
	}
	if !won {
		logger.Info("analysis already claimed by a sibling worker",
			logging.String(logging.FieldEventType, "aggregation_lost_race"),
		)
		return nil
	}

	if _, err := p.EnqueueAnalysis(ctx, AnalyzePayload{ConversationID: conversationID, UserID: userID}); err != nil {
		// Give the claim back so a later aggregation run can try again; no
		// analysis task exists yet, so exactly-once still holds.
		if releaseErr := p.store.ReleaseAnalysisClaim(ctx, conversationID); releaseErr != nil {
			logger.Error("failed to release analysis claim",
				logging.Error(releaseErr),
				logging.String(logging.FieldEventType, "conversation_update_failed"),
			)
		}
		return services.Wrap(services.ErrTransient, "aggregate", "enqueue analysis", "", err)
	}
	logger.Info("analysis started",
		logging.String(logging.FieldEventType, "analysis_started"),
	)
	p.emit(conversationID, userID, EventProcessing, conversationEventPayload{
		ConversationID: conversationID,
		Status:         string(store.ConversationProcessing),
	})
	return nil
}
