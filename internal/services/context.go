package services

import "context"

type contextKey string

const (
	conversationIDKey contextKey = "conversation_id"
	audioPartIDKey    contextKey = "audio_part_id"
	taskKindKey       contextKey = "task_kind"
	requestIDKey      contextKey = "request_id"
)

// WithConversationID annotates context with the conversation identifier.
func WithConversationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, conversationIDKey, id)
}

// ConversationIDFromContext extracts the conversation identifier if present.
func ConversationIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(conversationIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithAudioPartID annotates context with the audio part identifier.
func WithAudioPartID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, audioPartIDKey, id)
}

// AudioPartIDFromContext extracts the audio part identifier if present.
func AudioPartIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(audioPartIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTaskKind annotates context with the queue task kind.
func WithTaskKind(ctx context.Context, kind string) context.Context {
	if kind == "" {
		return ctx
	}
	return context.WithValue(ctx, taskKindKey, kind)
}

// TaskKindFromContext returns the task kind if present.
func TaskKindFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(taskKindKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
