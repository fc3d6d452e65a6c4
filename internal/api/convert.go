package api

import (
	"sort"

	"parley/internal/store"
)

// FromTask converts a store task into its API representation.
func FromTask(task *store.Task) TaskSummary {
	if task == nil {
		return TaskSummary{}
	}
	return TaskSummary{
		ID:          task.ID,
		Kind:        task.Kind,
		Status:      string(task.Status),
		Attempt:     task.Attempt,
		MaxAttempts: task.MaxAttempts,
		StallCount:  task.StallCount,
		NextRunAt:   task.NextRunAt,
		LastError:   task.LastError,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}

// FromTasks converts a task slice, preserving order.
func FromTasks(tasks []*store.Task) []TaskSummary {
	out := make([]TaskSummary, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, FromTask(task))
	}
	return out
}

// FromConversation converts a conversation and its parts into the API view.
func FromConversation(conv *store.Conversation, parts []*store.AudioPart) ConversationView {
	if conv == nil {
		return ConversationView{}
	}
	views := make([]AudioPartView, 0, len(parts))
	for _, part := range parts {
		views = append(views, AudioPartView{
			ID:          part.ID,
			SlotKey:     part.SlotKey,
			Status:      string(part.Status),
			Transcript:  part.Transcript,
			ErrorDetail: part.ErrorDetail,
			HasAudio:    part.BlobRef != "",
			CreatedAt:   part.CreatedAt,
			UpdatedAt:   part.UpdatedAt,
		})
	}
	return ConversationView{
		ID:            conv.ID,
		UserID:        conv.UserID,
		Mode:          conv.Mode,
		RecordingType: string(conv.RecordingType),
		Status:        string(conv.Status),
		Result:        conv.Result,
		ErrorDetail:   conv.ErrorDetail,
		Parts:         views,
		CreatedAt:     conv.CreatedAt,
		UpdatedAt:     conv.UpdatedAt,
	}
}

// FromTaskStats flattens the per-kind stats map into a stable-ordered slice.
func FromTaskStats(stats map[string]store.TaskStats) []QueueStats {
	out := make([]QueueStats, 0, len(stats))
	for kind, counts := range stats {
		out = append(out, QueueStats{
			Kind:    kind,
			Pending: counts.Pending,
			Running: counts.Running,
			Done:    counts.Done,
			Dead:    counts.Dead,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}
