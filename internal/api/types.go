package api

import "time"

// DaemonStatus summarizes the running daemon for GET /api/status.
type DaemonStatus struct {
	Running      bool         `json:"running"`
	PID          int          `json:"pid"`
	DatabasePath string       `json:"database_path"`
	LockFilePath string       `json:"lock_file_path"`
	Connections  int          `json:"websocket_connections"`
	Queue        []QueueStats `json:"queue"`
}

// QueueStats is the per-kind task count breakdown.
type QueueStats struct {
	Kind    string `json:"kind"`
	Pending int    `json:"pending"`
	Running int    `json:"running"`
	Done    int    `json:"done"`
	Dead    int    `json:"dead"`
}

// TaskSummary is one queue task as shown by GET /api/queue and the CLI.
type TaskSummary struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Status      string    `json:"status"`
	Attempt     int       `json:"attempt"`
	MaxAttempts int       `json:"max_attempts"`
	StallCount  int       `json:"stall_count"`
	NextRunAt   time.Time `json:"next_run_at"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// QueueListResponse wraps the task listing payload.
type QueueListResponse struct {
	Tasks []TaskSummary `json:"tasks"`
}

// AudioPartView is one uploaded audio part in a conversation response.
type AudioPartView struct {
	ID          string    `json:"id"`
	SlotKey     string    `json:"slot_key"`
	Status      string    `json:"status"`
	Transcript  string    `json:"transcript,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	HasAudio    bool      `json:"has_audio"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ConversationView is the pull-based read of a conversation's current state,
// for clients that missed the push notifications.
type ConversationView struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Mode          string          `json:"mode"`
	RecordingType string          `json:"recording_type"`
	Status        string          `json:"status"`
	Result        string          `json:"result,omitempty"`
	ErrorDetail   string          `json:"error_detail,omitempty"`
	Parts         []AudioPartView `json:"parts"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ErrorResponse is the uniform error payload for non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
