package store

import (
	"strings"
	"time"
)

// ConversationStatus represents the lifecycle of a conversation.
type ConversationStatus string

const (
	ConversationWaiting    ConversationStatus = "waiting"
	ConversationProcessing ConversationStatus = "processing"
	ConversationCompleted  ConversationStatus = "completed"
	ConversationFailed     ConversationStatus = "failed"
)

// RecordingType determines how many audio parts a conversation requires
// before analysis can run.
type RecordingType string

const (
	RecordingSingle RecordingType = "single"
	RecordingPaired RecordingType = "paired"
)

// RequiredParts returns the number of transcribed parts needed for analysis.
func (r RecordingType) RequiredParts() int {
	if r == RecordingPaired {
		return 2
	}
	return 1
}

// Valid reports whether the recording type is one of the known values.
func (r RecordingType) Valid() bool {
	return r == RecordingSingle || r == RecordingPaired
}

// PartStatus represents the lifecycle of an uploaded audio part.
type PartStatus string

const (
	PartUploaded    PartStatus = "uploaded"
	PartProcessing  PartStatus = "processing"
	PartTranscribed PartStatus = "transcribed"
	PartFailed      PartStatus = "failed"
)

// Conversation is a recorded conversation persisted in SQLite. Result is
// non-empty iff Status is completed; ErrorDetail is non-empty iff Status is
// failed.
type Conversation struct {
	ID            string
	UserID        string
	Mode          string
	RecordingType RecordingType
	Status        ConversationStatus
	Result        string
	ErrorDetail   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsTerminal reports whether no further automated transition will occur.
func (c Conversation) IsTerminal() bool {
	return c.Status == ConversationCompleted || c.Status == ConversationFailed
}

// AudioPart is one uploaded audio clip belonging to a conversation slot.
// At most one part exists per (conversation, slot key).
type AudioPart struct {
	ID             string
	ConversationID string
	SlotKey        string
	Status         PartStatus
	Transcript     string
	ErrorDetail    string
	BlobRef        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TaskStatus represents the lifecycle of a queued task.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskDead    TaskStatus = "dead"
)

// Task is a durable unit of work owned by the task queue.
type Task struct {
	ID           string
	Kind         string
	Payload      string
	Status       TaskStatus
	Attempt      int
	MaxAttempts  int
	StallCount   int
	NextRunAt    time.Time
	LeaseExpires *time.Time
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ParseConversationStatus converts a string into a known ConversationStatus.
func ParseConversationStatus(value string) (ConversationStatus, bool) {
	normalized := ConversationStatus(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case ConversationWaiting, ConversationProcessing, ConversationCompleted, ConversationFailed:
		return normalized, true
	}
	return "", false
}

// ParseTaskStatus converts a string into a known TaskStatus.
func ParseTaskStatus(value string) (TaskStatus, bool) {
	normalized := TaskStatus(strings.ToLower(strings.TrimSpace(value)))
	switch normalized {
	case TaskPending, TaskRunning, TaskDone, TaskDead:
		return normalized, true
	}
	return "", false
}

// TaskStats is a count of tasks grouped by status for one kind.
type TaskStats struct {
	Pending int
	Running int
	Done    int
	Dead    int
}

// DatabaseHealth captures diagnostic information about the database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	Error            string
}
