package pipeline

// Stage-transition event types mirrored to the notification fan-out. They
// match the frame types the websocket hub delivers.
const (
	EventProcessing  = "processing"
	EventTranscribed = "transcribed"
	EventFailed      = "failed"
	EventCompleted   = "completed"
)

type partEventPayload struct {
	ConversationID string `json:"conversation_id"`
	AudioPartID    string `json:"audio_part_id"`
	SlotKey        string `json:"slot_key,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

type conversationEventPayload struct {
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
	Result         string `json:"result,omitempty"`
	Detail         string `json:"detail,omitempty"`
}
