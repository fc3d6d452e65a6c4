package ws

import (
	"strings"
	"time"
)

// Close codes in the private 4000-4999 range.
const (
	// CloseUnauthorized is sent when the handshake credential is missing or
	// invalid.
	CloseUnauthorized = 4401
)

// Event types delivered to clients.
const (
	EventConnected    = "connected"
	EventError        = "error"
	EventProcessing   = "processing"
	EventTranscribed  = "transcribed"
	EventFailed       = "failed"
	EventCompleted    = "completed"
	EventUploadStatus = "upload_status"
)

// Client frame types accepted from connections.
const (
	frameSubscribe    = "subscribe"
	frameUnsubscribe  = "unsubscribe"
	frameUploadStatus = "upload_status"
)

const topicPrefix = "conversation:"

// Frame is one event delivered to a client connection.
type Frame struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// NewFrame stamps an event frame with the current time.
func NewFrame(eventType string, payload any) Frame {
	return Frame{
		Type:      eventType,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	}
}

func errorFrame(message string) Frame {
	return NewFrame(EventError, map[string]string{"message": message})
}

// clientFrame is the inbound message shape accepted from connections.
type clientFrame struct {
	Type    string `json:"type"`
	Topic   string `json:"topic"`
	Payload any    `json:"payload,omitempty"`
}

// ConversationTopic builds the topic string for a conversation's events.
func ConversationTopic(conversationID string) string {
	return topicPrefix + conversationID
}

func validTopic(topic string) bool {
	return strings.HasPrefix(topic, topicPrefix) && len(topic) > len(topicPrefix)
}
