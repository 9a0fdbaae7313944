package models

import "time"

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// ConversationSession is a long-lived conversation thread between one user
// and the assistant for one feature category. Sessions are deactivated, never
// deleted, while the owning account exists.
type ConversationSession struct {
	ConversationID string    `json:"conversation_id"`
	UserID         int64     `json:"user_id"`
	SessionType    string    `json:"session_type"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Message is one append-only entry in a session. Messages are never mutated
// after creation; their persisted insertion order is the conversation order.
type Message struct {
	MessageID      string         `json:"message_id"`
	ConversationID string         `json:"conversation_id"`
	Sender         Sender         `json:"sender"`
	Text           string         `json:"text"`
	IsImportant    bool           `json:"is_important"`
	Entities       map[string]any `json:"entities,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ConversationSummary condenses a session. New rows supersede earlier ones
// for retrieval; old rows stay for audit. MessageCount records how many
// messages the summary covered, which keeps close-time summarization
// idempotent.
type ConversationSummary struct {
	SummaryID      string         `json:"summary_id"`
	ConversationID string         `json:"conversation_id"`
	SummaryText    string         `json:"summary_text"`
	KeyPoints      []string       `json:"key_points"`
	HealthEntities map[string]any `json:"health_entities"`
	MessageCount   int            `json:"message_count"`
	CreatedAt      time.Time      `json:"created_at"`
}
