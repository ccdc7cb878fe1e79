package domain

import "time"

// Status is the filing state of an inbox log entry
type Status string

const (
	StatusFiled       Status = "filed"
	StatusNeedsReview Status = "needs_review"
	StatusFixed       Status = "fixed"
)

// Classification is the parsed output of the classifier
type Classification struct {
	Category   string         `json:"category"`
	Confidence float64        `json:"confidence"`
	Extracted  map[string]any `json:"extracted"`
	Tags       []string       `json:"tags"`
}

// InboxLogEntry records one inbound note and where it went
type InboxLogEntry struct {
	ID          string    `json:"id"`
	RawText     string    `json:"raw_text"`
	Destination Category  `json:"destination,omitempty"`
	RecordID    string    `json:"record_id,omitempty"`
	Confidence  *float64  `json:"confidence,omitempty"`
	Status      Status    `json:"status"`
	MessageID   string    `json:"transport_message_id"`
	ChatID      string    `json:"transport_chat_id"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PendingClarification ties a clarification prompt to the entry awaiting review
type PendingClarification struct {
	ID                string    `json:"id"`
	InboxLogID        string    `json:"inbox_log_id"`
	ReplyTargetID     string    `json:"transport_reply_target_id"`
	ChatID            string    `json:"transport_chat_id"`
	SuggestedCategory Category  `json:"suggested_category,omitempty"`
	CreatedAt         time.Time `json:"created_at"`

	// Joined from the inbox log
	RawText   string `json:"raw_text,omitempty"`
	MessageID string `json:"transport_message_id,omitempty"`
}

// Memory is the enrichment row stored for a filed note
type Memory struct {
	ID        string    `json:"id"`
	RecordID  string    `json:"record_id"`
	Category  Category  `json:"category"`
	Text      string    `json:"text"`
	LinkText  string    `json:"link_text,omitempty"`
	Embedding []float64 `json:"-"`
	Model     string    `json:"model,omitempty"`
	Related   []string  `json:"related,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SimilarMemory is a memory scored against a query vector
type SimilarMemory struct {
	Memory
	Score float64 `json:"score"`
}

// Entry is a stored record with its row metadata
type Entry struct {
	ID        string    `json:"id"`
	Record    Record    `json:"record"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
