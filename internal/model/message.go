package model

import (
	"encoding/json"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn in a conversation. UserID is nil for guest
// turns. Sources holds the citation list JSON-encoded, matching the
// chat_history.sources column.
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    *uint     `gorm:"index" json:"user_id,omitempty"`
	SessionID string    `gorm:"size:100;not null;index" json:"session_id"`
	Role      string    `gorm:"column:message_type;size:20;not null" json:"role"`
	Content   string    `gorm:"column:message;type:text;not null" json:"content"`
	Sources   string    `gorm:"type:text" json:"sources,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (ChatMessage) TableName() string {
	return "chat_history"
}

// SourceList returns the parsed citations; nil when none were stored or
// on decode error.
func (m *ChatMessage) SourceList() []SourceCitation {
	if m.Sources == "" {
		return nil
	}
	var sources []SourceCitation
	if err := json.Unmarshal([]byte(m.Sources), &sources); err != nil {
		return nil
	}
	return sources
}

// SetSources stores the citations as JSON. An empty list leaves the
// column empty rather than storing "[]".
func (m *ChatMessage) SetSources(sources []SourceCitation) {
	if len(sources) == 0 {
		m.Sources = ""
		return
	}
	b, err := json.Marshal(sources)
	if err != nil {
		m.Sources = ""
		return
	}
	m.Sources = string(b)
}

// SessionSummary is the aggregated view of one session's messages,
// used for history browsing.
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	FirstMessage time.Time `json:"first_message"`
	LastMessage  time.Time `json:"last_message"`
	MessageCount int       `json:"message_count"`
}

// UserStats is the per-account message/session aggregate.
type UserStats struct {
	TotalMessages  int64 `json:"total_messages"`
	UniqueSessions int64 `json:"unique_sessions"`
}
