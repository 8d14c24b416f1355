package model

import (
	"time"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionArchived  SessionStatus = "archived"
)

type MessageRole string

const (
	RoleUser   MessageRole = "user"
	RoleSystem MessageRole = "system"
)

// Message kinds as stored in the transcript.
const (
	MessageChat     = "chat"
	MessageReminder = "reminder"
	MessageRedirect = "redirect"
	MessageSafety   = "safety"
	MessageFallback = "fallback"
)

// ModerationNote is attached to a message when the moderator intervened.
type ModerationNote struct {
	Action string  `json:"action"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
}

type SessionMessage struct {
	Content    string          `json:"content"`
	Role       MessageRole     `json:"role"`
	Type       string          `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
	Moderation *ModerationNote `json:"moderation,omitempty"`
}

// ConceptScore tracks one learned concept with a confidence in [0,1].
type ConceptScore struct {
	Concept    string    `json:"concept"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// SessionContext carries the tutoring parameters for a session.
// MessageCount counts user turns and drives the discovery phase.
type SessionContext struct {
	Difficulty       string   `json:"difficulty"`
	TeachingMode     string   `json:"teachingMode"`
	PreviousConcepts []string `json:"previousConcepts"`
	SessionType      string   `json:"sessionType"`
	MessageCount     int      `json:"messageCount"`
}

// ConversationSession is persisted as a single document row: the JSON
// columns are always written back whole, never patched field by field.
// swagger:model ConversationSession
type ConversationSession struct {
	UUIDBase
	UserID          uint             `gorm:"index;type:bigint unsigned" json:"userId"`
	Subject         string           `gorm:"size:100;not null" json:"subject"`
	CurrentTopic    string           `gorm:"size:255" json:"currentTopic"`
	Context         SessionContext   `gorm:"type:json;serializer:json" json:"context"`
	Messages        []SessionMessage `gorm:"type:json;serializer:json" json:"messages"`
	ConceptsCovered []ConceptScore   `gorm:"type:json;serializer:json" json:"conceptsCovered"`
	SuggestedTopics []string         `gorm:"type:json;serializer:json" json:"suggestedTopics"`
	AssessmentIDs   []string         `gorm:"type:json;serializer:json" json:"generatedAssessmentIds"`
	Status          SessionStatus    `gorm:"size:20;default:'active';index" json:"status"`
	LastActivity    time.Time        `json:"lastActivity"`
	EndedAt         *time.Time       `json:"endedAt,omitempty"`
	DurationSeconds int              `gorm:"default:0" json:"durationSeconds"`
}

func (ConversationSession) TableName() string {
	return "conversation_sessions"
}
