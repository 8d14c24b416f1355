package model

import "time"

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in-progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
	AttemptTimedOut   AttemptStatus = "timed-out"
)

type AttemptAnswer struct {
	QuestionID string `json:"questionId"`
	UserAnswer string `json:"userAnswer"`
	IsCorrect  bool   `json:"isCorrect"`
	TimeSpent  int    `json:"timeSpent"` // seconds
}

type AttemptScore struct {
	Raw        int     `json:"raw"`        // points earned
	Percentage float64 `json:"percentage"` // rounded to 2 decimals
	Grade      string  `json:"grade"`
}

// swagger:model AssessmentAttempt
type AssessmentAttempt struct {
	UUIDBase
	AssessmentID string          `gorm:"index;type:varchar(36);not null" json:"assessmentId"`
	UserID       uint            `gorm:"index;type:bigint unsigned" json:"userId"`
	StartedAt    time.Time       `json:"startedAt"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
	Answers      []AttemptAnswer `gorm:"type:json;serializer:json" json:"answers"`
	Score        AttemptScore    `gorm:"type:json;serializer:json" json:"score"`
	Status       AttemptStatus   `gorm:"size:20;default:'in-progress';index" json:"status"`
}

func (AssessmentAttempt) TableName() string {
	return "assessment_attempts"
}
