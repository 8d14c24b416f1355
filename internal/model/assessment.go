package model

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionNumerical      QuestionType = "numerical"
	QuestionText           QuestionType = "text"
	QuestionTrueFalse      QuestionType = "true-false"
)

// Difficulty levels are a fixed three-level scale; free-form model output
// is mapped onto it by the repair parser.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

type QuestionOption struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question holds one graded item. CorrectAnswer is the textual canonical
// answer; for multiple-choice the flagged option is authoritative and
// CorrectAnswer carries the option id, for numerical it carries the number
// as written (both operands are parsed as floats at grading time).
type Question struct {
	ID            string           `json:"id"`
	Type          QuestionType     `json:"type"`
	Prompt        string           `json:"question"`
	Options       []QuestionOption `json:"options,omitempty"`
	CorrectAnswer string           `json:"correctAnswer"`
	Explanation   string           `json:"explanation,omitempty"`
	Points        int              `json:"points"`
	Concepts      []string         `json:"concepts,omitempty"`
	TimeEstimate  int              `json:"timeEstimate"` // seconds
}

type GenerationContext struct {
	SourceSessionID     string   `json:"sourceSessionId,omitempty"`
	ConceptsCovered     []string `json:"conceptsCovered,omitempty"`
	ConversationSummary string   `json:"conversationSummary,omitempty"`
}

// swagger:model Assessment
type Assessment struct {
	UUIDBase
	CreatorID         uint              `gorm:"index;type:bigint unsigned" json:"creatorId"`
	Subject           string            `gorm:"size:100;not null" json:"subject"`
	Topic             string            `gorm:"size:255;not null" json:"topic"`
	Difficulty        string            `gorm:"size:20;default:'medium'" json:"difficulty"`
	Questions         []Question        `gorm:"type:json;serializer:json" json:"questions"`
	PassingScore      int               `gorm:"default:70" json:"passingScore"`
	MaxAttempts       int               `gorm:"default:3" json:"maxAttempts"`
	IsFallback        bool              `gorm:"default:false" json:"isFallback"` // repair parser substituted placeholder questions
	GenerationContext GenerationContext `gorm:"type:json;serializer:json" json:"generationContext"`
}

func (Assessment) TableName() string {
	return "assessments"
}
