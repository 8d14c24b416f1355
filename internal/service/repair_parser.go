package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"profense_backend/internal/model"
)

// RepairParser turns messy model output into validated structures. Model
// text routinely arrives wrapped in commentary or markdown fences, with
// trailing commas, or truncated mid-object; the parser repairs what it
// can and substitutes flagged fallback content when it cannot.
type RepairParser struct{}

func NewRepairParser() *RepairParser {
	return &RepairParser{}
}

var (
	fenceMarker       = regexp.MustCompile("(?m)^\\s*```[a-zA-Z]*\\s*$|```")
	trailingSeparator = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON locates and repairs the JSON payload embedded in text.
// Steps: strip fences, slice to the outermost bracket span, drop trailing
// separators, and close off truncated output at the last complete element.
func (p *RepairParser) ExtractJSON(text string) (string, error) {
	s := fenceMarker.ReplaceAllString(text, "")

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", fmt.Errorf("no structured payload found")
	}
	end := strings.LastIndexAny(s, "}]")
	if end > start {
		s = s[start : end+1]
	} else {
		s = s[start:]
	}

	s = trailingSeparator.ReplaceAllString(s, "$1")
	return p.closeTruncated(s), nil
}

// closeTruncated balances brackets for output that was cut off
// mid-stream. The payload is truncated back to the last fully-closed
// element and the missing closing tokens are appended; when no element
// ever completed, the closers are appended as-is as a last resort.
func (p *RepairParser) closeTruncated(s string) string {
	var stack []byte
	inString := false
	escaped := false

	lastComplete := -1
	var stackAtComplete []byte

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
				lastComplete = i
				stackAtComplete = append(stackAtComplete[:0], stack...)
			}
		}
	}

	if len(stack) == 0 && !inString {
		return s
	}

	if lastComplete >= 0 {
		out := strings.TrimRight(s[:lastComplete+1], ", \t\r\n")
		for i := len(stackAtComplete) - 1; i >= 0; i-- {
			out += string(stackAtComplete[i])
		}
		return out
	}

	out := s
	if inString {
		out += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out
}

// ---- assessment payloads ----

// GeneratedAssessment is the validated result of parsing model output.
// Fallback marks placeholder content substituted after irrecoverable
// parse failure so callers can surface the degradation.
type GeneratedAssessment struct {
	Title        string
	Difficulty   string
	PassingScore int
	Questions    []model.Question
	Fallback     bool
}

type rawOption struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

type rawQuestion struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Question      string          `json:"question"`
	Prompt        string          `json:"prompt"`
	Text          string          `json:"text"`
	Options       json.RawMessage `json:"options"`
	CorrectAnswer json.RawMessage `json:"correctAnswer"`
	Answer        json.RawMessage `json:"answer"`
	Explanation   string          `json:"explanation"`
	Points        float64         `json:"points"`
	Concepts      []string        `json:"concepts"`
	TimeEstimate  float64         `json:"timeEstimate"`
}

type rawAssessment struct {
	Title        string        `json:"title"`
	Difficulty   string        `json:"difficulty"`
	PassingScore float64       `json:"passingScore"`
	Questions    []rawQuestion `json:"questions"`
}

// ParseAssessment never fails: irrecoverable input yields the
// deterministic fallback set, flagged as such.
func (p *RepairParser) ParseAssessment(text, topic string) *GeneratedAssessment {
	payload, err := p.ExtractJSON(text)
	if err != nil {
		return p.fallbackAssessment(topic)
	}

	var raw rawAssessment
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return p.fallbackAssessment(topic)
	}

	questions := make([]model.Question, 0, len(raw.Questions))
	for i, rq := range raw.Questions {
		if q, ok := p.normalizeQuestion(i, rq); ok {
			questions = append(questions, q)
		}
	}
	if len(questions) == 0 {
		return p.fallbackAssessment(topic)
	}

	passing := int(raw.PassingScore)
	if passing <= 0 || passing > 100 {
		passing = 70
	}

	return &GeneratedAssessment{
		Title:        raw.Title,
		Difficulty:   MapDifficulty(raw.Difficulty),
		PassingScore: passing,
		Questions:    questions,
	}
}

// MapDifficulty folds free-form difficulty strings onto the fixed
// three-level scale.
func MapDifficulty(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy", "basic", "beginner", "simple", "intro", "introductory", "elementary":
		return model.DifficultyEasy
	case "hard", "advanced", "difficult", "expert", "challenging", "complex":
		return model.DifficultyHard
	default:
		return model.DifficultyMedium
	}
}

// normalizeQuestion applies the defaulting rules exactly once, at this
// boundary; nothing downstream re-defaults.
func (p *RepairParser) normalizeQuestion(idx int, rq rawQuestion) (model.Question, bool) {
	prompt := firstNonEmpty(rq.Question, rq.Prompt, rq.Text)
	if strings.TrimSpace(prompt) == "" {
		return model.Question{}, false
	}

	q := model.Question{
		ID:           strings.TrimSpace(rq.ID),
		Prompt:       strings.TrimSpace(prompt),
		Explanation:  rq.Explanation,
		Concepts:     rq.Concepts,
		Points:       int(rq.Points),
		TimeEstimate: int(rq.TimeEstimate),
	}
	if q.ID == "" {
		q.ID = fmt.Sprintf("q%d", idx+1)
	}
	if q.Points <= 0 {
		q.Points = 10
	}
	if q.TimeEstimate <= 0 {
		q.TimeEstimate = 60
	}

	options := p.decodeOptions(rq.Options)
	answer := decodeScalar(firstRaw(rq.CorrectAnswer, rq.Answer))
	q.Type = normalizeQuestionType(rq.Type, len(options) > 0)

	switch q.Type {
	case model.QuestionMultipleChoice:
		if len(options) < 2 {
			return model.Question{}, false
		}
		q.Options = markCorrectOption(options, answer)
		for _, o := range q.Options {
			if o.Correct {
				q.CorrectAnswer = o.ID
				break
			}
		}
	case model.QuestionTrueFalse:
		q.CorrectAnswer = normalizeBoolAnswer(answer)
	case model.QuestionNumerical:
		if _, err := strconv.ParseFloat(strings.TrimSpace(answer), 64); err != nil {
			return model.Question{}, false
		}
		q.CorrectAnswer = strings.TrimSpace(answer)
	default:
		q.CorrectAnswer = strings.TrimSpace(answer)
	}

	return q, true
}

func (p *RepairParser) decodeOptions(raw json.RawMessage) []model.QuestionOption {
	if len(raw) == 0 {
		return nil
	}

	var structured []rawOption
	if err := json.Unmarshal(raw, &structured); err == nil && len(structured) > 0 && structured[0].Text != "" {
		out := make([]model.QuestionOption, len(structured))
		for i, o := range structured {
			id := strings.TrimSpace(o.ID)
			if id == "" {
				id = optionID(i)
			}
			out[i] = model.QuestionOption{ID: id, Text: o.Text, Correct: o.Correct}
		}
		return out
	}

	var plain []string
	if err := json.Unmarshal(raw, &plain); err == nil {
		out := make([]model.QuestionOption, len(plain))
		for i, text := range plain {
			out[i] = model.QuestionOption{ID: optionID(i), Text: text}
		}
		return out
	}
	return nil
}

// markCorrectOption guarantees exactly one flagged option, resolving the
// answer by id, text, or index, and falling back to the first option.
func markCorrectOption(options []model.QuestionOption, answer string) []model.QuestionOption {
	for _, o := range options {
		if o.Correct {
			return singleCorrect(options, o.ID)
		}
	}

	answer = strings.TrimSpace(answer)
	for _, o := range options {
		if strings.EqualFold(o.ID, answer) || strings.EqualFold(o.Text, answer) {
			return singleCorrect(options, o.ID)
		}
	}
	if idx, err := strconv.Atoi(answer); err == nil && idx >= 0 && idx < len(options) {
		return singleCorrect(options, options[idx].ID)
	}
	return singleCorrect(options, options[0].ID)
}

func singleCorrect(options []model.QuestionOption, correctID string) []model.QuestionOption {
	out := make([]model.QuestionOption, len(options))
	for i, o := range options {
		o.Correct = o.ID == correctID
		out[i] = o
	}
	return out
}

func normalizeQuestionType(t string, hasOptions bool) model.QuestionType {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(t), "_", "-")) {
	case "multiple-choice", "mcq", "choice", "single-choice":
		return model.QuestionMultipleChoice
	case "true-false", "boolean", "tf":
		return model.QuestionTrueFalse
	case "numerical", "numeric", "number":
		return model.QuestionNumerical
	case "text", "short-answer", "open", "fill-blank":
		return model.QuestionText
	}
	if hasOptions {
		return model.QuestionMultipleChoice
	}
	return model.QuestionText
}

func normalizeBoolAnswer(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "false", "f", "no", "0":
		return "false"
	default:
		return "true"
	}
}

func decodeScalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return strconv.FormatFloat(num, 'f', -1, 64)
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return strings.Trim(string(raw), `"`)
}

func firstRaw(raws ...json.RawMessage) json.RawMessage {
	for _, r := range raws {
		if len(r) > 0 && string(r) != "null" {
			return r
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func optionID(i int) string {
	return string(rune('a' + i))
}

// fallbackAssessment is the deterministic placeholder set used when model
// output cannot be salvaged.
func (p *RepairParser) fallbackAssessment(topic string) *GeneratedAssessment {
	if strings.TrimSpace(topic) == "" {
		topic = "this topic"
	}
	return &GeneratedAssessment{
		Difficulty:   model.DifficultyMedium,
		PassingScore: 70,
		Fallback:     true,
		Questions: []model.Question{
			{
				ID:            "q1",
				Type:          model.QuestionTrueFalse,
				Prompt:        fmt.Sprintf("Working through examples is a good way to solidify your understanding of %s.", topic),
				CorrectAnswer: "true",
				Explanation:   "Practice with concrete examples reinforces new material.",
				Points:        10,
				TimeEstimate:  30,
			},
			{
				ID:     "q2",
				Type:   model.QuestionMultipleChoice,
				Prompt: fmt.Sprintf("Which approach helps most when a part of %s is unclear?", topic),
				Options: []model.QuestionOption{
					{ID: "a", Text: "Skip it and hope it never comes up again"},
					{ID: "b", Text: "Break it into smaller pieces and ask questions about each", Correct: true},
					{ID: "c", Text: "Memorize the answer without understanding it"},
					{ID: "d", Text: "Stop studying the subject entirely"},
				},
				CorrectAnswer: "b",
				Explanation:   "Decomposing a hard idea and questioning each piece is the reliable path.",
				Points:        10,
				TimeEstimate:  45,
			},
			{
				ID:            "q3",
				Type:          model.QuestionText,
				Prompt:        fmt.Sprintf("In your own words, summarize the main idea of %s.", topic),
				CorrectAnswer: "",
				Explanation:   "Any grounded summary in your own words counts here.",
				Points:        10,
				TimeEstimate:  120,
			},
		},
	}
}

// ---- tutor reply payloads ----

// TutorReply is what a conversational model call yields after repair.
// When the model ignored the JSON envelope the raw text becomes the reply
// and Structured stays false.
type TutorReply struct {
	Reply           string
	Concepts        []model.ConceptScore
	SuggestedTopics []string
	Structured      bool
}

type rawConcept struct {
	Concept    string  `json:"concept"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

func (p *RepairParser) ParseTutorReply(text string) TutorReply {
	payload, err := p.ExtractJSON(text)
	if err == nil {
		var raw struct {
			Response        string       `json:"response"`
			Message         string       `json:"message"`
			Concepts        []rawConcept `json:"concepts"`
			SuggestedTopics []string     `json:"suggestedTopics"`
		}
		if json.Unmarshal([]byte(payload), &raw) == nil {
			reply := firstNonEmpty(raw.Response, raw.Message)
			if reply != "" {
				out := TutorReply{
					Reply:           strings.TrimSpace(reply),
					SuggestedTopics: raw.SuggestedTopics,
					Structured:      true,
				}
				for _, c := range raw.Concepts {
					name := strings.TrimSpace(firstNonEmpty(c.Concept, c.Name))
					if name == "" {
						continue
					}
					conf := c.Confidence
					if conf <= 0 {
						conf = 0.5
					}
					if conf > 1 {
						conf = 1
					}
					out.Concepts = append(out.Concepts, model.ConceptScore{Concept: name, Confidence: conf})
				}
				return out
			}
		}
	}
	return TutorReply{Reply: strings.TrimSpace(text)}
}
