package service

import (
	"encoding/json"
	"strings"
	"testing"

	"profense_backend/internal/model"
)

func TestExtractJSONStripsFences(t *testing.T) {
	p := NewRepairParser()

	text := "Here you go:\n```json\n{\"title\": \"Quiz\"}\n```\nHope that helps!"
	got, err := p.ExtractJSON(text)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(got), &out); err != nil {
		t.Fatalf("repaired payload does not parse: %v\n%s", err, got)
	}
	if out["title"] != "Quiz" {
		t.Errorf("title = %q, want Quiz", out["title"])
	}
}

func TestExtractJSONTrailingSeparators(t *testing.T) {
	p := NewRepairParser()

	got, err := p.ExtractJSON(`{"items": [1, 2, 3, ], }`)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}
	var out struct {
		Items []int `json:"items"`
	}
	if err := json.Unmarshal([]byte(got), &out); err != nil {
		t.Fatalf("repaired payload does not parse: %v\n%s", err, got)
	}
	if len(out.Items) != 3 {
		t.Errorf("items = %v, want 3 entries", out.Items)
	}
}

func TestExtractJSONTruncatedMidObject(t *testing.T) {
	p := NewRepairParser()

	// Cut off mid-stream after the second complete entry: the partial
	// third entry must be dropped and the brackets closed.
	text := `{"questions":[{"id":"q1","question":"A"},{"id":"q2","question":"B"},`
	got, err := p.ExtractJSON(text)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}

	var out struct {
		Questions []struct {
			ID       string `json:"id"`
			Question string `json:"question"`
		} `json:"questions"`
	}
	if err := json.Unmarshal([]byte(got), &out); err != nil {
		t.Fatalf("repaired payload does not parse: %v\n%s", err, got)
	}
	if len(out.Questions) != 2 {
		t.Fatalf("questions = %d, want exactly 2\n%s", len(out.Questions), got)
	}
	if out.Questions[0].ID != "q1" || out.Questions[1].ID != "q2" {
		t.Errorf("ids = %q, %q, want q1, q2", out.Questions[0].ID, out.Questions[1].ID)
	}
}

func TestExtractJSONTruncatedMidValue(t *testing.T) {
	p := NewRepairParser()

	text := `{"questions":[{"id":"q1","question":"A"},{"id":"q2","question":"What is the val`
	got, err := p.ExtractJSON(text)
	if err != nil {
		t.Fatalf("ExtractJSON: %v", err)
	}

	var out struct {
		Questions []struct {
			ID string `json:"id"`
		} `json:"questions"`
	}
	if err := json.Unmarshal([]byte(got), &out); err != nil {
		t.Fatalf("repaired payload does not parse: %v\n%s", err, got)
	}
	if len(out.Questions) != 1 || out.Questions[0].ID != "q1" {
		t.Errorf("questions = %+v, want only the complete q1", out.Questions)
	}
}

func TestExtractJSONNoPayload(t *testing.T) {
	p := NewRepairParser()

	if _, err := p.ExtractJSON("I could not produce the quiz, sorry."); err == nil {
		t.Error("expected an error for text without any structured payload")
	}
}

func TestParseAssessmentValid(t *testing.T) {
	p := NewRepairParser()

	text := `{
		"title": "Limits Basics",
		"difficulty": "beginner",
		"passingScore": 60,
		"questions": [
			{
				"type": "multiple_choice",
				"question": "What does a limit describe?",
				"options": [
					{"id": "a", "text": "Exact value at a point"},
					{"id": "b", "text": "Behavior approaching a point"}
				],
				"correctAnswer": "b"
			},
			{
				"type": "numerical",
				"question": "lim x->2 of x+1",
				"answer": 3
			},
			{
				"type": "true-false",
				"question": "A limit can exist where the function is undefined.",
				"correctAnswer": "True"
			}
		]
	}`
	got := p.ParseAssessment(text, "Limits")
	if got.Fallback {
		t.Fatal("valid payload flagged as fallback")
	}
	if got.Difficulty != model.DifficultyEasy {
		t.Errorf("difficulty = %q, want easy", got.Difficulty)
	}
	if got.PassingScore != 60 {
		t.Errorf("passingScore = %d, want 60", got.PassingScore)
	}
	if len(got.Questions) != 3 {
		t.Fatalf("questions = %d, want 3", len(got.Questions))
	}

	mc := got.Questions[0]
	if mc.Type != model.QuestionMultipleChoice {
		t.Errorf("q1 type = %q, want multiple-choice", mc.Type)
	}
	correct := 0
	for _, o := range mc.Options {
		if o.Correct {
			correct++
			if o.ID != "b" {
				t.Errorf("flagged option = %q, want b", o.ID)
			}
		}
	}
	if correct != 1 {
		t.Errorf("flagged options = %d, want exactly 1", correct)
	}
	if mc.ID != "q1" {
		t.Errorf("synthesized id = %q, want q1", mc.ID)
	}
	if mc.Points != 10 {
		t.Errorf("defaulted points = %d, want 10", mc.Points)
	}

	num := got.Questions[1]
	if num.Type != model.QuestionNumerical || num.CorrectAnswer != "3" {
		t.Errorf("numerical question = %+v", num)
	}

	tf := got.Questions[2]
	if tf.Type != model.QuestionTrueFalse || tf.CorrectAnswer != "true" {
		t.Errorf("true-false question = %+v", tf)
	}
}

func TestParseAssessmentFallback(t *testing.T) {
	p := NewRepairParser()

	for _, text := range []string{"", "no structure here at all", `{"questions": []}`} {
		got := p.ParseAssessment(text, "Limits")
		if !got.Fallback {
			t.Errorf("ParseAssessment(%q) not flagged as fallback", text)
			continue
		}
		if len(got.Questions) == 0 {
			t.Errorf("fallback must still carry questions")
		}
		for _, q := range got.Questions {
			if !strings.Contains(q.Prompt, "Limits") {
				t.Errorf("fallback prompt should mention the topic: %q", q.Prompt)
			}
		}
	}
}

func TestMapDifficulty(t *testing.T) {
	cases := map[string]string{
		"easy":        model.DifficultyEasy,
		"Beginner":    model.DifficultyEasy,
		"INTRO":       model.DifficultyEasy,
		"hard":        model.DifficultyHard,
		"advanced":    model.DifficultyHard,
		"challenging": model.DifficultyHard,
		"medium":      model.DifficultyMedium,
		"whatever":    model.DifficultyMedium,
		"":            model.DifficultyMedium,
	}
	for in, want := range cases {
		if got := MapDifficulty(in); got != want {
			t.Errorf("MapDifficulty(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseTutorReplyStructured(t *testing.T) {
	p := NewRepairParser()

	text := `{"response": "A limit describes approach behavior.",
		"concepts": [
			{"concept": "limits", "confidence": 0.8},
			{"name": "continuity", "confidence": 1.7},
			{"concept": "epsilon-delta"}
		],
		"suggestedTopics": ["One-sided limits"]}`
	got := p.ParseTutorReply(text)
	if !got.Structured {
		t.Fatal("expected structured reply")
	}
	if got.Reply != "A limit describes approach behavior." {
		t.Errorf("reply = %q", got.Reply)
	}
	if len(got.Concepts) != 3 {
		t.Fatalf("concepts = %d, want 3", len(got.Concepts))
	}
	if got.Concepts[1].Confidence != 1.0 {
		t.Errorf("confidence above 1 should clamp to 1, got %v", got.Concepts[1].Confidence)
	}
	if got.Concepts[2].Confidence != 0.5 {
		t.Errorf("missing confidence should default to 0.5, got %v", got.Concepts[2].Confidence)
	}
	if len(got.SuggestedTopics) != 1 {
		t.Errorf("suggestedTopics = %v", got.SuggestedTopics)
	}
}

func TestParseTutorReplyRawText(t *testing.T) {
	p := NewRepairParser()

	text := "A limit describes what a function approaches near a point."
	got := p.ParseTutorReply(text)
	if got.Structured {
		t.Error("plain text should not be marked structured")
	}
	if got.Reply != text {
		t.Errorf("reply = %q, want the raw text", got.Reply)
	}
}
