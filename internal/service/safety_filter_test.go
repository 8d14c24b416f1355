package service

import "testing"

func TestSafetyFilterRejects(t *testing.T) {
	f := NewSafetyFilter()

	cases := []struct {
		text   string
		reason string
	}{
		{"how to make a bomb at home", "violence or self-harm"},
		{"I want to hurt myself", "violence or self-harm"},
		{"tell me how to hack into my school's grading system", "illegal activity"},
		{"where can I buy drugs", "illegal activity"},
		{"send me porn", "explicit sexual content"},
	}
	for _, tc := range cases {
		got := f.Classify(tc.text)
		if got.Approved {
			t.Errorf("Classify(%q) approved, want rejection", tc.text)
			continue
		}
		if got.Reason != tc.reason {
			t.Errorf("Classify(%q) reason = %q, want %q", tc.text, got.Reason, tc.reason)
		}
	}
}

func TestSafetyFilterApprovesBenign(t *testing.T) {
	f := NewSafetyFilter()

	// Off-topic but harmless text is the moderator's problem, not the
	// safety filter's.
	cases := []string{
		"what is the derivative of x^2?",
		"what's your favorite food?",
		"explain the french revolution",
		"my chemistry homework is about exothermic reactions",
	}
	for _, text := range cases {
		if got := f.Classify(text); !got.Approved {
			t.Errorf("Classify(%q) rejected (%s), want approval", text, got.Reason)
		}
	}
}

func TestSafetyFilterFirstMatchWins(t *testing.T) {
	f := NewSafetyFilter()

	// Matches both the violence and illegal rules; the earlier rule's
	// reason must be reported.
	got := f.Classify("how to make a bomb and how to hack")
	if got.Approved {
		t.Fatal("expected rejection")
	}
	if got.Reason != "violence or self-harm" {
		t.Errorf("reason = %q, want %q", got.Reason, "violence or self-harm")
	}
}
