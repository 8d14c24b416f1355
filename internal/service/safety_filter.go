package service

import "regexp"

// SafetyResult tags a classified message. A rejection is a normal
// control-flow outcome, not an error.
type SafetyResult struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// safetyRule is one independent predicate; rules are evaluated in order
// and the first match wins.
type safetyRule struct {
	Reason   string
	Patterns []*regexp.Regexp
}

var safetyRules = []safetyRule{
	{
		Reason: "violence or self-harm",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(kill|hurt|harm)\s+(myself|yourself|himself|herself|themselves|someone|somebody|people)\b`),
			regexp.MustCompile(`(?i)\b(suicide|suicidal|self[\s-]?harm|end\s+my\s+life)\b`),
			regexp.MustCompile(`(?i)\bhow\s+to\s+(make|build)\s+(a\s+)?(bomb|weapon|explosive)\b`),
		},
	},
	{
		Reason: "illegal activity",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bhow\s+to\s+(hack|steal|rob|shoplift|launder)\b`),
			regexp.MustCompile(`(?i)\b(buy|sell|make|cook)\s+(drugs|meth|cocaine|heroin)\b`),
			regexp.MustCompile(`(?i)\b(counterfeit|forge)\s+(money|documents?|id)\b`),
		},
	},
	{
		Reason: "explicit sexual content",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(porn|pornographic|explicit\s+sex|sexual\s+acts?)\b`),
			regexp.MustCompile(`(?i)\bnudes?\b`),
		},
	},
	{
		Reason: "hate speech",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(racial\s+slurs?|ethnic\s+cleansing|gas\s+the)\b`),
			regexp.MustCompile(`(?i)\bi\s+hate\s+(all\s+)?(jews|muslims|christians|blacks|whites|asians|immigrants)\b`),
		},
	},
}

// SafetyFilter matches text against a fixed, ordered set of explicit-harm
// predicates. It fails closed only on these matches; anything else,
// including off-topic but benign text, is approved. No state, no learning.
type SafetyFilter struct{}

func NewSafetyFilter() *SafetyFilter {
	return &SafetyFilter{}
}

func (f *SafetyFilter) Classify(text string) SafetyResult {
	for _, rule := range safetyRules {
		for _, p := range rule.Patterns {
			if p.MatchString(text) {
				return SafetyResult{Approved: false, Reason: rule.Reason}
			}
		}
	}
	return SafetyResult{Approved: true}
}
