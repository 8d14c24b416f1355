package service

import (
	"fmt"
	"regexp"
	"strings"
)

type ModerationAction string

const (
	ActionAllow    ModerationAction = "allow"
	ActionRemind   ModerationAction = "remind"
	ActionRedirect ModerationAction = "redirect"
)

// Empirical tuning constants. Do not retune casually: downstream behavior
// is tested against these exact values.
const (
	remindThreshold  = 0.3
	allowThreshold   = 0.6
	backRefThreshold = 0.4
	questionBonus    = 0.2
	topicWeight      = 0.6
	subjectWeight    = 0.3
	discoveryTurns   = 3
	backRefWindow    = 3
)

// generalPatterns match small talk and meta questions that are always let
// through without scoring.
var generalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(hi|hello|hey|yo|howdy|greetings)\b`),
	regexp.MustCompile(`(?i)^good\s+(morning|afternoon|evening|night)\b`),
	regexp.MustCompile(`(?i)\b(thank\s+you|thanks|thx)\b`),
	regexp.MustCompile(`(?i)^(bye|goodbye|farewell|see\s+you)\b`),
	regexp.MustCompile(`(?i)\bwhat\s+can\s+you\s+do\b`),
	regexp.MustCompile(`(?i)\bwho\s+are\s+you\b`),
	regexp.MustCompile(`(?i)^how\s+are\s+you\b`),
	regexp.MustCompile(`(?i)^(ok|okay|yes|no|sure|cool|great|nice)[.!]*$`),
}

// backRefPatterns detect contextual follow-ups that lean on the previous
// exchange instead of naming the topic again.
var backRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(it|this|that|them|those)\b`),
	regexp.MustCompile(`(?i)\b(continue|go\s+on|keep\s+going|again|elaborate|expand)\b`),
	regexp.MustCompile(`(?i)\b(tell\s+me\s+more|more\s+(on|about)|what\s+about)\b`),
	regexp.MustCompile(`(?i)\bfor\s+(it|this|that)\b`),
}

var questionIndicator = regexp.MustCompile(
	`(?i)\b(what|how|why|explain|tell|show|help|understand|learn|teach|define|describe)\b`)

type ModerationInput struct {
	Message         string
	Subject         string
	CurrentTopic    string
	RecentHistory   []string // transcript contents, newest last
	ConceptsCovered []string
	TurnNumber      int // 1-based user-turn counter
}

// ModerationResult is a normal outcome, never an error. Score is in [0,1].
type ModerationResult struct {
	Action             ModerationAction `json:"action"`
	Score              float64          `json:"score"`
	Reason             string           `json:"reason,omitempty"`
	Guidance           string           `json:"guidance,omitempty"`
	SuggestedQuestions []string         `json:"suggestedQuestions,omitempty"`
}

// ModerationService keeps a conversation anchored to its declared topic
// before anything reaches the model. Stateless; session context comes in
// as an explicit argument.
type ModerationService struct {
	sim *SimilarityService
}

func NewModerationService(sim *SimilarityService) *ModerationService {
	return &ModerationService{sim: sim}
}

func (m *ModerationService) Moderate(in ModerationInput) ModerationResult {
	msg := strings.TrimSpace(in.Message)

	// Bypasses: scoring is skipped entirely.
	for _, p := range generalPatterns {
		if p.MatchString(msg) {
			return ModerationResult{Action: ActionAllow, Score: 1.0, Reason: "general conversation"}
		}
	}
	if in.TurnNumber <= discoveryTurns {
		return ModerationResult{Action: ActionAllow, Score: 1.0, Reason: "discovery phase"}
	}
	if strings.TrimSpace(in.CurrentTopic) == "" {
		return ModerationResult{Action: ActionAllow, Score: 1.0, Reason: "no topic set"}
	}

	topicSet := m.topicKeywords(in)
	subjectSet := m.sim.Tokens(in.Subject, true)

	// Contextual back-reference: a follow-up like "explain that again" is
	// allowed when the recent exchange was itself on topic.
	if m.looksLikeBackRef(msg) && len(in.RecentHistory) > 0 {
		if score := m.historyScore(in.RecentHistory, topicSet, subjectSet); score >= backRefThreshold {
			return ModerationResult{Action: ActionAllow, Score: score, Reason: "anchored follow-up"}
		}
	}

	score := m.primaryScore(msg, topicSet, subjectSet)
	action := m.decide(score)

	res := ModerationResult{Action: action, Score: score}
	switch action {
	case ActionRemind:
		res.Reason = "drifting from topic"
		res.Guidance = fmt.Sprintf("Quick reminder — we're focusing on %s right now. I'll answer, and then let's tie it back to our topic.", in.CurrentTopic)
		res.SuggestedQuestions = m.suggestedQuestions(in.CurrentTopic, in.Subject)
	case ActionRedirect:
		res.Reason = "off topic"
		res.Guidance = fmt.Sprintf("That's an interesting thought, but it's outside what we're studying. Let's get back to %s — here are some questions to keep us moving:", in.CurrentTopic)
		res.SuggestedQuestions = m.suggestedQuestions(in.CurrentTopic, in.Subject)
	}
	return res
}

// topicKeywords builds the anchor set from the current topic plus every
// concept covered so far.
func (m *ModerationService) topicKeywords(in ModerationInput) map[string]struct{} {
	set := m.sim.Tokens(in.CurrentTopic, true)
	for _, c := range in.ConceptsCovered {
		for w := range m.sim.Tokens(c, true) {
			set[w] = struct{}{}
		}
	}
	return set
}

func (m *ModerationService) looksLikeBackRef(msg string) bool {
	for _, p := range backRefPatterns {
		if p.MatchString(msg) {
			return true
		}
	}
	return false
}

// historyScore scores the last few transcript entries against the combined
// topic and subject keywords and keeps the best one: a single on-topic
// anchor is enough to treat the follow-up as anchored.
func (m *ModerationService) historyScore(history []string, topicSet, subjectSet map[string]struct{}) float64 {
	anchor := make(map[string]struct{}, len(topicSet)+len(subjectSet))
	for w := range topicSet {
		anchor[w] = struct{}{}
	}
	for w := range subjectSet {
		anchor[w] = struct{}{}
	}
	if len(anchor) == 0 {
		return 0
	}

	start := len(history) - backRefWindow
	if start < 0 {
		start = 0
	}
	best := 0.0
	for _, entry := range history[start:] {
		tokens := m.sim.Tokens(entry, true)
		if len(tokens) == 0 {
			continue
		}
		if score := m.sim.Jaccard(tokens, anchor); score > best {
			best = score
		}
	}
	return best
}

func (m *ModerationService) primaryScore(msg string, topicSet, subjectSet map[string]struct{}) float64 {
	tokens := m.sim.Tokens(msg, true)

	topicScore := 0.0
	if len(topicSet) > 0 {
		topicScore = m.sim.Jaccard(tokens, topicSet)
	}
	subjectScore := 0.0
	if len(subjectSet) > 0 {
		subjectScore = m.sim.Jaccard(tokens, subjectSet)
	}

	score := topicWeight*topicScore + subjectWeight*subjectScore
	if questionIndicator.MatchString(msg) {
		score += questionBonus
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// decide maps a relevance score onto an action. Bands are inclusive at
// the low end: 0.30 reminds, 0.60 allows.
func (m *ModerationService) decide(score float64) ModerationAction {
	switch {
	case score >= allowThreshold:
		return ActionAllow
	case score >= remindThreshold:
		return ActionRemind
	default:
		return ActionRedirect
	}
}

func (m *ModerationService) suggestedQuestions(topic, subject string) []string {
	qs := []string{
		fmt.Sprintf("What is %s?", topic),
		fmt.Sprintf("Can you explain the key ideas behind %s?", topic),
	}
	if subject != "" {
		qs = append(qs, fmt.Sprintf("How is %s used in %s?", topic, subject))
	} else {
		qs = append(qs, fmt.Sprintf("Can you walk me through an example of %s?", topic))
	}
	return qs
}
