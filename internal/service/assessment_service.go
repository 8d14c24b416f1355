package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"profense_backend/internal/model"
	"profense_backend/internal/util"
)

const (
	// Hard cap on requested questions. Larger generations routinely come
	// back truncated, which is worse than a shorter assessment.
	maxQuestionCount     = 6
	defaultQuestionCount = 5

	defaultPassingScore = 70
	defaultMaxAttempts  = 3

	// Numerical answers must be strictly inside the tolerance.
	numericTolerance = 0.01

	// An attempt left open longer than this is timed out on submission.
	attemptTimeLimit = 2 * time.Hour
)

type AssessmentStore interface {
	FindByID(id string) (*model.Assessment, error)
	FindByCreator(userID uint, limit, offset int) ([]model.Assessment, int64, error)
	Create(a *model.Assessment) error
}

type AttemptStore interface {
	FindByID(id string) (*model.AssessmentAttempt, error)
	FindByUser(userID uint, assessmentID string) ([]model.AssessmentAttempt, error)
	CountCompleted(assessmentID string, userID uint) (int64, error)
	Create(at *model.AssessmentAttempt) error
	Save(at *model.AssessmentAttempt) error
}

// AssessmentService generates assessments from conversation context and
// grades attempts against them.
type AssessmentService struct {
	assessments AssessmentStore
	attempts    AttemptStore
	sessions    SessionStore
	model       ModelClient
	parser      *RepairParser
}

func NewAssessmentService(assessments AssessmentStore, attempts AttemptStore,
	sessions SessionStore, modelClient ModelClient, parser *RepairParser) *AssessmentService {
	return &AssessmentService{
		assessments: assessments,
		attempts:    attempts,
		sessions:    sessions,
		model:       modelClient,
		parser:      parser,
	}
}

type GenerateRequest struct {
	SessionID     string   `json:"sessionId"`
	Subject       string   `json:"subject"`
	Topic         string   `json:"topic" binding:"required"`
	Difficulty    string   `json:"difficulty"`
	QuestionCount int      `json:"questionCount"`
	QuestionTypes []string `json:"questionTypes"`
}

// Generate builds the model request, repairs whatever comes back into a
// valid question set, and persists the assessment. Malformed model output
// degrades to flagged placeholder questions; only a transport failure is
// an error.
func (s *AssessmentService) Generate(ctx context.Context, userID uint, req GenerateRequest) (*model.Assessment, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", util.ErrValidation)
	}

	count := req.QuestionCount
	if count <= 0 {
		count = defaultQuestionCount
	}
	if count > maxQuestionCount {
		count = maxQuestionCount
	}

	subject := strings.TrimSpace(req.Subject)
	genCtx := model.GenerationContext{}
	var sess *model.ConversationSession
	if req.SessionID != "" {
		var err error
		sess, err = s.sessions.FindByID(req.SessionID)
		if err != nil {
			return nil, err
		}
		if sess.UserID != userID {
			return nil, util.ErrPermissionDenied
		}
		if subject == "" {
			subject = sess.Subject
		}
		genCtx = model.GenerationContext{
			SourceSessionID:     sess.ID,
			ConceptsCovered:     conceptNames(sess.ConceptsCovered),
			ConversationSummary: condenseHistory(sess.Messages, 10, 200),
		}
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", util.ErrValidation)
	}

	difficulty := MapDifficulty(req.Difficulty)
	system, user := buildGenerationPrompt(subject, topic, difficulty, count, req.QuestionTypes, genCtx)

	raw, err := s.model.Chat(ctx, system, user)
	if err != nil {
		return nil, err
	}
	parsed := s.parser.ParseAssessment(raw, topic)

	passing := parsed.PassingScore
	if passing <= 0 {
		passing = defaultPassingScore
	}
	assessment := &model.Assessment{
		CreatorID:         userID,
		Subject:           subject,
		Topic:             topic,
		Difficulty:        firstNonEmpty(MapDifficulty(parsed.Difficulty), difficulty),
		Questions:         parsed.Questions,
		PassingScore:      passing,
		MaxAttempts:       defaultMaxAttempts,
		IsFallback:        parsed.Fallback,
		GenerationContext: genCtx,
	}
	if err := s.assessments.Create(assessment); err != nil {
		return nil, err
	}

	if sess != nil {
		sess.AssessmentIDs = append(sess.AssessmentIDs, assessment.ID)
		if err := s.sessions.Save(sess); err != nil {
			return nil, err
		}
	}
	return assessment, nil
}

func buildGenerationPrompt(subject, topic, difficulty string, count int, types []string, genCtx model.GenerationContext) (string, string) {
	var b strings.Builder
	b.WriteString("You are an assessment author for a tutoring platform. ")
	b.WriteString(`Respond with only a JSON object: {"title": string, "difficulty": string, "passingScore": number, "questions": [{"id", "type", "question", "options": [{"id","text","correct"}], "correctAnswer", "explanation", "points", "concepts"}]}. `)
	b.WriteString("Question types: multiple-choice, numerical, text, true-false.")

	var u strings.Builder
	fmt.Fprintf(&u, "Write %d %s-level questions on %q for the subject %s.", count, difficulty, topic, subject)
	if len(types) > 0 {
		fmt.Fprintf(&u, " Use these question types: %s.", strings.Join(types, ", "))
	}
	if len(genCtx.ConceptsCovered) > 0 {
		fmt.Fprintf(&u, " Focus on concepts the student has covered: %s.", strings.Join(genCtx.ConceptsCovered, ", "))
	}
	if genCtx.ConversationSummary != "" {
		fmt.Fprintf(&u, "\n\nRecent conversation for context:\n%s", genCtx.ConversationSummary)
	}
	return b.String(), u.String()
}

// Get returns the full assessment to its creator. Anyone else gets the
// learner view with the answer key stripped, since attempts are open to
// all learners.
func (s *AssessmentService) Get(id string, userID uint) (*model.Assessment, error) {
	a, err := s.assessments.FindByID(id)
	if err != nil {
		return nil, err
	}
	if a.CreatorID != userID {
		return stripAnswers(a), nil
	}
	return a, nil
}

func stripAnswers(a *model.Assessment) *model.Assessment {
	out := *a
	out.Questions = make([]model.Question, len(a.Questions))
	for i, q := range a.Questions {
		q.CorrectAnswer = ""
		q.Explanation = ""
		if len(q.Options) > 0 {
			opts := make([]model.QuestionOption, len(q.Options))
			for j, opt := range q.Options {
				opt.Correct = false
				opts[j] = opt
			}
			q.Options = opts
		}
		out.Questions[i] = q
	}
	return &out
}

func (s *AssessmentService) List(userID uint, limit, offset int) ([]model.Assessment, int64, error) {
	return s.assessments.FindByCreator(userID, limit, offset)
}

// StartAttempt opens a new graded attempt. It is rejected once the
// learner's completed attempts already equal the assessment's limit.
func (s *AssessmentService) StartAttempt(assessmentID string, userID uint) (*model.AssessmentAttempt, error) {
	assessment, err := s.assessments.FindByID(assessmentID)
	if err != nil {
		return nil, err
	}

	completed, err := s.attempts.CountCompleted(assessment.ID, userID)
	if err != nil {
		return nil, err
	}
	if int(completed) >= assessment.MaxAttempts {
		return nil, util.ErrMaxAttemptsExceeded
	}

	attempt := &model.AssessmentAttempt{
		AssessmentID: assessment.ID,
		UserID:       userID,
		StartedAt:    time.Now(),
		Status:       model.AttemptInProgress,
	}
	if err := s.attempts.Create(attempt); err != nil {
		return nil, err
	}
	return attempt, nil
}

type SubmittedAnswer struct {
	QuestionID string `json:"questionId" binding:"required"`
	Answer     string `json:"answer"`
	TimeSpent  int    `json:"timeSpent"`
}

type AttemptResult struct {
	Attempt  *model.AssessmentAttempt `json:"attempt"`
	Passed   bool                     `json:"passed"`
	Analysis AttemptAnalysis          `json:"analysis"`
}

type AttemptAnalysis struct {
	CorrectCount int      `json:"correctCount"`
	TotalCount   int      `json:"totalCount"`
	WeakConcepts []string `json:"weakConcepts"`
}

// SubmitAttempt grades the answers, stamps the aggregate score, and
// completes the attempt. Unanswered questions are graded incorrect.
func (s *AssessmentService) SubmitAttempt(attemptID string, userID uint, answers []SubmittedAnswer) (*AttemptResult, error) {
	attempt, err := s.attempts.FindByID(attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	if attempt.Status != model.AttemptInProgress {
		return nil, fmt.Errorf("%w: attempt is already %s", util.ErrValidation, attempt.Status)
	}
	if time.Since(attempt.StartedAt) > attemptTimeLimit {
		now := time.Now()
		attempt.Status = model.AttemptTimedOut
		attempt.CompletedAt = &now
		if err := s.attempts.Save(attempt); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: attempt timed out", util.ErrValidation)
	}
	assessment, err := s.assessments.FindByID(attempt.AssessmentID)
	if err != nil {
		return nil, err
	}

	byQuestion := make(map[string]SubmittedAnswer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	var (
		earned  int
		correct int
		graded  []model.AttemptAnswer
		missed  = map[string]struct{}{}
	)
	for _, q := range assessment.Questions {
		ans := byQuestion[q.ID]
		ok := scoreQuestion(q, ans.Answer)
		if ok {
			earned += q.Points
			correct++
		} else {
			for _, c := range q.Concepts {
				missed[c] = struct{}{}
			}
		}
		graded = append(graded, model.AttemptAnswer{
			QuestionID: q.ID,
			UserAnswer: ans.Answer,
			IsCorrect:  ok,
			TimeSpent:  ans.TimeSpent,
		})
	}

	// The percentage counts questions, not points; points only feed the
	// raw score.
	percentage := 0.0
	if n := len(assessment.Questions); n > 0 {
		percentage = math.Round(float64(correct)/float64(n)*100*100) / 100
	}

	now := time.Now()
	attempt.Answers = graded
	attempt.Score = model.AttemptScore{
		Raw:        earned,
		Percentage: percentage,
		Grade:      gradeFor(percentage),
	}
	attempt.CompletedAt = &now
	attempt.Status = model.AttemptCompleted
	if err := s.attempts.Save(attempt); err != nil {
		return nil, err
	}

	weak := make([]string, 0, len(missed))
	for c := range missed {
		weak = append(weak, c)
	}
	sort.Strings(weak)

	return &AttemptResult{
		Attempt: attempt,
		Passed:  percentage >= float64(assessment.PassingScore),
		Analysis: AttemptAnalysis{
			CorrectCount: correct,
			TotalCount:   len(assessment.Questions),
			WeakConcepts: weak,
		},
	}, nil
}

// Abandon closes an attempt without grading it.
func (s *AssessmentService) Abandon(attemptID string, userID uint) (*model.AssessmentAttempt, error) {
	attempt, err := s.attempts.FindByID(attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	if attempt.Status != model.AttemptInProgress {
		return nil, fmt.Errorf("%w: attempt is already %s", util.ErrValidation, attempt.Status)
	}
	attempt.Status = model.AttemptAbandoned
	if err := s.attempts.Save(attempt); err != nil {
		return nil, err
	}
	return attempt, nil
}

func (s *AssessmentService) Attempts(assessmentID string, userID uint) ([]model.AssessmentAttempt, error) {
	return s.attempts.FindByUser(userID, assessmentID)
}

// scoreQuestion decides correctness per question type.
func scoreQuestion(q model.Question, userAnswer string) bool {
	answer := strings.TrimSpace(userAnswer)
	if answer == "" {
		return false
	}

	switch q.Type {
	case model.QuestionMultipleChoice:
		for _, opt := range q.Options {
			if opt.Correct {
				return strings.EqualFold(answer, opt.ID) || strings.EqualFold(answer, strings.TrimSpace(opt.Text))
			}
		}
		return false
	case model.QuestionNumerical:
		user, err := strconv.ParseFloat(answer, 64)
		if err != nil {
			return false
		}
		want, err := strconv.ParseFloat(strings.TrimSpace(q.CorrectAnswer), 64)
		if err != nil {
			return false
		}
		// Round to 9 decimals first so inputs compare by their written
		// decimal value: 3.15 vs 3.14 differs by exactly 0.01, which the
		// strict tolerance must reject.
		diff := math.Round(math.Abs(user-want)*1e9) / 1e9
		return diff < numericTolerance
	default: // text, true-false
		return strings.EqualFold(answer, strings.TrimSpace(q.CorrectAnswer))
	}
}

// gradeFor maps a percentage onto letter grades.
func gradeFor(percentage float64) string {
	switch {
	case percentage >= 97:
		return "A+"
	case percentage >= 93:
		return "A"
	case percentage >= 90:
		return "A-"
	case percentage >= 87:
		return "B+"
	case percentage >= 83:
		return "B"
	case percentage >= 80:
		return "B-"
	case percentage >= 77:
		return "C+"
	case percentage >= 73:
		return "C"
	case percentage >= 70:
		return "C-"
	case percentage >= 60:
		return "D"
	default:
		return "F"
	}
}
