package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"profense_backend/internal/model"
	"profense_backend/internal/util"
	"profense_backend/pkg/logger"
	"profense_backend/pkg/monitoring"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	// Replies shorter than this trigger the single simplified-prompt retry.
	minUsefulReply = 50
	fallbackReply  = "I'm having trouble putting that into words right now. Could you ask that again, maybe a little more specifically?"

	turnLeaseTTL     = 30 * time.Second
	turnLeaseRetries = 20
	turnLeaseBackoff = 100 * time.Millisecond

	summaryCacheTTL = 30 * time.Minute
)

// SessionStore is the persistence collaborator: whole documents, keyed by
// id, saved atomically. Implementations map a missing row to
// util.ErrSessionNotFound.
type SessionStore interface {
	FindByID(id string) (*model.ConversationSession, error)
	FindByUser(userID uint, limit, offset int) ([]model.ConversationSession, int64, error)
	Create(sess *model.ConversationSession) error
	Save(sess *model.ConversationSession) error
}

// ModelClient is the generative model collaborator. Output carries no
// guarantees; the orchestrator and repair parser own all defenses.
type ModelClient interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// SessionService owns the conversation lifecycle. It is the only mutator
// of session documents; every turn ends in exactly one save, or none when
// the model call fails.
type SessionService struct {
	store     SessionStore
	model     ModelClient
	moderator *ModerationService
	safety    *SafetyFilter
	parser    *RepairParser
	storage   StorageProvider
	redis     *redis.Client

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is refcounted so the locks map stays bounded: the entry is
// removed once the last waiter releases it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewSessionService(store SessionStore, modelClient ModelClient, moderator *ModerationService,
	safety *SafetyFilter, parser *RepairParser, storage StorageProvider, rdb *redis.Client) *SessionService {
	return &SessionService{
		store:     store,
		model:     modelClient,
		moderator: moderator,
		safety:    safety,
		parser:    parser,
		storage:   storage,
		redis:     rdb,
		locks:     make(map[string]*sessionLock),
	}
}

type TurnRequest struct {
	SessionID    string `json:"sessionId"`
	Message      string `json:"message" binding:"required"`
	Subject      string `json:"subject"`
	Topic        string `json:"topic"`
	Difficulty   string `json:"difficulty"`
	TeachingMode string `json:"teachingMode"`
	SessionType  string `json:"sessionType"`
}

type SessionSummary struct {
	ID              string              `json:"id"`
	Subject         string              `json:"subject"`
	CurrentTopic    string              `json:"currentTopic"`
	Status          model.SessionStatus `json:"status"`
	MessageCount    int                 `json:"messageCount"`
	ConceptsCovered int                 `json:"conceptsCovered"`
	LastActivity    time.Time           `json:"lastActivity"`
}

type TurnResult struct {
	Reply      model.SessionMessage `json:"reply"`
	Session    SessionSummary       `json:"session"`
	Moderation *ModerationResult    `json:"moderation,omitempty"`
	Safety     *SafetyResult        `json:"safety,omitempty"`
}

// ProcessTurn runs one full request/response cycle. Turns for the same
// session are serialized; different sessions proceed in parallel.
func (s *SessionService) ProcessTurn(ctx context.Context, userID uint, req TurnRequest) (*TurnResult, error) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return nil, fmt.Errorf("%w: message is required", util.ErrValidation)
	}
	if req.SessionID == "" && strings.TrimSpace(req.Subject) == "" {
		return nil, fmt.Errorf("%w: subject is required for a new session", util.ErrValidation)
	}

	isNew := req.SessionID == ""
	id := req.SessionID
	if isNew {
		id = model.GenerateUUID()
	}

	unlock, err := s.lockTurn(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := time.Now()
	var sess *model.ConversationSession
	if isNew {
		sess = &model.ConversationSession{
			UUIDBase:     model.UUIDBase{ID: id},
			UserID:       userID,
			Subject:      strings.TrimSpace(req.Subject),
			CurrentTopic: strings.TrimSpace(req.Topic),
			Status:       model.SessionActive,
			Context: model.SessionContext{
				Difficulty:   req.Difficulty,
				TeachingMode: req.TeachingMode,
				SessionType:  req.SessionType,
			},
			LastActivity: now,
		}
	} else {
		sess, err = s.store.FindByID(id)
		if err != nil {
			return nil, err
		}
		if sess.UserID != userID {
			return nil, util.ErrPermissionDenied
		}
		switch sess.Status {
		case model.SessionArchived:
			return nil, util.ErrSessionArchived
		case model.SessionCompleted, model.SessionPaused:
			return nil, fmt.Errorf("%w: session is %s", util.ErrValidation, sess.Status)
		}
	}

	sess.Context.MessageCount++
	userMsg := model.SessionMessage{
		Content:   msg,
		Role:      model.RoleUser,
		Type:      model.MessageChat,
		Timestamp: now,
	}

	modRes := s.moderator.Moderate(ModerationInput{
		Message:         msg,
		Subject:         sess.Subject,
		CurrentTopic:    sess.CurrentTopic,
		RecentHistory:   transcriptContents(sess.Messages),
		ConceptsCovered: conceptNames(sess.ConceptsCovered),
		TurnNumber:      sess.Context.MessageCount,
	})
	monitoring.ModerationOutcomes.WithLabelValues(string(modRes.Action)).Inc()

	// REDIRECT is terminal for the turn: the model is never invoked.
	if modRes.Action == ActionRedirect {
		note := moderationNote(modRes)
		userMsg.Moderation = note
		reply := model.SessionMessage{
			Content:    composeGuidance(modRes),
			Role:       model.RoleSystem,
			Type:       model.MessageRedirect,
			Timestamp:  now,
			Moderation: note,
		}
		sess.Messages = append(sess.Messages, userMsg, reply)
		return s.finishTurn(isNew, sess, reply, &modRes, nil, now)
	}

	// Safety runs on the raw message; a rejection is a normal outcome.
	if verdict := s.safety.Classify(msg); !verdict.Approved {
		reply := model.SessionMessage{
			Content:   s.safetyReply(sess, verdict),
			Role:      model.RoleSystem,
			Type:      model.MessageSafety,
			Timestamp: now,
		}
		sess.Messages = append(sess.Messages, userMsg, reply)
		return s.finishTurn(isNew, sess, reply, nil, &verdict, now)
	}

	parsed, err := s.askTutor(ctx, sess, msg, modRes)
	if err != nil {
		// Nothing from this turn is persisted on a model failure.
		return nil, err
	}

	replyText := parsed.Reply
	msgType := model.MessageChat
	if strings.TrimSpace(replyText) == "" {
		replyText = fallbackReply
		msgType = model.MessageFallback
	}

	var moderation *ModerationResult
	if modRes.Action == ActionRemind {
		// Canonical composition: the reminder is prefixed to the answer.
		replyText = modRes.Guidance + "\n\n" + replyText
		msgType = model.MessageReminder
		userMsg.Moderation = moderationNote(modRes)
		moderation = &modRes
	}

	s.mergeConcepts(sess, parsed.Concepts, now)
	s.mergeSuggestedTopics(sess, parsed.SuggestedTopics)
	if topic := strings.TrimSpace(req.Topic); topic != "" && topic != sess.CurrentTopic {
		if sess.CurrentTopic != "" {
			sess.Context.PreviousConcepts = append(sess.Context.PreviousConcepts, sess.CurrentTopic)
		}
		sess.CurrentTopic = topic
	}

	reply := model.SessionMessage{
		Content:   replyText,
		Role:      model.RoleSystem,
		Type:      msgType,
		Timestamp: now,
	}
	if moderation != nil {
		reply.Moderation = moderationNote(modRes)
	}
	sess.Messages = append(sess.Messages, userMsg, reply)
	return s.finishTurn(isNew, sess, reply, moderation, nil, now)
}

// askTutor performs the primary model call and, when the answer comes
// back suspiciously short for a non-trivial question, exactly one retry
// with a simplified prompt. The retry is kept only if strictly better.
func (s *SessionService) askTutor(ctx context.Context, sess *model.ConversationSession, msg string, modRes ModerationResult) (TutorReply, error) {
	system, user := s.buildTutorPrompt(sess, msg, modRes)
	raw, err := s.model.Chat(ctx, system, user)
	if err != nil {
		return TutorReply{}, err
	}
	parsed := s.parser.ParseTutorReply(raw)

	if len(parsed.Reply) < minUsefulReply && !isGeneralMessage(msg) {
		retryRaw, retryErr := s.model.Chat(ctx, s.simplifiedPrompt(sess), msg)
		if retryErr != nil {
			// Keep the first answer; the retry is best-effort only.
			logger.Log.Warn("tutor retry failed", zap.String("session", sess.ID), zap.Error(retryErr))
			return parsed, nil
		}
		if retryParsed := s.parser.ParseTutorReply(retryRaw); len(retryParsed.Reply) > len(parsed.Reply) {
			return retryParsed, nil
		}
	}
	return parsed, nil
}

func (s *SessionService) finishTurn(isNew bool, sess *model.ConversationSession,
	reply model.SessionMessage, moderation *ModerationResult, safety *SafetyResult, now time.Time) (*TurnResult, error) {

	sess.LastActivity = now

	// The single atomic save of the turn.
	var err error
	if isNew {
		err = s.store.Create(sess)
	} else {
		err = s.store.Save(sess)
	}
	if err != nil {
		return nil, err
	}
	s.cacheSummary(sess)

	return &TurnResult{
		Reply:      reply,
		Session:    summarize(sess),
		Moderation: moderation,
		Safety:     safety,
	}, nil
}

func (s *SessionService) buildTutorPrompt(sess *model.ConversationSession, msg string, modRes ModerationResult) (string, string) {
	var b strings.Builder
	b.WriteString("You are Profense, a patient and encouraging AI tutor for ")
	b.WriteString(sess.Subject)
	b.WriteString(".")
	if sess.CurrentTopic != "" {
		fmt.Fprintf(&b, " The current topic is %q; keep the discussion anchored to it.", sess.CurrentTopic)
	}
	if sess.Context.Difficulty != "" {
		fmt.Fprintf(&b, " Pitch explanations at a %s level.", sess.Context.Difficulty)
	}
	if sess.Context.TeachingMode != "" {
		fmt.Fprintf(&b, " Teaching mode: %s.", sess.Context.TeachingMode)
	}
	if names := conceptNames(sess.ConceptsCovered); len(names) > 0 {
		fmt.Fprintf(&b, " Concepts already covered: %s.", strings.Join(names, ", "))
	}
	if modRes.Action == ActionRemind {
		b.WriteString(" The student is drifting off topic; answer, then steer back to the topic.")
	}
	b.WriteString(` Respond with only a JSON object of the shape {"response": string, "concepts": [{"concept": string, "confidence": number}], "suggestedTopics": [string]}.`)

	var user strings.Builder
	if recent := condenseHistory(sess.Messages, 6, 240); recent != "" {
		user.WriteString("Recent conversation:\n")
		user.WriteString(recent)
		user.WriteString("\n\n")
	}
	user.WriteString("Student: ")
	user.WriteString(msg)
	return b.String(), user.String()
}

func (s *SessionService) simplifiedPrompt(sess *model.ConversationSession) string {
	return fmt.Sprintf("You are a helpful %s tutor. Answer the student's question directly and plainly in a few sentences.", sess.Subject)
}

func (s *SessionService) safetyReply(sess *model.ConversationSession, verdict SafetyResult) string {
	reply := "I can't help with that here."
	if sess.CurrentTopic != "" {
		reply += fmt.Sprintf(" Let's keep our conversation focused on %s.", sess.CurrentTopic)
	} else if sess.Subject != "" {
		reply += fmt.Sprintf(" Let's keep our conversation focused on %s.", sess.Subject)
	}
	return reply
}

// mergeConcepts folds model-reported concepts into the covered set:
// confidence takes the max of old and new, timestamps refresh, new
// concepts append.
func (s *SessionService) mergeConcepts(sess *model.ConversationSession, concepts []model.ConceptScore, now time.Time) {
	for _, c := range concepts {
		name := strings.TrimSpace(c.Concept)
		if name == "" {
			continue
		}
		conf := c.Confidence
		if conf < 0 {
			conf = 0
		}
		if conf > 1 {
			conf = 1
		}

		found := false
		for i := range sess.ConceptsCovered {
			if strings.EqualFold(sess.ConceptsCovered[i].Concept, name) {
				if conf > sess.ConceptsCovered[i].Confidence {
					sess.ConceptsCovered[i].Confidence = conf
				}
				sess.ConceptsCovered[i].Timestamp = now
				found = true
				break
			}
		}
		if !found {
			sess.ConceptsCovered = append(sess.ConceptsCovered, model.ConceptScore{
				Concept:    name,
				Confidence: conf,
				Timestamp:  now,
			})
		}
	}
}

func (s *SessionService) mergeSuggestedTopics(sess *model.ConversationSession, topics []string) {
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		dup := false
		for _, existing := range sess.SuggestedTopics {
			if strings.EqualFold(existing, t) {
				dup = true
				break
			}
		}
		if !dup {
			sess.SuggestedTopics = append(sess.SuggestedTopics, t)
		}
	}
}

// ---- lifecycle ----

func (s *SessionService) Get(ctx context.Context, id string, userID uint) (*model.ConversationSession, error) {
	sess, err := s.store.FindByID(id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	return sess, nil
}

func (s *SessionService) List(userID uint, limit, offset int) ([]SessionSummary, int64, error) {
	sessions, total, err := s.store.FindByUser(userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]SessionSummary, len(sessions))
	for i := range sessions {
		out[i] = summarize(&sessions[i])
	}
	return out, total, nil
}

func (s *SessionService) Pause(id string, userID uint) (*model.ConversationSession, error) {
	return s.transition(id, userID, model.SessionActive, model.SessionPaused)
}

func (s *SessionService) Resume(id string, userID uint) (*model.ConversationSession, error) {
	return s.transition(id, userID, model.SessionPaused, model.SessionActive)
}

// Complete is terminal: it stamps the end time and total duration.
func (s *SessionService) Complete(id string, userID uint) (*model.ConversationSession, error) {
	sess, err := s.transition(id, userID, model.SessionActive, model.SessionCompleted)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	sess.EndedAt = &now
	sess.DurationSeconds = int(now.Sub(sess.CreatedAt).Seconds())
	if err := s.store.Save(sess); err != nil {
		return nil, err
	}
	s.cacheSummary(sess)
	return sess, nil
}

// Archive soft-hides any non-terminal session. When transcript storage is
// configured the full document is uploaded for retention, best effort.
func (s *SessionService) Archive(ctx context.Context, id string, userID uint) (*model.ConversationSession, error) {
	sess, err := s.store.FindByID(id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	if sess.Status == model.SessionArchived || sess.Status == model.SessionCompleted {
		return nil, fmt.Errorf("%w: cannot archive a %s session", util.ErrValidation, sess.Status)
	}

	sess.Status = model.SessionArchived
	if err := s.store.Save(sess); err != nil {
		return nil, err
	}
	s.cacheSummary(sess)

	if s.storage != nil {
		if doc, err := json.Marshal(sess); err == nil {
			name := fmt.Sprintf("transcripts/%s.json", sess.ID)
			if _, err := s.storage.Upload(ctx, name, strings.NewReader(string(doc)), int64(len(doc)), "application/json"); err != nil {
				logger.Log.Warn("transcript upload failed", zap.String("session", sess.ID), zap.Error(err))
			}
		}
	}
	return sess, nil
}

func (s *SessionService) transition(id string, userID uint, from, to model.SessionStatus) (*model.ConversationSession, error) {
	sess, err := s.store.FindByID(id)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	if sess.Status == model.SessionArchived {
		return nil, util.ErrSessionArchived
	}
	if sess.Status != from {
		return nil, fmt.Errorf("%w: session is %s, not %s", util.ErrValidation, sess.Status, from)
	}
	sess.Status = to
	if err := s.store.Save(sess); err != nil {
		return nil, err
	}
	s.cacheSummary(sess)
	return sess, nil
}

// ---- turn serialization ----

// lockTurn serializes turns for one session. The in-process mutex covers
// a single instance; when redis is configured a lease is also taken so
// multiple instances cannot interleave turns for the same session.
func (s *SessionService) lockTurn(ctx context.Context, id string) (func(), error) {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	release := func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}

	if s.redis == nil {
		return release, nil
	}

	key := "session:turn:" + id
	for i := 0; i < turnLeaseRetries; i++ {
		acquired, err := s.redis.SetNX(ctx, key, 1, turnLeaseTTL).Result()
		if err != nil {
			// Redis being down degrades to single-instance serialization.
			logger.Log.Warn("turn lease unavailable", zap.Error(err))
			return release, nil
		}
		if acquired {
			return func() {
				s.redis.Del(context.Background(), key)
				release()
			}, nil
		}
		select {
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		case <-time.After(turnLeaseBackoff):
		}
	}
	release()
	return nil, util.ErrSessionBusy
}

func (s *SessionService) cacheSummary(sess *model.ConversationSession) {
	if s.redis == nil {
		return
	}
	if data, err := json.Marshal(summarize(sess)); err == nil {
		s.redis.Set(context.Background(), "session:summary:"+sess.ID, data, summaryCacheTTL)
	}
}

// ---- helpers ----

func summarize(sess *model.ConversationSession) SessionSummary {
	return SessionSummary{
		ID:              sess.ID,
		Subject:         sess.Subject,
		CurrentTopic:    sess.CurrentTopic,
		Status:          sess.Status,
		MessageCount:    sess.Context.MessageCount,
		ConceptsCovered: len(sess.ConceptsCovered),
		LastActivity:    sess.LastActivity,
	}
}

func moderationNote(res ModerationResult) *model.ModerationNote {
	return &model.ModerationNote{
		Action: string(res.Action),
		Score:  res.Score,
		Reason: res.Reason,
	}
}

func composeGuidance(res ModerationResult) string {
	if len(res.SuggestedQuestions) == 0 {
		return res.Guidance
	}
	var b strings.Builder
	b.WriteString(res.Guidance)
	for _, q := range res.SuggestedQuestions {
		b.WriteString("\n- ")
		b.WriteString(q)
	}
	return b.String()
}

func isGeneralMessage(msg string) bool {
	msg = strings.TrimSpace(msg)
	for _, p := range generalPatterns {
		if p.MatchString(msg) {
			return true
		}
	}
	return false
}

func transcriptContents(messages []model.SessionMessage) []string {
	out := make([]string, len(messages))
	for i, m := range messages {
		out[i] = m.Content
	}
	return out
}

func conceptNames(concepts []model.ConceptScore) []string {
	out := make([]string, len(concepts))
	for i, c := range concepts {
		out[i] = c.Concept
	}
	return out
}

func condenseHistory(messages []model.SessionMessage, keep, maxLen int) string {
	start := len(messages) - keep
	if start < 0 {
		start = 0
	}
	var b strings.Builder
	for _, m := range messages[start:] {
		content := m.Content
		if r := []rune(content); len(r) > maxLen {
			content = string(r[:maxLen]) + "…"
		}
		role := "Student"
		if m.Role == model.RoleSystem {
			role = "Tutor"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, content)
	}
	return strings.TrimRight(b.String(), "\n")
}
