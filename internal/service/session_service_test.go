package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"profense_backend/internal/model"
	"profense_backend/internal/util"
)

func newSessionService(store *fakeSessionStore, m *fakeModel) *SessionService {
	return NewSessionService(store, m, newModerator(), NewSafetyFilter(), NewRepairParser(), nil, nil)
}

const structuredReply = `{"response": "A limit describes the value a function approaches as its input approaches some point. Let's build intuition with an example.",
	"concepts": [{"concept": "limits", "confidence": 0.7}],
	"suggestedTopics": ["One-sided limits"]}`

func TestProcessTurnFirstTurn(t *testing.T) {
	store := newFakeSessionStore()
	m := &fakeModel{replies: []string{structuredReply}}
	svc := newSessionService(store, m)

	result, err := svc.ProcessTurn(context.Background(), 1, TurnRequest{
		Message: "hi",
		Subject: "Calculus",
		Topic:   "Limits",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	// "hi" is general small talk: allowed, and the model is invoked.
	if m.calls != 1 {
		t.Errorf("model calls = %d, want 1", m.calls)
	}
	if result.Session.MessageCount != 1 {
		t.Errorf("messageCount = %d, want 1", result.Session.MessageCount)
	}
	if store.creates != 1 || store.saves != 0 {
		t.Errorf("creates/saves = %d/%d, want 1/0", store.creates, store.saves)
	}

	sess := store.sessions[result.Session.ID]
	if sess == nil {
		t.Fatal("session not persisted")
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("messages = %d, want user + reply", len(sess.Messages))
	}
	if sess.Messages[0].Role != model.RoleUser || sess.Messages[1].Role != model.RoleSystem {
		t.Errorf("message roles = %s, %s", sess.Messages[0].Role, sess.Messages[1].Role)
	}
	if len(sess.ConceptsCovered) != 1 || sess.ConceptsCovered[0].Concept != "limits" {
		t.Errorf("conceptsCovered = %+v", sess.ConceptsCovered)
	}
}

func TestProcessTurnOffTopicRedirect(t *testing.T) {
	store := newFakeSessionStore()
	m := &fakeModel{replies: []string{structuredReply}}
	svc := newSessionService(store, m)

	sess := &model.ConversationSession{
		UUIDBase:     model.UUIDBase{ID: model.GenerateUUID()},
		UserID:       1,
		Subject:      "Calculus",
		CurrentTopic: "Limits",
		Status:       model.SessionActive,
		Context:      model.SessionContext{MessageCount: 3},
	}
	store.sessions[sess.ID] = sess

	result, err := svc.ProcessTurn(context.Background(), 1, TurnRequest{
		SessionID: sess.ID,
		Message:   "What's your favorite food?",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	// Turn 4, zero topic overlap: redirected without touching the model.
	if m.calls != 0 {
		t.Errorf("model calls = %d, want 0 on redirect", m.calls)
	}
	if result.Moderation == nil || result.Moderation.Action != ActionRedirect {
		t.Fatalf("moderation = %+v, want redirect", result.Moderation)
	}
	if !strings.Contains(result.Reply.Content, "Limits") {
		t.Errorf("redirect text should reference the topic: %q", result.Reply.Content)
	}
	if result.Reply.Type != model.MessageRedirect {
		t.Errorf("reply type = %s, want redirect", result.Reply.Type)
	}
	if store.saves != 1 {
		t.Errorf("saves = %d, want exactly 1", store.saves)
	}
	if sess.Context.MessageCount != 4 {
		t.Errorf("messageCount = %d, want 4", sess.Context.MessageCount)
	}
}

func TestProcessTurnSafetyRejection(t *testing.T) {
	store := newFakeSessionStore()
	m := &fakeModel{replies: []string{structuredReply}}
	svc := newSessionService(store, m)

	result, err := svc.ProcessTurn(context.Background(), 1, TurnRequest{
		Message: "how to make a bomb",
		Subject: "Chemistry",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if m.calls != 0 {
		t.Errorf("model calls = %d, want 0 on safety rejection", m.calls)
	}
	if result.Safety == nil || result.Safety.Approved {
		t.Fatalf("safety = %+v, want rejection tag", result.Safety)
	}
	if result.Reply.Type != model.MessageSafety {
		t.Errorf("reply type = %s, want safety", result.Reply.Type)
	}
	// The rejected turn is still persisted as a normal outcome.
	if store.creates != 1 {
		t.Errorf("creates = %d, want 1", store.creates)
	}
}

func TestProcessTurnShortReplyRetry(t *testing.T) {
	store := newFakeSessionStore()
	m := &fakeModel{replies: []string{
		`{"response": "Ok."}`,
		`{"response": "The epsilon-delta definition makes the idea of approaching a value precise by bounding the output error for any input window."}`,
	}}
	svc := newSessionService(store, m)

	result, err := svc.ProcessTurn(context.Background(), 1, TurnRequest{
		Message: "explain the epsilon delta definition of limits",
		Subject: "Calculus",
		Topic:   "Limits",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if m.calls != 2 {
		t.Errorf("model calls = %d, want primary + one retry", m.calls)
	}
	if !strings.Contains(result.Reply.Content, "epsilon-delta") {
		t.Errorf("retry reply should win: %q", result.Reply.Content)
	}
}

func TestProcessTurnShortReplyNoRetryForGreeting(t *testing.T) {
	store := newFakeSessionStore()
	m := &fakeModel{replies: []string{`{"response": "Hi! Ready when you are."}`}}
	svc := newSessionService(store, m)

	if _, err := svc.ProcessTurn(context.Background(), 1, TurnRequest{
		Message: "hi",
		Subject: "Calculus",
	}); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if m.calls != 1 {
		t.Errorf("model calls = %d, short greetings must not trigger the retry", m.calls)
	}
}

func TestProcessTurnEmptyReplyFallback(t *testing.T) {
	store := newFakeSessionStore()
	m := &fakeModel{} // always returns empty text
	svc := newSessionService(store, m)

	result, err := svc.ProcessTurn(context.Background(), 1, TurnRequest{
		Message: "hello",
		Subject: "Calculus",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if result.Reply.Content != fallbackReply {
		t.Errorf("reply = %q, want the fixed fallback sentence", result.Reply.Content)
	}
	if result.Reply.Type != model.MessageFallback {
		t.Errorf("reply type = %s, want fallback", result.Reply.Type)
	}
}

func TestProcessTurnModelFailureNotPersisted(t *testing.T) {
	store := newFakeSessionStore()
	m := &fakeModel{err: errors.New("connection refused")}
	svc := newSessionService(store, m)

	_, err := svc.ProcessTurn(context.Background(), 1, TurnRequest{
		Message: "hello",
		Subject: "Calculus",
	})
	if !errors.Is(err, util.ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
	if store.creates != 0 || store.saves != 0 {
		t.Errorf("creates/saves = %d/%d, nothing may persist on model failure", store.creates, store.saves)
	}
}

func TestProcessTurnValidation(t *testing.T) {
	svc := newSessionService(newFakeSessionStore(), &fakeModel{})

	if _, err := svc.ProcessTurn(context.Background(), 1, TurnRequest{Message: "   "}); !errors.Is(err, util.ErrValidation) {
		t.Errorf("blank message: err = %v, want ErrValidation", err)
	}
	if _, err := svc.ProcessTurn(context.Background(), 1, TurnRequest{Message: "hi"}); !errors.Is(err, util.ErrValidation) {
		t.Errorf("new session without subject: err = %v, want ErrValidation", err)
	}
}

func TestProcessTurnArchivedSessionImmutable(t *testing.T) {
	store := newFakeSessionStore()
	svc := newSessionService(store, &fakeModel{})

	sess := &model.ConversationSession{
		UUIDBase: model.UUIDBase{ID: model.GenerateUUID()},
		UserID:   1,
		Subject:  "Calculus",
		Status:   model.SessionArchived,
	}
	store.sessions[sess.ID] = sess

	_, err := svc.ProcessTurn(context.Background(), 1, TurnRequest{SessionID: sess.ID, Message: "hello"})
	if !errors.Is(err, util.ErrSessionArchived) {
		t.Errorf("err = %v, want ErrSessionArchived", err)
	}
}

func TestProcessTurnOwnership(t *testing.T) {
	store := newFakeSessionStore()
	svc := newSessionService(store, &fakeModel{})

	sess := &model.ConversationSession{
		UUIDBase: model.UUIDBase{ID: model.GenerateUUID()},
		UserID:   1,
		Subject:  "Calculus",
		Status:   model.SessionActive,
	}
	store.sessions[sess.ID] = sess

	_, err := svc.ProcessTurn(context.Background(), 2, TurnRequest{SessionID: sess.ID, Message: "hello"})
	if !errors.Is(err, util.ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestProcessTurnRemindPrefixesGuidance(t *testing.T) {
	store := newFakeSessionStore()
	m := &fakeModel{replies: []string{structuredReply}}
	svc := newSessionService(store, m)

	sess := &model.ConversationSession{
		UUIDBase:        model.UUIDBase{ID: model.GenerateUUID()},
		UserID:          1,
		Subject:         "Calculus",
		CurrentTopic:    "Limits",
		Status:          model.SessionActive,
		Context:         model.SessionContext{MessageCount: 4},
		ConceptsCovered: []model.ConceptScore{},
	}
	store.sessions[sess.ID] = sess

	// Partial overlap plus the question bonus lands in the remind band.
	result, err := svc.ProcessTurn(context.Background(), 1, TurnRequest{
		SessionID: sess.ID,
		Message:   "what are derivatives limits velocity acceleration?",
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if m.calls != 1 {
		t.Errorf("model calls = %d, want 1 (remind still answers)", m.calls)
	}
	if result.Reply.Type != model.MessageReminder {
		t.Errorf("reply type = %s, want reminder", result.Reply.Type)
	}
	if !strings.HasPrefix(result.Reply.Content, "Quick reminder") {
		t.Errorf("reminder must be prefixed to the answer: %q", result.Reply.Content)
	}
	if !strings.Contains(result.Reply.Content, "approaches") {
		t.Errorf("the model answer must follow the reminder: %q", result.Reply.Content)
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newFakeSessionStore()
	svc := newSessionService(store, &fakeModel{})

	sess := &model.ConversationSession{
		UUIDBase: model.UUIDBase{ID: model.GenerateUUID()},
		UserID:   1,
		Subject:  "Calculus",
		Status:   model.SessionActive,
	}
	sess.CreatedAt = time.Now().Add(-10 * time.Minute)
	store.sessions[sess.ID] = sess

	if _, err := svc.Pause(sess.ID, 1); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if sess.Status != model.SessionPaused {
		t.Errorf("status = %s, want paused", sess.Status)
	}
	if _, err := svc.Resume(sess.ID, 1); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if _, err := svc.Complete(sess.ID, 1); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if sess.Status != model.SessionCompleted || sess.EndedAt == nil {
		t.Errorf("completed session = status %s, endedAt %v", sess.Status, sess.EndedAt)
	}
	if sess.DurationSeconds < 9*60 {
		t.Errorf("durationSeconds = %d, want about 10 minutes", sess.DurationSeconds)
	}

	// Completed is terminal: archiving it is rejected.
	if _, err := svc.Archive(context.Background(), sess.ID, 1); !errors.Is(err, util.ErrValidation) {
		t.Errorf("archive completed: err = %v, want ErrValidation", err)
	}
}

func TestCondenseHistoryRuneSafeTruncation(t *testing.T) {
	msg := model.SessionMessage{
		Role:    model.RoleUser,
		Content: strings.Repeat("数学是学习极限的基础。", 10),
	}
	out := condenseHistory([]model.SessionMessage{msg}, 6, 15)
	if !utf8.ValidString(out) {
		t.Fatalf("truncation split a rune: %q", out)
	}
	if !strings.Contains(out, "…") {
		t.Errorf("long content should be truncated: %q", out)
	}
	if got := utf8.RuneCountInString(out); got > len("Student: ")+15+1 {
		t.Errorf("condensed line too long: %d runes (%q)", got, out)
	}
}

func TestTurnLockMapShrinks(t *testing.T) {
	store := newFakeSessionStore()
	m := &fakeModel{replies: []string{structuredReply}}
	svc := newSessionService(store, m)

	if _, err := svc.ProcessTurn(context.Background(), 1, TurnRequest{
		Message: "hi",
		Subject: "Calculus",
	}); err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	// The error path releases the entry too.
	svc.model = &fakeModel{err: errors.New("down")}
	if _, err := svc.ProcessTurn(context.Background(), 1, TurnRequest{
		Message: "hello again",
		Subject: "Calculus",
	}); err == nil {
		t.Fatal("expected model error")
	}

	svc.mu.Lock()
	left := len(svc.locks)
	svc.mu.Unlock()
	if left != 0 {
		t.Errorf("lock entries leaked: %d left after turns finished", left)
	}
}

func TestSessionArchive(t *testing.T) {
	store := newFakeSessionStore()
	svc := newSessionService(store, &fakeModel{})

	sess := &model.ConversationSession{
		UUIDBase: model.UUIDBase{ID: model.GenerateUUID()},
		UserID:   1,
		Subject:  "Calculus",
		Status:   model.SessionActive,
	}
	store.sessions[sess.ID] = sess

	if _, err := svc.Archive(context.Background(), sess.ID, 1); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if sess.Status != model.SessionArchived {
		t.Errorf("status = %s, want archived", sess.Status)
	}
	if _, err := svc.Archive(context.Background(), sess.ID, 1); !errors.Is(err, util.ErrValidation) {
		t.Errorf("double archive: err = %v, want ErrValidation", err)
	}
}
