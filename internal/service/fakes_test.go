package service

import (
	"context"
	"fmt"
	"strings"

	"profense_backend/internal/model"
	"profense_backend/internal/util"
)

// fakeModel scripts Chat responses in order; the last reply repeats.
type fakeModel struct {
	replies []string
	err     error
	calls   int
	prompts []string
}

func (f *fakeModel) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, systemPrompt+"\n"+userPrompt)
	if f.err != nil {
		return "", fmt.Errorf("%w: %v", util.ErrModelUnavailable, f.err)
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

func (f *fakeModel) lastPrompt() string {
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type fakeSessionStore struct {
	sessions map[string]*model.ConversationSession
	creates  int
	saves    int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*model.ConversationSession)}
}

func (s *fakeSessionStore) FindByID(id string) (*model.ConversationSession, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, util.ErrSessionNotFound
	}
	return sess, nil
}

func (s *fakeSessionStore) FindByUser(userID uint, limit, offset int) ([]model.ConversationSession, int64, error) {
	var out []model.ConversationSession
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Status != model.SessionArchived {
			out = append(out, *sess)
		}
	}
	return out, int64(len(out)), nil
}

func (s *fakeSessionStore) Create(sess *model.ConversationSession) error {
	s.creates++
	s.sessions[sess.ID] = sess
	return nil
}

func (s *fakeSessionStore) Save(sess *model.ConversationSession) error {
	s.saves++
	s.sessions[sess.ID] = sess
	return nil
}

type fakeAssessmentStore struct {
	assessments map[string]*model.Assessment
	creates     int
}

func newFakeAssessmentStore() *fakeAssessmentStore {
	return &fakeAssessmentStore{assessments: make(map[string]*model.Assessment)}
}

func (s *fakeAssessmentStore) FindByID(id string) (*model.Assessment, error) {
	a, ok := s.assessments[id]
	if !ok {
		return nil, util.ErrAssessmentNotFound
	}
	return a, nil
}

func (s *fakeAssessmentStore) FindByCreator(userID uint, limit, offset int) ([]model.Assessment, int64, error) {
	var out []model.Assessment
	for _, a := range s.assessments {
		if a.CreatorID == userID {
			out = append(out, *a)
		}
	}
	return out, int64(len(out)), nil
}

func (s *fakeAssessmentStore) Create(a *model.Assessment) error {
	s.creates++
	if a.ID == "" {
		a.ID = model.GenerateUUID()
	}
	s.assessments[a.ID] = a
	return nil
}

type fakeAttemptStore struct {
	attempts map[string]*model.AssessmentAttempt
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: make(map[string]*model.AssessmentAttempt)}
}

func (s *fakeAttemptStore) FindByID(id string) (*model.AssessmentAttempt, error) {
	at, ok := s.attempts[id]
	if !ok {
		return nil, util.ErrAttemptNotFound
	}
	return at, nil
}

func (s *fakeAttemptStore) FindByUser(userID uint, assessmentID string) ([]model.AssessmentAttempt, error) {
	var out []model.AssessmentAttempt
	for _, at := range s.attempts {
		if at.UserID == userID && at.AssessmentID == assessmentID {
			out = append(out, *at)
		}
	}
	return out, nil
}

func (s *fakeAttemptStore) CountCompleted(assessmentID string, userID uint) (int64, error) {
	var count int64
	for _, at := range s.attempts {
		if at.AssessmentID == assessmentID && at.UserID == userID && at.Status == model.AttemptCompleted {
			count++
		}
	}
	return count, nil
}

func (s *fakeAttemptStore) Create(at *model.AssessmentAttempt) error {
	if at.ID == "" {
		at.ID = model.GenerateUUID()
	}
	s.attempts[at.ID] = at
	return nil
}

func (s *fakeAttemptStore) Save(at *model.AssessmentAttempt) error {
	s.attempts[at.ID] = at
	return nil
}

type fakeCourseStore struct {
	courses map[string]*model.Course
	topics  map[string][]model.CourseTopic
}

func newFakeCourseStore() *fakeCourseStore {
	return &fakeCourseStore{
		courses: make(map[string]*model.Course),
		topics:  make(map[string][]model.CourseTopic),
	}
}

func (s *fakeCourseStore) FindByID(id string) (*model.Course, error) {
	c, ok := s.courses[id]
	if !ok {
		return nil, util.ErrCourseNotFound
	}
	return c, nil
}

func (s *fakeCourseStore) FindBySubject(subject string) ([]model.Course, error) {
	var out []model.Course
	for _, c := range s.courses {
		if strings.EqualFold(c.Subject, subject) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *fakeCourseStore) FindByOwner(userID uint, limit, offset int) ([]model.Course, int64, error) {
	var out []model.Course
	for _, c := range s.courses {
		if c.OwnerID == userID {
			out = append(out, *c)
		}
	}
	return out, int64(len(out)), nil
}

func (s *fakeCourseStore) Create(c *model.Course) error {
	if c.ID == "" {
		c.ID = model.GenerateUUID()
	}
	s.courses[c.ID] = c
	return nil
}

func (s *fakeCourseStore) Save(c *model.Course) error {
	s.courses[c.ID] = c
	return nil
}

func (s *fakeCourseStore) Delete(id string) error {
	delete(s.courses, id)
	delete(s.topics, id)
	return nil
}

func (s *fakeCourseStore) FindTopics(courseID string) ([]model.CourseTopic, error) {
	return s.topics[courseID], nil
}

func (s *fakeCourseStore) CreateTopic(t *model.CourseTopic) error {
	if t.ID == "" {
		t.ID = model.GenerateUUID()
	}
	s.topics[t.CourseID] = append(s.topics[t.CourseID], *t)
	return nil
}
