package service

import (
	"fmt"
	"strings"

	"profense_backend/internal/model"
	"profense_backend/internal/util"
)

const (
	// Duplicate thresholds are Jaccard over normalized title tokens.
	duplicateCourseThreshold = 0.70
	duplicateTopicThreshold  = 0.75
)

type CourseStore interface {
	FindByID(id string) (*model.Course, error)
	FindBySubject(subject string) ([]model.Course, error)
	FindByOwner(userID uint, limit, offset int) ([]model.Course, int64, error)
	Create(c *model.Course) error
	Save(c *model.Course) error
	Delete(id string) error
	FindTopics(courseID string) ([]model.CourseTopic, error)
	CreateTopic(t *model.CourseTopic) error
}

// CourseService maintains the course catalog and guards it against
// near-duplicate titles using token-set similarity.
type CourseService struct {
	store      CourseStore
	similarity *SimilarityService
}

func NewCourseService(store CourseStore, similarity *SimilarityService) *CourseService {
	return &CourseService{store: store, similarity: similarity}
}

type CreateCourseRequest struct {
	Title       string `json:"title" binding:"required"`
	Subject     string `json:"subject" binding:"required"`
	Description string `json:"description"`
	Difficulty  string `json:"difficulty"`
}

func (s *CourseService) Create(userID uint, req CreateCourseRequest) (*model.Course, error) {
	title := strings.TrimSpace(req.Title)
	subject := strings.TrimSpace(req.Subject)
	if title == "" || subject == "" {
		return nil, fmt.Errorf("%w: title and subject are required", util.ErrValidation)
	}

	existing, err := s.store.FindBySubject(subject)
	if err != nil {
		return nil, err
	}
	for _, c := range existing {
		if score := s.similarity.Similarity(title, c.Title); score >= duplicateCourseThreshold {
			return nil, fmt.Errorf("%w: %q is too close to existing course %q (%.2f)",
				util.ErrDuplicateCourse, title, c.Title, score)
		}
	}

	course := &model.Course{
		OwnerID:     userID,
		Title:       title,
		Subject:     subject,
		Description: strings.TrimSpace(req.Description),
		Difficulty:  MapDifficulty(req.Difficulty),
	}
	if err := s.store.Create(course); err != nil {
		return nil, err
	}
	return course, nil
}

type AddTopicRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Order       int    `json:"order"`
}

func (s *CourseService) AddTopic(courseID string, userID uint, req AddTopicRequest) (*model.CourseTopic, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", util.ErrValidation)
	}

	course, err := s.store.FindByID(courseID)
	if err != nil {
		return nil, err
	}
	if course.OwnerID != userID {
		return nil, util.ErrPermissionDenied
	}

	topics, err := s.store.FindTopics(course.ID)
	if err != nil {
		return nil, err
	}
	for _, t := range topics {
		if score := s.similarity.Similarity(title, t.Title); score >= duplicateTopicThreshold {
			return nil, fmt.Errorf("%w: %q is too close to existing topic %q (%.2f)",
				util.ErrDuplicateTopic, title, t.Title, score)
		}
	}

	topic := &model.CourseTopic{
		CourseID:    course.ID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Order:       req.Order,
	}
	if err := s.store.CreateTopic(topic); err != nil {
		return nil, err
	}
	return topic, nil
}

func (s *CourseService) Get(id string) (*model.Course, error) {
	course, err := s.store.FindByID(id)
	if err != nil {
		return nil, err
	}
	topics, err := s.store.FindTopics(course.ID)
	if err != nil {
		return nil, err
	}
	course.Topics = topics
	return course, nil
}

func (s *CourseService) List(userID uint, limit, offset int) ([]model.Course, int64, error) {
	return s.store.FindByOwner(userID, limit, offset)
}

func (s *CourseService) Update(id string, userID uint, req CreateCourseRequest) (*model.Course, error) {
	course, err := s.store.FindByID(id)
	if err != nil {
		return nil, err
	}
	if course.OwnerID != userID {
		return nil, util.ErrPermissionDenied
	}
	if title := strings.TrimSpace(req.Title); title != "" && !strings.EqualFold(title, course.Title) {
		existing, err := s.store.FindBySubject(course.Subject)
		if err != nil {
			return nil, err
		}
		for _, c := range existing {
			if c.ID == course.ID {
				continue
			}
			if score := s.similarity.Similarity(title, c.Title); score >= duplicateCourseThreshold {
				return nil, fmt.Errorf("%w: %q is too close to existing course %q (%.2f)",
					util.ErrDuplicateCourse, title, c.Title, score)
			}
		}
		course.Title = title
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		course.Description = desc
	}
	if req.Difficulty != "" {
		course.Difficulty = MapDifficulty(req.Difficulty)
	}
	if err := s.store.Save(course); err != nil {
		return nil, err
	}
	return course, nil
}

func (s *CourseService) Delete(id string, userID uint) error {
	course, err := s.store.FindByID(id)
	if err != nil {
		return err
	}
	if course.OwnerID != userID {
		return util.ErrPermissionDenied
	}
	return s.store.Delete(course.ID)
}
