package repository

import (
	"profense_backend/internal/model"
	"profense_backend/internal/util"

	"gorm.io/gorm"
)

type AssessmentRepository struct {
	DB *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{DB: db}
}

func (r *AssessmentRepository) Create(a *model.Assessment) error {
	return r.DB.Create(a).Error
}

func (r *AssessmentRepository) FindByID(id string) (*model.Assessment, error) {
	var a model.Assessment
	if err := r.DB.Where("id = ?", id).First(&a).Error; err != nil {
		return nil, mapNotFound(err, util.ErrAssessmentNotFound)
	}
	return &a, nil
}

func (r *AssessmentRepository) FindByCreator(userID uint, limit, offset int) ([]model.Assessment, int64, error) {
	var (
		assessments []model.Assessment
		total       int64
	)
	q := r.DB.Model(&model.Assessment{}).Where("creator_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&assessments).Error
	return assessments, total, err
}

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) Create(at *model.AssessmentAttempt) error {
	return r.DB.Create(at).Error
}

func (r *AttemptRepository) Save(at *model.AssessmentAttempt) error {
	return r.DB.Save(at).Error
}

func (r *AttemptRepository) FindByID(id string) (*model.AssessmentAttempt, error) {
	var at model.AssessmentAttempt
	if err := r.DB.Where("id = ?", id).First(&at).Error; err != nil {
		return nil, mapNotFound(err, util.ErrAttemptNotFound)
	}
	return &at, nil
}

func (r *AttemptRepository) FindByUser(userID uint, assessmentID string) ([]model.AssessmentAttempt, error) {
	var attempts []model.AssessmentAttempt
	err := r.DB.Where("user_id = ? AND assessment_id = ?", userID, assessmentID).
		Order("started_at DESC").Find(&attempts).Error
	return attempts, err
}

func (r *AttemptRepository) CountCompleted(assessmentID string, userID uint) (int64, error) {
	var count int64
	err := r.DB.Model(&model.AssessmentAttempt{}).
		Where("assessment_id = ? AND user_id = ? AND status = ?", assessmentID, userID, model.AttemptCompleted).
		Count(&count).Error
	return count, err
}
