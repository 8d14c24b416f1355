package repository

import (
	"profense_backend/internal/model"
	"profense_backend/internal/util"

	"gorm.io/gorm"
)

type CourseRepository struct {
	DB *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{DB: db}
}

func (r *CourseRepository) Create(c *model.Course) error {
	return r.DB.Create(c).Error
}

func (r *CourseRepository) Save(c *model.Course) error {
	return r.DB.Save(c).Error
}

func (r *CourseRepository) FindByID(id string) (*model.Course, error) {
	var c model.Course
	if err := r.DB.Where("id = ?", id).First(&c).Error; err != nil {
		return nil, mapNotFound(err, util.ErrCourseNotFound)
	}
	return &c, nil
}

func (r *CourseRepository) FindBySubject(subject string) ([]model.Course, error) {
	var courses []model.Course
	err := r.DB.Where("subject = ?", subject).Find(&courses).Error
	return courses, err
}

func (r *CourseRepository) FindByOwner(userID uint, limit, offset int) ([]model.Course, int64, error) {
	var (
		courses []model.Course
		total   int64
	)
	q := r.DB.Model(&model.Course{}).Where("owner_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&courses).Error
	return courses, total, err
}

func (r *CourseRepository) Delete(id string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("course_id = ?", id).Delete(&model.CourseTopic{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Course{}).Error
	})
}

func (r *CourseRepository) FindTopics(courseID string) ([]model.CourseTopic, error) {
	var topics []model.CourseTopic
	err := r.DB.Where("course_id = ?", courseID).Order("`order` ASC").Find(&topics).Error
	return topics, err
}

func (r *CourseRepository) CreateTopic(t *model.CourseTopic) error {
	return r.DB.Create(t).Error
}
