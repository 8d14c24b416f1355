package repository

import (
	"profense_backend/internal/model"
	"profense_backend/internal/util"

	"gorm.io/gorm"
)

type SessionRepository struct {
	DB *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{DB: db}
}

func (r *SessionRepository) Create(sess *model.ConversationSession) error {
	return r.DB.Create(sess).Error
}

// Save writes the whole document back in one statement; partial updates
// are never issued for sessions.
func (r *SessionRepository) Save(sess *model.ConversationSession) error {
	return r.DB.Save(sess).Error
}

func (r *SessionRepository) FindByID(id string) (*model.ConversationSession, error) {
	var sess model.ConversationSession
	if err := r.DB.Where("id = ?", id).First(&sess).Error; err != nil {
		return nil, mapNotFound(err, util.ErrSessionNotFound)
	}
	return &sess, nil
}

// FindByUser lists a learner's sessions, newest activity first, with
// archived sessions excluded.
func (r *SessionRepository) FindByUser(userID uint, limit, offset int) ([]model.ConversationSession, int64, error) {
	var (
		sessions []model.ConversationSession
		total    int64
	)
	q := r.DB.Model(&model.ConversationSession{}).
		Where("user_id = ? AND status <> ?", userID, model.SessionArchived)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("last_activity DESC").Limit(limit).Offset(offset).Find(&sessions).Error
	return sessions, total, err
}
