package postgres

import (
	"context"
	"errors"

	"github.com/Soln1shko/AI-HR/internal/models"
	"github.com/Soln1shko/AI-HR/internal/utils"
	"gorm.io/gorm"
)

type AnswerRepo interface {
	Insert(ctx context.Context, a *models.AnswerLog) error
	ListByInterview(ctx context.Context, interviewID string, limit int) ([]models.AnswerLog, error)
	CountByInterview(ctx context.Context, interviewID string) (int64, error)
	GetByID(ctx context.Context, id string) (*models.AnswerLog, error)
}

type answerRepo struct {
	db *gorm.DB
}

func NewAnswerRepo(db *gorm.DB) AnswerRepo {
	return &answerRepo{db: db}
}

func (r *answerRepo) Insert(ctx context.Context, a *models.AnswerLog) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *answerRepo) ListByInterview(ctx context.Context, interviewID string, limit int) ([]models.AnswerLog, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []models.AnswerLog
	err := r.db.WithContext(ctx).
		Where("interview_id = ?", interviewID).
		Order("turn_index ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *answerRepo) CountByInterview(ctx context.Context, interviewID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&models.AnswerLog{}).
		Where("interview_id = ?", interviewID).
		Count(&n).Error
	return n, err
}

func (r *answerRepo) GetByID(ctx context.Context, id string) (*models.AnswerLog, error) {
	var row models.AnswerLog
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &row, err
}
