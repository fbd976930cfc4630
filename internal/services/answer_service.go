package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"

	"github.com/Soln1shko/AI-HR/internal/models"
	pgrepo "github.com/Soln1shko/AI-HR/internal/repositories/postgres"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

type AnswerService interface {
	Record(ctx context.Context, turn models.InterviewTurn) (*models.AnswerLog, error)
	List(ctx context.Context, interviewID string) ([]models.AnswerLog, error)
}

type answerService struct {
	answers pgrepo.AnswerRepo
}

func NewAnswerService(answers pgrepo.AnswerRepo) AnswerService {
	return &answerService{answers: answers}
}

func (s *answerService) Record(ctx context.Context, turn models.InterviewTurn) (*models.AnswerLog, error) {
	const op = "AnswerService.Record"

	if turn.InterviewID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview_id is required", nil)
	}

	row := &models.AnswerLog{
		ID:            uuid.NewString(),
		InterviewID:   turn.InterviewID,
		MLInterviewID: turn.MLInterviewID,
		TurnIndex:     turn.Index,
		Question:      turn.Question,
		AnswerText:    turn.AnswerText,
		VideoID:       turn.VideoID,
		Tags:          pq.StringArray{},
		Scores:        datatypes.JSON("{}"),
		SubmittedAt:   time.Now().UTC(),
	}
	if a := turn.Analysis.Normalized(); a != nil {
		row.Tags = pq.StringArray(a.Tags)
		raw, err := json.Marshal(a.Scores)
		if err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to encode scores", err)
		}
		row.Scores = datatypes.JSON(raw)
		row.OverallScore = a.OverallScore
	}

	if err := s.answers.Insert(ctx, row); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to insert answer", err)
	}
	return row, nil
}

func (s *answerService) List(ctx context.Context, interviewID string) ([]models.AnswerLog, error) {
	const op = "AnswerService.List"

	if interviewID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview_id is required", nil)
	}
	rows, err := s.answers.ListByInterview(ctx, interviewID, 0)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list answers", err)
	}
	return rows, nil
}
