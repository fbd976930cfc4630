package services

import (
	"context"
	"errors"
	"time"

	"github.com/Soln1shko/AI-HR/internal/models"
	mongorepo "github.com/Soln1shko/AI-HR/internal/repositories/mongo"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

type SessionService interface {
	Start(ctx context.Context, interviewID, vacancyID string) (*models.InterviewSession, error)
	Get(ctx context.Context, interviewID string) (*models.InterviewSession, error)
	SetPhase(ctx context.Context, interviewID, phase string) error
	RecordTurn(ctx context.Context, interviewID, mlInterviewID string) error
	End(ctx context.Context, interviewID, status string) (*models.InterviewSession, error)
}

type sessionService struct {
	sessions mongorepo.SessionRepository
	now      func() time.Time
}

func NewSessionService(sessions mongorepo.SessionRepository) SessionService {
	return &sessionService{sessions: sessions, now: time.Now}
}

func (s *sessionService) Start(ctx context.Context, interviewID, vacancyID string) (*models.InterviewSession, error) {
	const op = "SessionService.Start"

	if interviewID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview_id is required", nil)
	}

	session := &models.InterviewSession{
		InterviewID: interviewID,
		VacancyID:   vacancyID,
		Status:      models.SessionActive,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		if utils.IsCode(err, utils.CodeConflict) {
			return nil, err
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to create session", err)
	}
	return session, nil
}

func (s *sessionService) Get(ctx context.Context, interviewID string) (*models.InterviewSession, error) {
	const op = "SessionService.Get"

	if interviewID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview_id is required", nil)
	}

	out, err := s.sessions.GetByInterviewID(ctx, interviewID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get session", err)
	}
	return out, nil
}

func (s *sessionService) SetPhase(ctx context.Context, interviewID, phase string) error {
	const op = "SessionService.SetPhase"

	if interviewID == "" || phase == "" {
		return utils.E(utils.CodeInvalidArgument, op, "interview_id and phase are required", nil)
	}
	if err := s.sessions.SetPhase(ctx, interviewID, phase); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to set phase", err)
	}
	return nil
}

func (s *sessionService) RecordTurn(ctx context.Context, interviewID, mlInterviewID string) error {
	const op = "SessionService.RecordTurn"

	if interviewID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "interview_id is required", nil)
	}
	if err := s.sessions.RecordTurn(ctx, interviewID, mlInterviewID); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to record turn", err)
	}
	return nil
}

func (s *sessionService) End(ctx context.Context, interviewID, status string) (*models.InterviewSession, error) {
	const op = "SessionService.End"

	if interviewID == "" || status == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview_id and status are required", nil)
	}

	ss, err := s.Get(ctx, interviewID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	dur := int64(now.Sub(ss.CreatedAt).Seconds())
	if dur < 0 {
		dur = 0
	}

	if err := s.sessions.End(ctx, interviewID, status, now, dur); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to end session", err)
	}

	ss.Status = status
	ss.EndedAt = &now
	ss.DurationSeconds = dur
	return ss, nil
}
