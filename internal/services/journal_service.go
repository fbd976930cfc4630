package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Soln1shko/AI-HR/internal/logger"
	"github.com/Soln1shko/AI-HR/internal/models"
)

// JournalService records the progress of an interview in the local stores.
// Every method is best effort: failures are logged and never interrupt the
// interview.
type JournalService interface {
	SessionStarted(ctx context.Context, interviewID, vacancyID string)
	PhaseChanged(ctx context.Context, interviewID, phase string)
	ChunkCaptured(ctx context.Context, interviewID, exchangeID string, seq int64, data []byte)
	ExchangeResolved(ctx context.Context, exchangeID, status, transcript string)
	AnswerSubmitted(ctx context.Context, turn models.InterviewTurn)
	SessionEnded(ctx context.Context, interviewID, status string)
}

type journalService struct {
	sessions SessionService
	buffers  BufferService
	answers  AnswerService
	log      *logrus.Entry
}

// NewJournalService builds a journal over the configured stores. Any of
// sessions, buffers and answers may be nil.
func NewJournalService(sessions SessionService, buffers BufferService, answers AnswerService, log logrus.FieldLogger) JournalService {
	return &journalService{
		sessions: sessions,
		buffers:  buffers,
		answers:  answers,
		log:      logger.Component(log, "journal"),
	}
}

func (j *journalService) SessionStarted(ctx context.Context, interviewID, vacancyID string) {
	if j.sessions == nil {
		return
	}
	if _, err := j.sessions.Start(ctx, interviewID, vacancyID); err != nil {
		j.warn(err, "session start not journaled", logrus.Fields{"interview_id": interviewID})
	}
}

func (j *journalService) PhaseChanged(ctx context.Context, interviewID, phase string) {
	if j.sessions == nil || interviewID == "" {
		return
	}
	if err := j.sessions.SetPhase(ctx, interviewID, phase); err != nil {
		j.warn(err, "phase not journaled", logrus.Fields{"interview_id": interviewID, "phase": phase})
	}
}

func (j *journalService) ChunkCaptured(ctx context.Context, interviewID, exchangeID string, seq int64, data []byte) {
	if j.buffers == nil {
		return
	}
	if _, err := j.buffers.InsertAudioChunk(ctx, interviewID, exchangeID, seq, data); err != nil {
		j.warn(err, "chunk not journaled", logrus.Fields{"exchange_id": exchangeID, "seq": seq})
	}
}

func (j *journalService) ExchangeResolved(ctx context.Context, exchangeID, status, transcript string) {
	if j.buffers == nil || exchangeID == "" {
		return
	}
	if err := j.buffers.MarkExchange(ctx, exchangeID, status, transcript); err != nil {
		j.warn(err, "exchange not journaled", logrus.Fields{"exchange_id": exchangeID})
	}
}

func (j *journalService) AnswerSubmitted(ctx context.Context, turn models.InterviewTurn) {
	if j.answers != nil {
		if _, err := j.answers.Record(ctx, turn); err != nil {
			j.warn(err, "answer not journaled", logrus.Fields{"interview_id": turn.InterviewID, "turn": turn.Index})
		}
	}
	if j.sessions != nil {
		if err := j.sessions.RecordTurn(ctx, turn.InterviewID, turn.MLInterviewID); err != nil {
			j.warn(err, "turn not journaled", logrus.Fields{"interview_id": turn.InterviewID})
		}
	}
}

func (j *journalService) SessionEnded(ctx context.Context, interviewID, status string) {
	if j.sessions == nil || interviewID == "" {
		return
	}
	if _, err := j.sessions.End(ctx, interviewID, status); err != nil {
		j.warn(err, "session end not journaled", logrus.Fields{"interview_id": interviewID})
	}
}

func (j *journalService) warn(err error, msg string, f logrus.Fields) {
	j.log.WithError(err).WithFields(f).Warn(msg)
}

// NopJournal discards every record.
type NopJournal struct{}

func (NopJournal) SessionStarted(context.Context, string, string)               {}
func (NopJournal) PhaseChanged(context.Context, string, string)                 {}
func (NopJournal) ChunkCaptured(context.Context, string, string, int64, []byte) {}
func (NopJournal) ExchangeResolved(context.Context, string, string, string)     {}
func (NopJournal) AnswerSubmitted(context.Context, models.InterviewTurn)        {}
func (NopJournal) SessionEnded(context.Context, string, string)                 {}
