package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/Soln1shko/AI-HR/internal/models"
	"github.com/Soln1shko/AI-HR/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type SessionRepository interface {
	Create(ctx context.Context, s *models.InterviewSession) error
	GetByInterviewID(ctx context.Context, interviewID string) (*models.InterviewSession, error)
	SetPhase(ctx context.Context, interviewID, phase string) error
	RecordTurn(ctx context.Context, interviewID, mlInterviewID string) error
	End(ctx context.Context, interviewID, status string, endedAt time.Time, durationSeconds int64) error
	ListByVacancy(ctx context.Context, vacancyID string, limit int64) ([]models.InterviewSession, error)
}

type sessionRepo struct {
	col *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) SessionRepository {
	return &sessionRepo{col: db.Collection("interview_sessions")}
}

func (r *sessionRepo) Create(ctx context.Context, s *models.InterviewSession) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, s)
	if mongo.IsDuplicateKeyError(err) {
		return utils.E(utils.CodeConflict, "sessionRepo.Create", "session already journaled", err)
	}
	return err
}

func (r *sessionRepo) GetByInterviewID(ctx context.Context, interviewID string) (*models.InterviewSession, error) {
	var s models.InterviewSession
	err := r.col.FindOne(ctx, bson.M{"interview_id": interviewID}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	return &s, err
}

func (r *sessionRepo) SetPhase(ctx context.Context, interviewID, phase string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"interview_id": interviewID},
		bson.M{"$set": bson.M{"phase": phase}},
	)
	return err
}

func (r *sessionRepo) RecordTurn(ctx context.Context, interviewID, mlInterviewID string) error {
	update := bson.M{"$inc": bson.M{"turns_answered": 1}}
	if mlInterviewID != "" {
		update["$set"] = bson.M{"mlinterview_id": mlInterviewID}
	}
	_, err := r.col.UpdateOne(ctx, bson.M{"interview_id": interviewID}, update)
	return err
}

func (r *sessionRepo) End(ctx context.Context, interviewID, status string, endedAt time.Time, durationSeconds int64) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"interview_id": interviewID},
		bson.M{"$set": bson.M{
			"status":           status,
			"ended_at":         endedAt.UTC(),
			"duration_seconds": durationSeconds,
		}},
	)
	return err
}

func (r *sessionRepo) ListByVacancy(ctx context.Context, vacancyID string, limit int64) ([]models.InterviewSession, error) {
	if limit <= 0 {
		limit = 50
	}
	cur, err := r.col.Find(ctx,
		bson.M{"vacancy_id": vacancyID},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.InterviewSession
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
