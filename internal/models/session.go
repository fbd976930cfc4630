package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	SessionActive    = "active"
	SessionCompleted = "completed"
	SessionExited    = "exited"
	SessionError     = "error"
)

// InterviewSession is the local journal entry for one interview run.
type InterviewSession struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	InterviewID   string             `bson:"interview_id" json:"interview_id"`
	MLInterviewID string             `bson:"mlinterview_id,omitempty" json:"mlinterview_id,omitempty"`
	VacancyID     string             `bson:"vacancy_id" json:"vacancy_id"`

	Status        string `bson:"status" json:"status"` // active|completed|exited|error
	Phase         string `bson:"phase" json:"phase"`
	TurnsAnswered int    `bson:"turns_answered" json:"turns_answered"`

	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`

	DurationSeconds int64 `bson:"duration_seconds" json:"duration_seconds"`
}
