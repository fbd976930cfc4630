package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// AnswerLog is a submitted answer with its voice analysis.
type AnswerLog struct {
	ID            string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	InterviewID   string         `gorm:"column:interview_id;type:text;index" json:"interview_id"`
	MLInterviewID string         `gorm:"column:mlinterview_id;type:text" json:"mlinterview_id"`
	TurnIndex     int            `gorm:"column:turn_index;type:integer" json:"turn_index"`
	Question      string         `gorm:"column:question;type:text" json:"question"`
	AnswerText    string         `gorm:"column:answer_text;type:text" json:"answer_text"`
	VideoID       string         `gorm:"column:video_id;type:text" json:"video_id,omitempty"`
	Tags          pq.StringArray `gorm:"column:tags;type:text[]" json:"tags"`
	Scores        datatypes.JSON `gorm:"column:scores;type:jsonb" json:"scores"`
	OverallScore  *float64       `gorm:"column:overall_score;type:double precision" json:"overall_score,omitempty"`
	SubmittedAt   time.Time      `gorm:"column:submitted_at;type:timestamptz;index" json:"submitted_at"`
}

func (AnswerLog) TableName() string { return "interview_answers" }
