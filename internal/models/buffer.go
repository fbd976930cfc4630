package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AudioChunk is one captured audio fragment of a transcription exchange,
// kept so an answer can be replayed after a crash.
type AudioChunk struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	InterviewID string             `bson:"interview_id" json:"interview_id"`
	ExchangeID  string             `bson:"exchange_id" json:"exchange_id"`
	Seq         int64              `bson:"seq" json:"seq"`

	DataBase64 string `bson:"data_base64" json:"data_base64"`
	Size       int    `bson:"size" json:"size"`

	Status        string `bson:"status" json:"status"` // sent|transcribed|failed
	Transcription string `bson:"transcription,omitempty" json:"transcription,omitempty"`

	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}
