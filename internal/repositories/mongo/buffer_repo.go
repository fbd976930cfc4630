package mongo

import (
	"context"
	"time"

	"github.com/Soln1shko/AI-HR/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type BufferRepository interface {
	InsertChunk(ctx context.Context, c *models.AudioChunk) error
	MarkExchange(ctx context.Context, exchangeID, status, transcription string) (int64, error)
	ListByExchange(ctx context.Context, exchangeID string, limit int64) ([]models.AudioChunk, error)
}

type bufferRepo struct {
	col *mongo.Collection
}

func NewBufferRepo(db *mongo.Database) BufferRepository {
	return &bufferRepo{col: db.Collection("audio_chunks")}
}

func (r *bufferRepo) InsertChunk(ctx context.Context, c *models.AudioChunk) error {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, c)
	return err
}

func (r *bufferRepo) MarkExchange(ctx context.Context, exchangeID, status, transcription string) (int64, error) {
	set := bson.M{"status": status}
	if transcription != "" {
		set["transcription"] = transcription
	}
	res, err := r.col.UpdateMany(ctx,
		bson.M{"exchange_id": exchangeID},
		bson.M{"$set": set},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *bufferRepo) ListByExchange(ctx context.Context, exchangeID string, limit int64) ([]models.AudioChunk, error) {
	if limit <= 0 {
		limit = 1000
	}

	cur, err := r.col.Find(ctx,
		bson.M{"exchange_id": exchangeID},
		options.Find().
			SetSort(bson.D{{Key: "seq", Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.AudioChunk
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
