package services

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/Soln1shko/AI-HR/internal/models"
	mongorepo "github.com/Soln1shko/AI-HR/internal/repositories/mongo"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

// Chunk statuses.
const (
	ChunkSent        = "sent"
	ChunkTranscribed = "transcribed"
	ChunkFailed      = "failed"
)

type BufferService interface {
	InsertAudioChunk(ctx context.Context, interviewID, exchangeID string, seq int64, data []byte) (*models.AudioChunk, error)
	MarkExchange(ctx context.Context, exchangeID, status, transcription string) error
	Replay(ctx context.Context, exchangeID string) ([]byte, error)
}

type bufferService struct {
	buffers mongorepo.BufferRepository
	ttl     time.Duration
}

func NewBufferService(buffers mongorepo.BufferRepository, ttl time.Duration) BufferService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &bufferService{buffers: buffers, ttl: ttl}
}

func (s *bufferService) InsertAudioChunk(ctx context.Context, interviewID, exchangeID string, seq int64, data []byte) (*models.AudioChunk, error) {
	const op = "BufferService.InsertAudioChunk"

	if interviewID == "" || exchangeID == "" || seq <= 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview_id, exchange_id are required and seq must be > 0", nil)
	}
	if len(data) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "empty chunk", nil)
	}

	now := time.Now().UTC()
	doc := &models.AudioChunk{
		InterviewID: interviewID,
		ExchangeID:  exchangeID,
		Seq:         seq,
		DataBase64:  base64.StdEncoding.EncodeToString(data),
		Size:        len(data),
		Status:      ChunkSent,
		Timestamp:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	if err := s.buffers.InsertChunk(ctx, doc); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to insert audio chunk", err)
	}
	return doc, nil
}

func (s *bufferService) MarkExchange(ctx context.Context, exchangeID, status, transcription string) error {
	const op = "BufferService.MarkExchange"

	if exchangeID == "" || status == "" {
		return utils.E(utils.CodeInvalidArgument, op, "exchange_id and status are required", nil)
	}
	if _, err := s.buffers.MarkExchange(ctx, exchangeID, status, transcription); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to update exchange", err)
	}
	return nil
}

// Replay reassembles the recording of an exchange from its chunks.
func (s *bufferService) Replay(ctx context.Context, exchangeID string) ([]byte, error) {
	const op = "BufferService.Replay"

	if exchangeID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "exchange_id is required", nil)
	}
	chunks, err := s.buffers.ListByExchange(ctx, exchangeID, 0)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list chunks", err)
	}
	if len(chunks) == 0 {
		return nil, utils.E(utils.CodeNotFound, op, "no chunks for exchange", utils.ErrNotFound)
	}

	var out []byte
	for _, c := range chunks {
		b, err := base64.StdEncoding.DecodeString(c.DataBase64)
		if err != nil {
			return nil, utils.E(utils.CodeInternal, op, "corrupt chunk", err)
		}
		out = append(out, b...)
	}
	return out, nil
}
