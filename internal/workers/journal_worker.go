// Package workers moves journal writes off the capture path: producers append
// to a Redis stream and a consumer group applies the entries to Mongo.
package workers

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Soln1shko/AI-HR/internal/logger"
	"github.com/Soln1shko/AI-HR/internal/models"
	"github.com/Soln1shko/AI-HR/internal/services"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

const (
	DefaultStream = "journal:audio"
	DefaultGroup  = "journal-writers"

	opChunk = "chunk"
	opMark  = "mark"
)

// QueuedBuffer is a services.BufferService whose writes go through the
// stream. Reads are served by next directly.
type QueuedBuffer struct {
	rdb    redis.UniversalClient
	stream string
	next   services.BufferService
}

func NewQueuedBuffer(rdb redis.UniversalClient, stream string, next services.BufferService) *QueuedBuffer {
	if stream == "" {
		stream = DefaultStream
	}
	return &QueuedBuffer{rdb: rdb, stream: stream, next: next}
}

func (q *QueuedBuffer) InsertAudioChunk(ctx context.Context, interviewID, exchangeID string, seq int64, data []byte) (*models.AudioChunk, error) {
	const op = "QueuedBuffer.InsertAudioChunk"

	if len(data) == 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "empty chunk", nil)
	}
	if err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: chunkValues(interviewID, exchangeID, seq, data),
	}).Err(); err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to enqueue audio chunk", err)
	}
	return &models.AudioChunk{
		InterviewID: interviewID,
		ExchangeID:  exchangeID,
		Seq:         seq,
		Size:        len(data),
		Status:      services.ChunkSent,
	}, nil
}

func (q *QueuedBuffer) MarkExchange(ctx context.Context, exchangeID, status, transcription string) error {
	const op = "QueuedBuffer.MarkExchange"

	if err := q.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: markValues(exchangeID, status, transcription),
	}).Err(); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to enqueue exchange update", err)
	}
	return nil
}

func (q *QueuedBuffer) Replay(ctx context.Context, exchangeID string) ([]byte, error) {
	return q.next.Replay(ctx, exchangeID)
}

func chunkValues(interviewID, exchangeID string, seq int64, data []byte) map[string]any {
	return map[string]any{
		"op":           opChunk,
		"interview_id": interviewID,
		"exchange_id":  exchangeID,
		"seq":          strconv.FormatInt(seq, 10),
		"data":         base64.StdEncoding.EncodeToString(data),
		"ts_unix":      strconv.FormatInt(time.Now().UTC().Unix(), 10),
	}
}

func markValues(exchangeID, status, transcription string) map[string]any {
	return map[string]any{
		"op":            opMark,
		"exchange_id":   exchangeID,
		"status":        status,
		"transcription": transcription,
	}
}

// JournalWorkerPool applies queued journal entries. Entries of one exchange
// must be applied in order, so the default is a single consumer.
type JournalWorkerPool struct {
	Redis      redis.UniversalClient
	Buffers    services.BufferService
	NumWorkers int

	Logger logrus.FieldLogger

	Stream         string
	Group          string
	ConsumerPrefix string

	log *logrus.Entry
}

func (p *JournalWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Buffers == nil {
		return errors.New("JournalWorkerPool missing dependency: Redis/Buffers must be set")
	}
	if p.Stream == "" {
		p.Stream = DefaultStream
	}
	if p.Group == "" {
		p.Group = DefaultGroup
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 1
	}
	p.log = logger.Component(p.Logger, "journal_worker")

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	p.log.WithFields(logrus.Fields{"stream": p.Stream, "workers": p.NumWorkers}).Info("journal workers started")
	return nil
}

func (p *JournalWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    50,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			p.log.WithError(err).Warn("stream read failed")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				if err := p.handleMsg(ctx, msg); err != nil {
					p.log.WithError(err).WithField("redis_id", msg.ID).Warn("journal entry dropped")
				}
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func (p *JournalWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) error {
	const op = "JournalWorkerPool.handleMsg"

	getStr := func(k string) string {
		v, ok := msg.Values[k]
		if !ok || v == nil {
			return ""
		}
		s, _ := v.(string)
		return s
	}

	switch getStr("op") {
	case opChunk:
		seq, err := strconv.ParseInt(getStr("seq"), 10, 64)
		if err != nil {
			return utils.E(utils.CodeInvalidArgument, op, "invalid seq", err)
		}
		data, err := base64.StdEncoding.DecodeString(getStr("data"))
		if err != nil {
			return utils.E(utils.CodeInvalidArgument, op, "invalid chunk data", err)
		}
		_, err = p.Buffers.InsertAudioChunk(ctx, getStr("interview_id"), getStr("exchange_id"), seq, data)
		return err
	case opMark:
		return p.Buffers.MarkExchange(ctx, getStr("exchange_id"), getStr("status"), getStr("transcription"))
	default:
		return utils.E(utils.CodeInvalidArgument, op, "unknown journal op", nil)
	}
}
