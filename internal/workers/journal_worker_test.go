package workers

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Soln1shko/AI-HR/internal/logger"
	"github.com/Soln1shko/AI-HR/internal/models"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

type applied struct {
	interviewID, exchangeID string
	seq                     int64
	data                    string
	status, transcription   string
}

type recordingBuffer struct {
	calls []applied
}

func (b *recordingBuffer) InsertAudioChunk(_ context.Context, interviewID, exchangeID string, seq int64, data []byte) (*models.AudioChunk, error) {
	b.calls = append(b.calls, applied{interviewID: interviewID, exchangeID: exchangeID, seq: seq, data: string(data)})
	return &models.AudioChunk{}, nil
}

func (b *recordingBuffer) MarkExchange(_ context.Context, exchangeID, status, transcription string) error {
	b.calls = append(b.calls, applied{exchangeID: exchangeID, status: status, transcription: transcription})
	return nil
}

func (b *recordingBuffer) Replay(context.Context, string) ([]byte, error) { return nil, nil }

func newTestPool(buf *recordingBuffer) *JournalWorkerPool {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return &JournalWorkerPool{Buffers: buf, log: logger.Component(l, "test")}
}

func TestHandleMsg_AppliesInOrder(t *testing.T) {
	buf := &recordingBuffer{}
	p := newTestPool(buf)
	ctx := context.Background()

	entries := []map[string]any{
		chunkValues("i1", "ex-1", 1, []byte("ab")),
		chunkValues("i1", "ex-1", 2, []byte("cd")),
		markValues("ex-1", "transcribed", "hello"),
	}
	for i, v := range entries {
		require.NoError(t, p.handleMsg(ctx, redis.XMessage{ID: string(rune('a' + i)), Values: v}))
	}

	require.Len(t, buf.calls, 3)
	assert.Equal(t, applied{interviewID: "i1", exchangeID: "ex-1", seq: 1, data: "ab"}, buf.calls[0])
	assert.Equal(t, int64(2), buf.calls[1].seq)
	assert.Equal(t, applied{exchangeID: "ex-1", status: "transcribed", transcription: "hello"}, buf.calls[2])
}

func TestHandleMsg_Rejects(t *testing.T) {
	buf := &recordingBuffer{}
	p := newTestPool(buf)
	ctx := context.Background()

	bad := []map[string]any{
		{"op": "explode"},
		{"op": opChunk, "seq": "x", "data": ""},
		{"op": opChunk, "seq": "1", "data": "!!not base64"},
	}
	for _, v := range bad {
		err := p.handleMsg(ctx, redis.XMessage{ID: "1-0", Values: v})
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
	}
	assert.Empty(t, buf.calls)
}

func TestStart_RequiresDeps(t *testing.T) {
	require.Error(t, (&JournalWorkerPool{}).Start(context.Background()))
}
