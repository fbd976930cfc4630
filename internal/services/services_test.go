package services

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Soln1shko/AI-HR/internal/models"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

type memSessions struct {
	rows map[string]*models.InterviewSession
	err  error
}

func newMemSessions() *memSessions { return &memSessions{rows: map[string]*models.InterviewSession{}} }

func (m *memSessions) Create(_ context.Context, s *models.InterviewSession) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.rows[s.InterviewID]; ok {
		return utils.E(utils.CodeConflict, "memSessions.Create", "duplicate", nil)
	}
	cp := *s
	m.rows[s.InterviewID] = &cp
	return nil
}

func (m *memSessions) GetByInterviewID(_ context.Context, id string) (*models.InterviewSession, error) {
	s, ok := m.rows[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) SetPhase(_ context.Context, id, phase string) error {
	if s, ok := m.rows[id]; ok {
		s.Phase = phase
	}
	return m.err
}

func (m *memSessions) RecordTurn(_ context.Context, id, ml string) error {
	if s, ok := m.rows[id]; ok {
		s.TurnsAnswered++
		if ml != "" {
			s.MLInterviewID = ml
		}
	}
	return m.err
}

func (m *memSessions) End(_ context.Context, id, status string, endedAt time.Time, dur int64) error {
	if s, ok := m.rows[id]; ok {
		s.Status = status
		s.EndedAt = &endedAt
		s.DurationSeconds = dur
	}
	return m.err
}

func (m *memSessions) ListByVacancy(context.Context, string, int64) ([]models.InterviewSession, error) {
	return nil, nil
}

type memChunks struct {
	rows []models.AudioChunk
}

func (m *memChunks) InsertChunk(_ context.Context, c *models.AudioChunk) error {
	m.rows = append(m.rows, *c)
	return nil
}

func (m *memChunks) MarkExchange(_ context.Context, exchangeID, status, transcription string) (int64, error) {
	var n int64
	for i := range m.rows {
		if m.rows[i].ExchangeID == exchangeID {
			m.rows[i].Status = status
			m.rows[i].Transcription = transcription
			n++
		}
	}
	return n, nil
}

func (m *memChunks) ListByExchange(_ context.Context, exchangeID string, _ int64) ([]models.AudioChunk, error) {
	var out []models.AudioChunk
	for _, c := range m.rows {
		if c.ExchangeID == exchangeID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

type memAnswers struct {
	rows []models.AnswerLog
	err  error
}

func (m *memAnswers) Insert(_ context.Context, a *models.AnswerLog) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, *a)
	return nil
}

func (m *memAnswers) ListByInterview(_ context.Context, id string, _ int) ([]models.AnswerLog, error) {
	var out []models.AnswerLog
	for _, r := range m.rows {
		if r.InterviewID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memAnswers) CountByInterview(_ context.Context, id string) (int64, error) {
	rows, _ := m.ListByInterview(context.Background(), id, 0)
	return int64(len(rows)), nil
}

func (m *memAnswers) GetByID(context.Context, string) (*models.AnswerLog, error) {
	return nil, utils.ErrNotFound
}

func TestSessionService_Lifecycle(t *testing.T) {
	repo := newMemSessions()
	svc := NewSessionService(repo).(*sessionService)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }

	_, err := svc.Start(context.Background(), "i1", "v1")
	require.NoError(t, err)
	_, err = svc.Start(context.Background(), "i1", "v1")
	assert.True(t, utils.IsCode(err, utils.CodeConflict))

	require.NoError(t, svc.SetPhase(context.Background(), "i1", "recording"))
	require.NoError(t, svc.RecordTurn(context.Background(), "i1", "m1"))

	svc.now = func() time.Time { return start.Add(95 * time.Second) }
	ended, err := svc.End(context.Background(), "i1", models.SessionCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, ended.Status)
	assert.EqualValues(t, 95, ended.DurationSeconds)

	got := repo.rows["i1"]
	assert.Equal(t, "recording", got.Phase)
	assert.Equal(t, 1, got.TurnsAnswered)
	assert.Equal(t, "m1", got.MLInterviewID)

	_, err = svc.Get(context.Background(), "missing")
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
}

func TestBufferService_ReplayInSeqOrder(t *testing.T) {
	repo := &memChunks{}
	svc := NewBufferService(repo, 0)
	ctx := context.Background()

	_, err := svc.InsertAudioChunk(ctx, "i1", "x1", 2, []byte("world"))
	require.NoError(t, err)
	_, err = svc.InsertAudioChunk(ctx, "i1", "x1", 1, []byte("hello "))
	require.NoError(t, err)
	_, err = svc.InsertAudioChunk(ctx, "i1", "x1", 3, nil)
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))

	data, err := svc.Replay(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	require.NoError(t, svc.MarkExchange(ctx, "x1", ChunkTranscribed, "hello world"))
	for _, c := range repo.rows {
		assert.Equal(t, ChunkTranscribed, c.Status)
		assert.True(t, c.ExpiresAt.After(c.Timestamp))
	}

	_, err = svc.Replay(ctx, "nope")
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
}

func TestAnswerService_RecordNormalizesAnalysis(t *testing.T) {
	repo := &memAnswers{}
	svc := NewAnswerService(repo)

	overall := 120.0
	row, err := svc.Record(context.Background(), models.InterviewTurn{
		Index:       1,
		InterviewID: "i1",
		Question:    "q",
		AnswerText:  "a",
		Analysis: &models.VoiceAnalysis{
			Tags:         []string{"calm"},
			Scores:       map[string]float64{models.ScoreConfidence: -5, models.ScoreEnergy: 55},
			OverallScore: &overall,
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, row.ID)
	assert.Equal(t, []string{"calm"}, []string(row.Tags))
	require.NotNil(t, row.OverallScore)
	assert.Equal(t, 100.0, *row.OverallScore)

	var scores map[string]float64
	require.NoError(t, json.Unmarshal(row.Scores, &scores))
	assert.Equal(t, map[string]float64{models.ScoreConfidence: 0, models.ScoreEnergy: 55}, scores)
}

func TestAnswerService_RecordWithoutAnalysis(t *testing.T) {
	repo := &memAnswers{}
	row, err := NewAnswerService(repo).Record(context.Background(), models.InterviewTurn{InterviewID: "i1"})
	require.NoError(t, err)
	assert.Empty(t, row.Tags)
	assert.JSONEq(t, `{}`, string(row.Scores))
	assert.Nil(t, row.OverallScore)
}

func TestJournal_NilStoresAreSkipped(t *testing.T) {
	j := NewJournalService(nil, nil, nil, nil)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		j.SessionStarted(ctx, "i1", "v1")
		j.PhaseChanged(ctx, "i1", "active")
		j.ChunkCaptured(ctx, "i1", "x1", 1, []byte("a"))
		j.ExchangeResolved(ctx, "x1", ChunkTranscribed, "t")
		j.AnswerSubmitted(ctx, models.InterviewTurn{InterviewID: "i1"})
		j.SessionEnded(ctx, "i1", models.SessionExited)
	})
}

func TestJournal_RecordsAcrossStores(t *testing.T) {
	sessions := newMemSessions()
	chunks := &memChunks{}
	answers := &memAnswers{}
	j := NewJournalService(NewSessionService(sessions), NewBufferService(chunks, time.Hour), NewAnswerService(answers), nil)
	ctx := context.Background()

	j.SessionStarted(ctx, "i1", "v1")
	j.PhaseChanged(ctx, "i1", "recording")
	j.ChunkCaptured(ctx, "i1", "x1", 1, []byte("a"))
	j.ExchangeResolved(ctx, "x1", ChunkTranscribed, "hello")
	j.AnswerSubmitted(ctx, models.InterviewTurn{InterviewID: "i1", MLInterviewID: "m1", AnswerText: "hello"})
	j.SessionEnded(ctx, "i1", models.SessionCompleted)

	assert.Equal(t, models.SessionCompleted, sessions.rows["i1"].Status)
	assert.Equal(t, 1, sessions.rows["i1"].TurnsAnswered)
	require.Len(t, chunks.rows, 1)
	assert.Equal(t, "hello", chunks.rows[0].Transcription)
	require.Len(t, answers.rows, 1)
	assert.Equal(t, "m1", answers.rows[0].MLInterviewID)
}

func TestJournal_StoreFailuresAreSwallowed(t *testing.T) {
	answers := &memAnswers{err: errors.New("db down")}
	j := NewJournalService(nil, nil, NewAnswerService(answers), nil)

	assert.NotPanics(t, func() {
		j.AnswerSubmitted(context.Background(), models.InterviewTurn{InterviewID: "i1"})
	})
	assert.Empty(t, answers.rows)
}
