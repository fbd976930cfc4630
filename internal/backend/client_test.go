package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Soln1shko/AI-HR/internal/models"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "tok")
}

func TestStartInterview(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/convert-resume", r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get(TokenHeader))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "v1", body["vacancy_id"])
		_, _ = w.Write([]byte(`{"interview_id":"i1","message":"ok"}`))
	})

	resp, err := c.StartInterview(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, "i1", resp.InterviewID)
}

func TestStartInterview_ErrorBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"resume score too low"}`))
	})

	_, err := c.StartInterview(context.Background(), "v1")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeForbidden))
	assert.Contains(t, err.Error(), "resume score too low")
}

func TestSaveAnswer(t *testing.T) {
	overall := 70.0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/interviews/answer", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)

		var got map[string]any
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "i1", got["interview_id"])
		assert.Equal(t, "m1", got["mlinterview_id"])
		assert.Equal(t, "", got["question"])
		assert.Equal(t, "I am Anna", got["answer_text"])
		assert.Equal(t, "vid", got["video_id"])
		assert.Contains(t, got, "analysis")

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"in_progress","current_question":"Tell me about Go","mlinterview_id":"m1","optimal_time":120}`))
	})

	resp, err := c.SaveAnswer(context.Background(), AnswerRequest{
		InterviewID:   "i1",
		MLInterviewID: "m1",
		AnswerText:    "I am Anna",
		Analysis:      &models.VoiceAnalysis{Tags: []string{"calm"}, OverallScore: &overall},
		VideoID:       "vid",
	})
	require.NoError(t, err)
	assert.False(t, resp.Completed())
	assert.Equal(t, "Tell me about Go", resp.NextQuestion())
	assert.Equal(t, 120, resp.OptimalSeconds(90))
}

func TestSaveAnswer_OmitsMissingOptionals(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var got map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.NotContains(t, got, "analysis")
		assert.NotContains(t, got, "video_id")
		_, _ = w.Write([]byte(`{"status":"completed"}`))
	})

	resp, err := c.SaveAnswer(context.Background(), AnswerRequest{InterviewID: "i1", AnswerText: "x"})
	require.NoError(t, err)
	assert.True(t, resp.Completed())
	assert.Equal(t, 90, resp.OptimalSeconds(90))
}

func TestDeleteInterview(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/interviews/i1", r.URL.Path)
		_, _ = w.Write([]byte(`{"message":"deleted"}`))
	})

	require.NoError(t, c.DeleteInterview(context.Background(), "i1"))
	assert.True(t, called)
	assert.True(t, utils.IsCode(c.DeleteInterview(context.Background(), ""), utils.CodeInvalidArgument))
}

func TestUploadVideo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/video/upload-video/", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)

		assert.Equal(t, "interview_i1_1700000000000.webm", hdr.Filename)
		assert.Equal(t, "video/webm", hdr.Header.Get("Content-Type"))
		assert.Equal(t, "webm-bytes", string(data))
		_, _ = w.Write([]byte(`{"message":"uploaded","yc_video_id":"yc-42"}`))
	})

	id, err := c.UploadVideo(context.Background(), "interview_i1_1700000000000.webm", []byte("webm-bytes"), "video/webm")
	require.NoError(t, err)
	assert.Equal(t, "yc-42", id)
}

func TestUploadVideo_DetailError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"No file part"}`))
	})

	_, err := c.UploadVideo(context.Background(), "a.webm", []byte("x"), "video/webm")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
	assert.Contains(t, err.Error(), "No file part")
}

func TestInterviewQnA(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/interviews/i1/qna", r.URL.Path)
		_, _ = w.Write([]byte(`{"interview_id":"i1","qna":[{"_id":"a1","question":"q","answer_text":"a","voice_analysis":{"tags":["calm"],"scores":{}}}]}`))
	})

	out, err := c.InterviewQnA(context.Background(), "i1")
	require.NoError(t, err)
	require.Len(t, out.QnA, 1)
	assert.Equal(t, "a", out.QnA[0].AnswerText)
	assert.Equal(t, []string{"calm"}, out.QnA[0].VoiceAnalysis.Tags)
}

func TestServerErrorWithoutBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := c.DeleteInterview(context.Background(), "i1")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeUnavailable))
	assert.Contains(t, err.Error(), "status 502")
}
