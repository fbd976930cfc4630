package routes_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Soln1shko/AI-HR/internal/api/handlers"
	"github.com/Soln1shko/AI-HR/internal/api/routes"
	"github.com/Soln1shko/AI-HR/internal/backend"
	"github.com/Soln1shko/AI-HR/internal/interview"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

type fakeInterview struct {
	mu        sync.Mutex
	phase     interview.Phase
	vacancy   string
	calls     []string
	recordErr error
	camera    bool
}

func (f *fakeInterview) Snapshot() interview.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return interview.Snapshot{Phase: f.phase, VacancyID: f.vacancy}
}

func (f *fakeInterview) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeInterview) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeInterview) Start(_ context.Context, vacancyID string) error {
	f.record("start")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vacancy = vacancyID
	f.phase = interview.PhaseStarting
	return nil
}

func (f *fakeInterview) EnableCamera(context.Context) bool {
	f.record("camera")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.camera
}

func (f *fakeInterview) StartRecording(context.Context) error {
	f.record("start_recording")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recordErr
}

func (f *fakeInterview) StopRecording(context.Context) error {
	f.record("stop_recording")
	return nil
}

func (f *fakeInterview) Rerecord(context.Context) error {
	f.record("rerecord")
	return nil
}

func (f *fakeInterview) Submit(context.Context) error {
	f.record("submit")
	return interview.ErrNoTranscript
}

func (f *fakeInterview) Exit(context.Context) error {
	f.record("exit")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phase = interview.PhaseExited
	return nil
}

type fakeBackend struct {
	backend.API
}

func (fakeBackend) InterviewQnA(_ context.Context, id string) (*backend.QnAResponse, error) {
	return &backend.QnAResponse{
		InterviewID: id,
		QnA:         []backend.QnAItem{{Question: "q1", AnswerText: "a1"}},
	}, nil
}

type testEnv struct {
	engine *gin.Engine
	iv     *fakeInterview
	events *interview.Broadcaster
}

func newEnv(secret string) *testEnv {
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		engine: gin.New(),
		iv:     &fakeInterview{phase: interview.PhaseIdle},
		events: interview.NewBroadcaster(nil),
	}
	routes.RegisterRoutes(env.engine, routes.Deps{
		Interview: handlers.NewInterviewHandler(env.iv),
		History:   handlers.NewHistoryHandler(nil, nil, fakeBackend{}),
		WS:        handlers.NewWSHandler(env.iv, env.events, nil),
		JWTSecret: secret,
	})
	return env
}

func (e *testEnv) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) handlers.APIError {
	t.Helper()
	var out handlers.APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func sign(t *testing.T, secret, subject, role string, method jwt.SigningMethod) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestPing(t *testing.T) {
	w := newEnv("").do(http.MethodGet, "/ping", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestInterview_Start(t *testing.T) {
	env := newEnv("")

	w := env.do(http.MethodPost, "/interview/start", `{"vacancy_id":"vac-7"}`, "")
	require.Equal(t, http.StatusAccepted, w.Code)

	var snap interview.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, interview.PhaseStarting, snap.Phase)
	assert.Equal(t, "vac-7", snap.VacancyID)
}

func TestInterview_StartRequiresVacancy(t *testing.T) {
	env := newEnv("")

	w := env.do(http.MethodPost, "/interview/start", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, utils.CodeInvalidArgument, decodeError(t, w).Code)
	assert.Empty(t, env.iv.Calls())
}

func TestInterview_CameraGateMapsToPrecondition(t *testing.T) {
	env := newEnv("")
	env.iv.recordErr = interview.ErrCameraUnavailable

	w := env.do(http.MethodPost, "/interview/record/start", "", "")
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	apiErr := decodeError(t, w)
	assert.Equal(t, utils.CodeFailedPrecondition, apiErr.Code)
	assert.Equal(t, "camera is not available", apiErr.Message)

	w = env.do(http.MethodPost, "/interview/camera", "", "")
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestInterview_Actions(t *testing.T) {
	env := newEnv("")

	for _, path := range []string{"/interview/record/stop", "/interview/rerecord", "/interview/exit"} {
		w := env.do(http.MethodPost, path, "", "")
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
	w := env.do(http.MethodPost, "/interview/submit", "", "")
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	assert.Equal(t, []string{"stop_recording", "rerecord", "exit", "submit"}, env.iv.Calls())

	w = env.do(http.MethodGet, "/interview/state", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"phase":"exited"`)
}

func TestJWTAuth(t *testing.T) {
	const secret = "s3cret"
	env := newEnv(secret)

	w := env.do(http.MethodGet, "/interview/state", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/interview/state", "", sign(t, "other", "op-1", "", jwt.SigningMethodHS256))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/interview/state", "", sign(t, secret, "op-1", "", jwt.SigningMethodHS512))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "only HS256 is accepted")

	w = env.do(http.MethodGet, "/interview/state", "", sign(t, secret, "", "", jwt.SigningMethodHS256))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/interview/state", "", sign(t, secret, "op-1", "", jwt.SigningMethodHS256))
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/interview/state", "", sign(t, secret, "op-1", "viewer", jwt.SigningMethodHS256))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHistory(t *testing.T) {
	const secret = "s3cret"
	env := newEnv(secret)

	w := env.do(http.MethodGet, "/interviews/i1/qna", "", sign(t, secret, "op-1", "operator", jwt.SigningMethodHS256))
	assert.Equal(t, http.StatusForbidden, w.Code, "history needs admin")

	admin := sign(t, secret, "root", "admin", jwt.SigningMethodHS256)
	w = env.do(http.MethodGet, "/interviews/i1/qna", "", admin)
	require.Equal(t, http.StatusOK, w.Code)

	var qna backend.QnAResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &qna))
	assert.Equal(t, "i1", qna.InterviewID)
	require.Len(t, qna.QnA, 1)

	w = env.do(http.MethodGet, "/interviews/i1/session", "", admin)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = env.do(http.MethodGet, "/interviews/i1/answers", "", admin)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestWSEvents(t *testing.T) {
	env := newEnv("")
	srv := httptest.NewServer(env.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first map[string]any
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "state", first["type"])

	require.Eventually(t, func() bool { return env.events.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, env.events.Publish(context.Background(), interview.Event{
		Type:  interview.EventPhase,
		Phase: interview.PhaseRecording,
	}))

	var ev interview.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, interview.EventPhase, ev.Type)
	assert.Equal(t, interview.PhaseRecording, ev.Phase)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "start_recording"}))
	require.Eventually(t, func() bool {
		calls := env.iv.Calls()
		return len(calls) == 1 && calls[0] == "start_recording"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, string(utils.CodeInvalidArgument), reply["code"])
}
