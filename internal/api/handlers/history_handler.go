package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Soln1shko/AI-HR/internal/backend"
	"github.com/Soln1shko/AI-HR/internal/services"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

// HistoryHandler serves past interviews from the local journal and the
// backend. Each source is optional.
type HistoryHandler struct {
	sessions services.SessionService
	answers  services.AnswerService
	api      backend.API
}

func NewHistoryHandler(sessions services.SessionService, answers services.AnswerService, api backend.API) *HistoryHandler {
	return &HistoryHandler{sessions: sessions, answers: answers, api: api}
}

func (h *HistoryHandler) Session(c *gin.Context) {
	const op = "HistoryHandler.Session"
	id, ok := interviewID(c, op)
	if !ok {
		return
	}
	if h.sessions == nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "session journal is not configured", nil))
		return
	}

	sess, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *HistoryHandler) Answers(c *gin.Context) {
	const op = "HistoryHandler.Answers"
	id, ok := interviewID(c, op)
	if !ok {
		return
	}
	if h.answers == nil {
		writeError(c, utils.E(utils.CodeUnavailable, op, "answer log is not configured", nil))
		return
	}

	items, err := h.answers.List(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"interview_id": id, "answers": items})
}

// QnA proxies the backend's question/answer history of an interview.
func (h *HistoryHandler) QnA(c *gin.Context) {
	const op = "HistoryHandler.QnA"
	id, ok := interviewID(c, op)
	if !ok {
		return
	}

	res, err := h.api.InterviewQnA(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func interviewID(c *gin.Context, op string) (string, bool) {
	id := strings.TrimSpace(c.Param("interview_id"))
	if id == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "missing interview_id", nil))
		return "", false
	}
	return id, true
}
