package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Soln1shko/AI-HR/internal/utils"
)

type InterviewHandler struct {
	iv Interview
}

func NewInterviewHandler(iv Interview) *InterviewHandler {
	return &InterviewHandler{iv: iv}
}

type StartInterviewRequest struct {
	VacancyID string `json:"vacancy_id" binding:"required"`
}

func (h *InterviewHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.iv.Snapshot())
}

func (h *InterviewHandler) Start(c *gin.Context) {
	var req StartInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler.Start", "invalid request body", err))
		return
	}

	if err := h.iv.Start(c.Request.Context(), req.VacancyID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.iv.Snapshot())
}

// EnableCamera retries device access after the camera prompt.
func (h *InterviewHandler) EnableCamera(c *gin.Context) {
	if !h.iv.EnableCamera(c.Request.Context()) {
		writeError(c, utils.E(utils.CodeFailedPrecondition, "InterviewHandler.EnableCamera", "unable to access the camera", nil))
		return
	}
	c.JSON(http.StatusOK, h.iv.Snapshot())
}

func (h *InterviewHandler) StartRecording(c *gin.Context) {
	h.do(c, h.iv.StartRecording)
}

func (h *InterviewHandler) StopRecording(c *gin.Context) {
	h.do(c, h.iv.StopRecording)
}

func (h *InterviewHandler) Rerecord(c *gin.Context) {
	h.do(c, h.iv.Rerecord)
}

func (h *InterviewHandler) Submit(c *gin.Context) {
	h.do(c, h.iv.Submit)
}

func (h *InterviewHandler) Exit(c *gin.Context) {
	h.do(c, h.iv.Exit)
}

func (h *InterviewHandler) do(c *gin.Context, action func(ctx context.Context) error) {
	if err := action(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.iv.Snapshot())
}
