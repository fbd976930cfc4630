package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Soln1shko/AI-HR/internal/interview"
	"github.com/Soln1shko/AI-HR/internal/utils"
)

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

// Interview is the orchestrator surface driven by the handlers.
type Interview interface {
	Snapshot() interview.Snapshot
	Start(ctx context.Context, vacancyID string) error
	EnableCamera(ctx context.Context) bool
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	Rerecord(ctx context.Context) error
	Submit(ctx context.Context) error
	Exit(ctx context.Context) error
}

func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)

	var ae *utils.AppError
	if errors.As(err, &ae) {
		c.JSON(status, APIError{
			Code:    ae.Code,
			Message: ae.Message,
		})
		return
	}

	c.JSON(status, APIError{
		Code:    utils.CodeInternal,
		Message: http.StatusText(status),
	})
}
