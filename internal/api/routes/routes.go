package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/Soln1shko/AI-HR/internal/api/handlers"
	"github.com/Soln1shko/AI-HR/internal/api/middleware"
	"github.com/Soln1shko/AI-HR/internal/models"
)

type Deps struct {
	Interview *handlers.InterviewHandler
	History   *handlers.HistoryHandler
	WS        *handlers.WSHandler
	JWTSecret string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.JWTSecret))
	auth.Use(middleware.RequireRole(models.RoleOperator, models.RoleAdmin))

	auth.GET("/interview/state", d.Interview.State)
	auth.POST("/interview/start", d.Interview.Start)
	auth.POST("/interview/camera", d.Interview.EnableCamera)
	auth.POST("/interview/record/start", d.Interview.StartRecording)
	auth.POST("/interview/record/stop", d.Interview.StopRecording)
	auth.POST("/interview/rerecord", d.Interview.Rerecord)
	auth.POST("/interview/submit", d.Interview.Submit)
	auth.POST("/interview/exit", d.Interview.Exit)

	if d.History != nil {
		history := auth.Group("/interviews")
		history.Use(middleware.RequireAdmin())
		history.GET("/:interview_id/session", d.History.Session)
		history.GET("/:interview_id/answers", d.History.Answers)
		history.GET("/:interview_id/qna", d.History.QnA)
	}

	auth.GET("/ws/events", d.WS.Events)
}
