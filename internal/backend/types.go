package backend

import "github.com/Soln1shko/AI-HR/internal/models"

// StatusCompleted marks the final answer of an interview.
const StatusCompleted = "completed"

type StartResponse struct {
	InterviewID string `json:"interview_id"`
	Message     string `json:"message"`
}

type AnswerRequest struct {
	InterviewID   string                `json:"interview_id"`
	MLInterviewID string                `json:"mlinterview_id"`
	Question      string                `json:"question"`
	AnswerText    string                `json:"answer_text"`
	Analysis      *models.VoiceAnalysis `json:"analysis,omitempty"`
	VideoID       string                `json:"video_id,omitempty"`
}

type AnswerResponse struct {
	Status          string `json:"status"`
	Question        string `json:"question"`
	CurrentQuestion string `json:"current_question"`
	MLInterviewID   string `json:"mlinterview_id"`
	OptimalTime     *int   `json:"optimal_time"`
	Message         string `json:"message"`
}

func (r *AnswerResponse) Completed() bool { return r.Status == StatusCompleted }

// NextQuestion prefers question and falls back to current_question.
func (r *AnswerResponse) NextQuestion() string {
	if r.Question != "" {
		return r.Question
	}
	return r.CurrentQuestion
}

// OptimalSeconds returns the allotted answer time, or def when the server
// sent none.
func (r *AnswerResponse) OptimalSeconds(def int) int {
	if r.OptimalTime == nil || *r.OptimalTime <= 0 {
		return def
	}
	return *r.OptimalTime
}

type UploadResponse struct {
	VideoID string `json:"yc_video_id"`
	Message string `json:"message"`
}

type QnAItem struct {
	ID            string                `json:"_id"`
	MLInterviewID string                `json:"mlinterview_id"`
	Question      string                `json:"question"`
	AnswerText    string                `json:"answer_text"`
	Status        string                `json:"status"`
	VoiceAnalysis *models.VoiceAnalysis `json:"voice_analysis"`
	VideoID       string                `json:"video_id"`
}

type QnAResponse struct {
	InterviewID string    `json:"interview_id"`
	QnA         []QnAItem `json:"qna"`
}

type errorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}
