package models

// InterviewTurn is one question/answer unit of an interview.
type InterviewTurn struct {
	Index         int            `json:"index"`
	Question      string         `json:"question"`
	InterviewID   string         `json:"interview_id"`
	MLInterviewID string         `json:"mlinterview_id"`
	VideoID       string         `json:"video_id,omitempty"`
	Analysis      *VoiceAnalysis `json:"analysis,omitempty"`
	AnswerText    string         `json:"answer_text"`
	OptimalTime   int            `json:"optimal_time"` // seconds
}

// IsBootstrap reports whether the turn opens the interview. The backend
// expects an empty question on that submission.
func (t *InterviewTurn) IsBootstrap() bool {
	return t.MLInterviewID == ""
}

// SubmittedQuestion is the question field sent with the answer.
func (t *InterviewTurn) SubmittedQuestion() string {
	if t.IsBootstrap() {
		return ""
	}
	return t.Question
}
