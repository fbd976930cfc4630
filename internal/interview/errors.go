package interview

import "github.com/Soln1shko/AI-HR/internal/utils"

var (
	ErrCameraUnavailable     = &utils.AppError{Code: utils.CodeFailedPrecondition, Message: "camera is not available"}
	ErrMicrophoneUnavailable = &utils.AppError{Code: utils.CodeFailedPrecondition, Message: "microphone is not available"}
	ErrInvalidTransition     = &utils.AppError{Code: utils.CodeFailedPrecondition, Message: "action not allowed in the current phase"}
	ErrNoTranscript          = &utils.AppError{Code: utils.CodeFailedPrecondition, Message: "no transcript to submit"}
	ErrTimeExpired           = &utils.AppError{Code: utils.CodeFailedPrecondition, Message: "answer time is over"}
	ErrSpeaking              = &utils.AppError{Code: utils.CodeFailedPrecondition, Message: "the interviewer is still speaking"}
	ErrExited                = &utils.AppError{Code: utils.CodeConflict, Message: "interview was exited"}
)
