package interview

type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseStarting          Phase = "starting"
	PhaseActive            Phase = "active"
	PhaseAwaitingRecording Phase = "awaiting_recording"
	PhaseRecording         Phase = "recording"
	PhaseUploading         Phase = "uploading"
	PhaseRecorded          Phase = "recorded"
	PhaseCompleted         Phase = "completed"
	PhaseError             Phase = "error"
	PhaseExited            Phase = "exited"
)

// transitions lists the legal moves. Any phase may move to PhaseExited.
var transitions = map[Phase][]Phase{
	PhaseIdle:              {PhaseStarting},
	PhaseStarting:          {PhaseActive, PhaseError},
	PhaseActive:            {PhaseAwaitingRecording},
	PhaseAwaitingRecording: {PhaseRecording},
	PhaseRecording:         {PhaseUploading, PhaseAwaitingRecording},
	PhaseUploading:         {PhaseRecorded, PhaseAwaitingRecording, PhaseActive, PhaseCompleted, PhaseError},
	PhaseRecorded:          {PhaseUploading, PhaseAwaitingRecording},
	PhaseError:             {PhaseIdle, PhaseAwaitingRecording, PhaseRecorded},
	PhaseCompleted:         {},
	PhaseExited:            {PhaseStarting},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to Phase) bool {
	if to == PhaseExited {
		return from != PhaseExited
	}
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// Terminal phases end the interview.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseExited
}
