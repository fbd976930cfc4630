package interview

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseIdle, PhaseStarting, true},
		{PhaseIdle, PhaseRecording, false},
		{PhaseStarting, PhaseError, true},
		{PhaseAwaitingRecording, PhaseRecording, true},
		{PhaseAwaitingRecording, PhaseRecorded, false},
		{PhaseRecording, PhaseUploading, true},
		{PhaseUploading, PhaseRecorded, true},
		{PhaseRecorded, PhaseUploading, true},
		{PhaseRecorded, PhaseRecording, false},
		{PhaseUploading, PhaseCompleted, true},
		{PhaseError, PhaseRecorded, true},
		{PhaseCompleted, PhaseActive, false},
		{PhaseCompleted, PhaseExited, true},
		{PhaseRecording, PhaseExited, true},
		{PhaseExited, PhaseExited, false},
		{PhaseExited, PhaseStarting, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestPhaseTerminal(t *testing.T) {
	assert.True(t, PhaseCompleted.Terminal())
	assert.True(t, PhaseExited.Terminal())
	assert.False(t, PhaseError.Terminal())
}
