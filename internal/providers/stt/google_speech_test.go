package stt

import (
	"context"
	"testing"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/stretchr/testify/assert"

	"github.com/Soln1shko/AI-HR/internal/utils"
)

func TestEncodingFor(t *testing.T) {
	enc, ok := encodingFor("audio/webm;codecs=opus")
	assert.True(t, ok)
	assert.Equal(t, speechpb.RecognitionConfig_WEBM_OPUS, enc)

	enc, ok = encodingFor("audio/ogg;codecs=opus")
	assert.True(t, ok)
	assert.Equal(t, speechpb.RecognitionConfig_OGG_OPUS, enc)

	_, ok = encodingFor("video/mp4")
	assert.False(t, ok)
}

func TestJoinResults(t *testing.T) {
	text, conf := joinResults([]*speechpb.SpeechRecognitionResult{
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{
			{Transcript: "I worked ", Confidence: 0.6},
			{Transcript: "I walked", Confidence: 0.4},
		}},
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: ""}}},
		{Alternatives: []*speechpb.SpeechRecognitionAlternative{
			{Transcript: "on payments", Confidence: 1.0},
		}},
	})
	assert.Equal(t, "I worked on payments", text)
	assert.InDelta(t, 0.8, conf, 1e-6)

	text, conf = joinResults(nil)
	assert.Empty(t, text)
	assert.Zero(t, conf)
}

func TestTranscribe_RejectsBadInput(t *testing.T) {
	g := &GoogleSpeech{SampleRateHz: 48000}

	_, _, err := g.Transcribe(context.Background(), nil, "audio/webm", "")
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))

	_, _, err = g.Transcribe(context.Background(), []byte{1}, "video/mp4", "")
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
}
