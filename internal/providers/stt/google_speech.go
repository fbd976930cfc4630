package stt

import (
	"context"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/Soln1shko/AI-HR/internal/utils"
)

const DefaultLanguage = "ru-RU"

type GoogleSpeech struct {
	c *speech.Client

	SampleRateHz int32
}

func NewGoogleSpeech(ctx context.Context) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{c: c, SampleRateHz: 48000}, nil
}

func (g *GoogleSpeech) Close() error { return g.c.Close() }

// language example: "ru-RU", "en-US"
func (g *GoogleSpeech) Transcribe(ctx context.Context, audio []byte, format, language string) (string, float64, error) {
	const op = "GoogleSpeech.Transcribe"

	if len(audio) == 0 {
		return "", 0, utils.E(utils.CodeInvalidArgument, op, "empty recording", nil)
	}
	enc, ok := encodingFor(format)
	if !ok {
		return "", 0, utils.E(utils.CodeInvalidArgument, op, "unsupported audio format "+format, nil)
	}
	if language == "" {
		language = DefaultLanguage
	}

	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   enc,
			SampleRateHertz:            g.SampleRateHz,
			LanguageCode:               language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return "", 0, utils.E(utils.CodeUnavailable, op, "recognize", err)
	}

	text, conf := joinResults(resp.GetResults())
	return text, conf, nil
}

func encodingFor(format string) (speechpb.RecognitionConfig_AudioEncoding, bool) {
	mime, _, _ := strings.Cut(strings.ToLower(format), ";")
	switch strings.TrimSpace(mime) {
	case "audio/webm", "video/webm":
		return speechpb.RecognitionConfig_WEBM_OPUS, true
	case "audio/ogg":
		return speechpb.RecognitionConfig_OGG_OPUS, true
	case "audio/wav", "audio/l16":
		return speechpb.RecognitionConfig_LINEAR16, true
	}
	return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, false
}

// joinResults takes the best alternative of every consecutive result and
// averages their confidence.
func joinResults(results []*speechpb.SpeechRecognitionResult) (string, float64) {
	var (
		parts []string
		sum   float64
	)
	for _, r := range results {
		var best *speechpb.SpeechRecognitionAlternative
		for _, alt := range r.GetAlternatives() {
			if alt.GetTranscript() == "" {
				continue
			}
			if best == nil || alt.GetConfidence() > best.GetConfidence() {
				best = alt
			}
		}
		if best == nil {
			continue
		}
		parts = append(parts, strings.TrimSpace(best.GetTranscript()))
		sum += float64(best.GetConfidence())
	}
	if len(parts) == 0 {
		return "", 0
	}
	return strings.Join(parts, " "), sum / float64(len(parts))
}
