package models

// Score names reported by the voice analysis service.
const (
	ScoreConfidence       = "confidence"
	ScoreStressResistance = "stress_resistance"
	ScoreCommunication    = "communication"
	ScoreEnergy           = "energy"
)

// VoiceAnalysis describes speech characteristics of one recorded answer.
// Scores are in [0,100].
type VoiceAnalysis struct {
	Tags         []string           `json:"tags" bson:"tags"`
	Scores       map[string]float64 `json:"scores" bson:"scores"`
	OverallScore *float64           `json:"overall_score,omitempty" bson:"overall_score,omitempty"`
}

// Normalized returns a copy with scores clamped to [0,100] and nil slices/maps
// replaced with empty ones.
func (a *VoiceAnalysis) Normalized() *VoiceAnalysis {
	if a == nil {
		return nil
	}
	out := &VoiceAnalysis{
		Tags:   append([]string{}, a.Tags...),
		Scores: make(map[string]float64, len(a.Scores)),
	}
	for k, v := range a.Scores {
		out.Scores[k] = clampScore(v)
	}
	if a.OverallScore != nil {
		v := clampScore(*a.OverallScore)
		out.OverallScore = &v
	}
	return out
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
