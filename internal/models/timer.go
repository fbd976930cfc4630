package models

import "time"

// TimerState is the durable record behind the recoverable answer timer.
// Times are epoch milliseconds, OptimalTime is seconds.
type TimerState struct {
	StartTime      int64 `json:"startTime"`
	OptimalTime    int   `json:"optimalTime"`
	QuestionSpoken bool  `json:"questionSpoken"`
	Timestamp      int64 `json:"timestamp"`
}

// Remaining returns max(0, optimalTime - elapsed) in whole seconds.
func (s TimerState) Remaining(now time.Time) int {
	elapsed := (now.UnixMilli() - s.StartTime) / 1000
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := int64(s.OptimalTime) - elapsed
	if remaining < 0 {
		return 0
	}
	return int(remaining)
}
