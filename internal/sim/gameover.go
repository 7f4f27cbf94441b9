/*
Package sim
File: gameover.go
Description:
    The game-over policy. Health is checked first, then hunger, then stress.
*/

package sim

// Game-over reasons, in evaluation priority.
const (
	ReasonHealth     = "health reached zero"
	ReasonStarvation = "starvation"
	ReasonBurnout    = "burnout"
)

// GameOver is the terminal flag of a session.
type GameOver struct {
	Over   bool   `json:"is_over" yaml:"is_over"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// EvaluateGameOver checks the fatal thresholds. Health is checked first,
// then hunger, then stress; the first one that fires is reported.
func EvaluateGameOver(s Stats) GameOver {
	switch {
	case s.Health <= MinStat:
		return GameOver{Over: true, Reason: ReasonHealth}
	case s.Hunger <= MinStat:
		return GameOver{Over: true, Reason: ReasonStarvation}
	case s.Stress >= MaxStat:
		return GameOver{Over: true, Reason: ReasonBurnout}
	}
	return GameOver{}
}
