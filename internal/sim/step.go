/*
Package sim
File: step.go
Description:
    The simulation step. Step and ApplyDirect are pure: they take a State
    value and return the next one plus a Report describing what happened.
    Callers own locking, logging and persistence.
*/

package sim

// State is everything one player session simulates.
type State struct {
	Stats    Stats    `json:"stats"`
	Time     GameTime `json:"game_time"`
	Schedule Schedule `json:"schedule"`
	GameOver GameOver `json:"game_over"`
}

// NewState returns the state of a fresh (or reset) session.
func NewState() State {
	return State{
		Stats:    DefaultStats(),
		Time:     StartTime(),
		Schedule: DefaultSchedule(),
	}
}

// Report describes the outcome of a Step or ApplyDirect call.
type Report struct {
	Activity ActivityID // Activity that ran (Step only)
	Effect   Effect     // Deltas actually requested
	Warning  error      // Non-fatal problem, e.g. ErrUnknownActivity
	Skipped  bool       // State was already terminal; nothing changed
	Ended    bool       // This call moved the session into game over
}

// Step advances the state by one game hour, running the activity scheduled
// for the new hour. A terminal state is returned unchanged.
func Step(st State) (State, Report) {
	if st.GameOver.Over {
		return st, Report{Skipped: true}
	}

	// 1. Advance the clock
	next := st.Time.Next()

	// 2. Resolve the scheduled activity
	activity := st.Schedule.At(next.Hour)
	effect, warn := LookupEffect(activity)

	// 3. Apply and judge
	out := st
	out.Time = next
	out.Stats = st.Stats.Apply(effect)
	out.GameOver = EvaluateGameOver(out.Stats)

	return out, Report{
		Activity: activity,
		Effect:   effect,
		Warning:  warn,
		Ended:    out.GameOver.Over,
	}
}

// ApplyDirect applies an event or item effect without advancing time.
func ApplyDirect(st State, e Effect) (State, Report) {
	if st.GameOver.Over {
		return st, Report{Skipped: true}
	}
	out := st
	out.Stats = st.Stats.Apply(e)
	out.GameOver = EvaluateGameOver(out.Stats)
	return out, Report{Effect: e, Ended: out.GameOver.Over}
}
