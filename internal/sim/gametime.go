/*
Package sim
File: gametime.go
Description:
    The simulated clock: day and hour, one hour per step.
*/

package sim

import "fmt"

// HoursPerDay is the length of a game day and of the schedule.
const HoursPerDay = 24

// GameTime is the simulated clock. Day starts at 1.
type GameTime struct {
	Day  int `json:"day" yaml:"day"`
	Hour int `json:"hour" yaml:"hour"`
}

// StartTime is day 1, midnight.
func StartTime() GameTime {
	return GameTime{Day: 1, Hour: 0}
}

// Next advances one hour, rolling the day over after hour 23.
func (t GameTime) Next() GameTime {
	next := GameTime{Day: t.Day, Hour: t.Hour + 1}
	if next.Hour == HoursPerDay {
		next.Hour = 0
		next.Day++
	}
	return next
}

// Valid reports whether the time is well formed.
func (t GameTime) Valid() bool {
	return t.Day >= 1 && t.Hour >= 0 && t.Hour < HoursPerDay
}

func (t GameTime) String() string {
	return fmt.Sprintf("Day %d, %02d:00", t.Day, t.Hour)
}
