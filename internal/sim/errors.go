/*
Package sim
File: errors.go
Description:
    Sentinel errors of the simulation core. Callers match them with errors.Is.
*/

package sim

import "errors"

var (
	// ErrUnknownActivity is reported when a schedule slot names an activity
	// missing from the effect table. It is a warning, never fatal.
	ErrUnknownActivity = errors.New("unknown activity")
	// ErrUnknownStat is returned when an external delta names no stat.
	ErrUnknownStat = errors.New("unknown stat")
	// ErrDeltaOutOfRange is returned for an external delta beyond ±MaxDelta.
	ErrDeltaOutOfRange = errors.New("stat change out of range")
	// ErrInvalidHour is returned for schedule hours outside 0..23.
	ErrInvalidHour = errors.New("hour out of range")
	// ErrMalformedSchedule is returned when persisted slots cannot form a day.
	ErrMalformedSchedule = errors.New("malformed schedule")
	// ErrScheduleConflict is returned when two blocks claim the same hour.
	ErrScheduleConflict = errors.New("schedule conflict")
)
