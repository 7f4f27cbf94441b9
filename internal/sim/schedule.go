/*
Package sim
File: schedule.go
Description:
    The daily schedule: one activity per hour of the day. The schedule is
    a fixed-size array so it can never hold anything but 24 slots.
*/

package sim

import "fmt"

// Schedule maps hour-of-day to activity. An empty slot means Idle.
type Schedule [HoursPerDay]ActivityID

// DefaultSchedule fills every hour with Idle.
func DefaultSchedule() Schedule {
	var s Schedule
	for h := range s {
		s[h] = Idle
	}
	return s
}

// At returns the activity for hour, resolving empty slots to Idle.
func (s Schedule) At(hour int) ActivityID {
	if hour < 0 || hour >= HoursPerDay || s[hour] == "" {
		return Idle
	}
	return s[hour]
}

// Assign puts an activity in one hour slot. An empty id clears the slot back
// to Idle. Only activities from the effect table are accepted.
func (s *Schedule) Assign(hour int, id ActivityID) error {
	if hour < 0 || hour >= HoursPerDay {
		return fmt.Errorf("%w: %d", ErrInvalidHour, hour)
	}
	if id == "" {
		id = Idle
	}
	if !IsActivity(id) {
		return fmt.Errorf("%w: %q", ErrUnknownActivity, id)
	}
	s[hour] = id
	return nil
}

// Slots returns the schedule in its persisted form.
func (s Schedule) Slots() []string {
	out := make([]string, HoursPerDay)
	for h, id := range s {
		out[h] = string(id)
	}
	return out
}

// ScheduleFromSlots rebuilds a schedule from persisted slots. Anything other
// than exactly 24 slots is malformed and yields the default schedule alongside
// ErrMalformedSchedule. Unknown activity ids are kept; the step reports them.
func ScheduleFromSlots(slots []string) (Schedule, error) {
	if len(slots) != HoursPerDay {
		return DefaultSchedule(), fmt.Errorf("%w: %d slots", ErrMalformedSchedule, len(slots))
	}
	var s Schedule
	for h, raw := range slots {
		s[h] = ActivityID(raw)
		if s[h] == "" {
			s[h] = Idle
		}
	}
	return s, nil
}

// Block is a multi-hour assignment as sent by the schedule planner.
type Block struct {
	ActivityID    ActivityID `json:"activity_id"`
	StartHour     int        `json:"start_hour"`
	DurationHours int        `json:"duration_hours"`
}

// MaxBlockHours caps a single block.
const MaxBlockHours = 4

// WithBlocks returns a copy of the schedule with every block applied.
// Blocks may not run past midnight or overlap each other; on any error the
// receiver is left untouched.
func (s Schedule) WithBlocks(blocks []Block) (Schedule, error) {
	var claimed [HoursPerDay]bool
	out := s
	for _, b := range blocks {
		dur := b.DurationHours
		if dur == 0 {
			dur = 1
		}
		if dur < 1 || dur > MaxBlockHours {
			return s, fmt.Errorf("block %q: duration %d not in 1..%d", b.ActivityID, dur, MaxBlockHours)
		}
		if b.StartHour < 0 || b.StartHour >= HoursPerDay {
			return s, fmt.Errorf("%w: %d", ErrInvalidHour, b.StartHour)
		}
		if b.StartHour+dur > HoursPerDay {
			return s, fmt.Errorf("block %q extends past midnight (starts at %d, duration %d)", b.ActivityID, b.StartHour, dur)
		}
		for h := b.StartHour; h < b.StartHour+dur; h++ {
			if claimed[h] {
				return s, fmt.Errorf("%w at hour %d", ErrScheduleConflict, h)
			}
			claimed[h] = true
			if err := out.Assign(h, b.ActivityID); err != nil {
				return s, err
			}
		}
	}
	return out, nil
}
