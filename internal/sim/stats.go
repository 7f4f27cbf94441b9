/*
Package sim
File: stats.go
Description:
    The stat model of the character: five numeric stats, their bounds,
    and the clamping rules every mutation must go through.
*/

package sim

import (
	"fmt"
	"math"
	"strings"
)

// StatName identifies one of the five stats.
type StatName string

const (
	Hunger StatName = "hunger"
	Stress StatName = "stress"
	Tone   StatName = "tone"
	Health StatName = "health"
	Money  StatName = "money"
)

// Bounds for the four bounded stats. Money only has a floor.
const (
	MinStat  = 0
	MaxStat  = 100
	MinMoney = 0
)

// MaxDelta bounds a single externally supplied change (request bodies,
// catalog effects). Larger magnitudes are rejected with ErrDeltaOutOfRange.
const MaxDelta = 1_000_000

// StatNames lists every stat in display order.
var StatNames = []StatName{Hunger, Stress, Tone, Health, Money}

// ParseStatName validates an external stat key (case-insensitive).
func ParseStatName(raw string) (StatName, error) {
	name := StatName(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range StatNames {
		if name == known {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStat, raw)
}

// Stats is the character sheet.
type Stats struct {
	Hunger int `json:"hunger" yaml:"hunger"` // 100 = full, 0 = starving
	Stress int `json:"stress" yaml:"stress"` // 0 = calm, 100 = burnt out
	Tone   int `json:"tone" yaml:"tone"`     // Energy level
	Health int `json:"health" yaml:"health"`
	Money  int `json:"money" yaml:"money"` // No upper bound
}

// DefaultStats returns the values a new or reset session starts with.
func DefaultStats() Stats {
	return Stats{
		Hunger: 70,
		Stress: 20,
		Tone:   80,
		Health: 90,
		Money:  50,
	}
}

// Clamp bounds value to [lo, hi].
func Clamp(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// floor bounds value from below only.
func floor(value, lo int) int {
	if value < lo {
		return lo
	}
	return value
}

// addSat adds without wrapping: results stick at math.MaxInt / math.MinInt.
func addSat(a, b int) int {
	if b > 0 && a > math.MaxInt-b {
		return math.MaxInt
	}
	if b < 0 && a < math.MinInt-b {
		return math.MinInt
	}
	return a + b
}

// CheckDelta reports whether a single change is within ±MaxDelta.
func CheckDelta(name StatName, delta int) error {
	if delta > MaxDelta || delta < -MaxDelta {
		return fmt.Errorf("%w: %s %d", ErrDeltaOutOfRange, name, delta)
	}
	return nil
}

// Get returns the value of a single stat.
func (s Stats) Get(name StatName) int {
	switch name {
	case Hunger:
		return s.Hunger
	case Stress:
		return s.Stress
	case Tone:
		return s.Tone
	case Health:
		return s.Health
	case Money:
		return s.Money
	}
	return 0
}

// Apply adds every delta of the effect and re-establishes the bounds.
// Additions saturate, so an extreme delta pins the stat at its bound.
// Keys that are not stat names are ignored.
func (s Stats) Apply(e Effect) Stats {
	return Stats{
		Hunger: Clamp(addSat(s.Hunger, e[Hunger]), MinStat, MaxStat),
		Stress: Clamp(addSat(s.Stress, e[Stress]), MinStat, MaxStat),
		Tone:   Clamp(addSat(s.Tone, e[Tone]), MinStat, MaxStat),
		Health: Clamp(addSat(s.Health, e[Health]), MinStat, MaxStat),
		Money:  floor(addSat(s.Money, e[Money]), MinMoney),
	}
}

// Normalized clamps values that came from outside the simulation (storage,
// hand-edited saves). It reports whether anything had to change.
func (s Stats) Normalized() (Stats, bool) {
	n := s.Apply(nil)
	return n, n != s
}
