/*
Package sim
File: effects.go
Description:
    The activity effect table: what one scheduled hour of each activity
    does to the stats. This table is the single source of truth for
    activity balance; every other component reads it through LookupEffect.
*/

package sim

import (
	"fmt"
	"maps"
	"sort"
)

// ActivityID names a schedulable activity (e.g., "work").
type ActivityID string

// Idle is the fallback activity for empty slots.
const Idle ActivityID = "idle"

const (
	Work        ActivityID = "work"
	Sleep       ActivityID = "sleep"
	EatFast     ActivityID = "eat_fast"
	EatHealthy  ActivityID = "eat_healthy"
	TV          ActivityID = "tv"
	Games       ActivityID = "games"
	Read        ActivityID = "read"
	WaterFlower ActivityID = "water_flower"
	Exercise    ActivityID = "exercise"
	Meditate    ActivityID = "meditate"
)

// Effect is a partial stat -> delta mapping. Missing keys mean zero.
// Activities, shop items and random events all share this shape.
type Effect map[StatName]int

// ParseEffect converts loosely-typed external deltas (YAML, JSON bodies)
// into an Effect, rejecting keys that are not stats and deltas beyond
// ±MaxDelta.
func ParseEffect(raw map[string]int) (Effect, error) {
	e := make(Effect, len(raw))
	for k, v := range raw {
		name, err := ParseStatName(k)
		if err != nil {
			return nil, err
		}
		if err := CheckDelta(name, v); err != nil {
			return nil, err
		}
		e[name] = addSat(e[name], v)
		if err := CheckDelta(name, e[name]); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Activity describes one entry of the effect table.
type Activity struct {
	ID     ActivityID `json:"id"`
	Name   string     `json:"name"`
	Effect Effect     `json:"stats_effects"`
}

var activityNames = map[ActivityID]string{
	Work:        "Work",
	Sleep:       "Sleep",
	EatFast:     "Fast food",
	EatHealthy:  "Healthy meal",
	TV:          "Watch TV",
	Games:       "Video games",
	Read:        "Read",
	WaterFlower: "Water the flower",
	Exercise:    "Exercise",
	Meditate:    "Meditate",
	Idle:        "Idle",
}

var effectTable = map[ActivityID]Effect{
	Work:        {Hunger: -5, Stress: +5, Tone: -5, Money: +10},
	Sleep:       {Stress: -8, Tone: +10, Health: +2},
	EatFast:     {Hunger: +50, Stress: -2, Tone: -2, Health: -10, Money: -5},
	EatHealthy:  {Hunger: +30, Stress: -1, Health: +5, Money: -15},
	TV:          {Hunger: -1, Stress: -10, Tone: -5},
	Games:       {Hunger: -1, Stress: -15, Tone: -10, Health: -5},
	Read:        {Hunger: -1, Stress: -8, Tone: -5, Health: +2},
	WaterFlower: {Stress: -5, Health: +1},
	Exercise:    {Hunger: -2, Stress: -5, Tone: +5, Health: +3},
	Meditate:    {Stress: -10, Tone: +2, Health: +1},
	Idle:        {Hunger: -2, Stress: +1, Tone: -1},
}

// LookupEffect returns a copy of the activity's effect. An empty id resolves
// to Idle. Unknown ids yield an empty effect and a wrapped ErrUnknownActivity.
func LookupEffect(id ActivityID) (Effect, error) {
	if id == "" {
		id = Idle
	}
	e, ok := effectTable[id]
	if !ok {
		return Effect{}, fmt.Errorf("%w: %q", ErrUnknownActivity, id)
	}
	return maps.Clone(e), nil
}

// IsActivity reports whether id is in the effect table.
func IsActivity(id ActivityID) bool {
	_, ok := effectTable[id]
	return ok
}

// Activities lists the effect table sorted by id.
func Activities() []Activity {
	out := make([]Activity, 0, len(effectTable))
	for id, e := range effectTable {
		out = append(out, Activity{ID: id, Name: activityNames[id], Effect: maps.Clone(e)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
