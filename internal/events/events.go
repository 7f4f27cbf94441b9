/*
Package events
File: events.go
Description:
    Rolls random catalog events against running sessions.
    The simulation core never chooses events; it only applies what this
    package hands it.
*/

package events

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/everforgeworks/quarantine-life/internal/catalog"
	"github.com/everforgeworks/quarantine-life/internal/game"
)

// ErrEventNotFound is returned when firing an id missing from the catalog.
var ErrEventNotFound = errors.New("event not found")

// Roller picks weighted random events.
type Roller struct {
	Catalog *catalog.Source
	Manager *game.Manager
	Logger  *log.Logger
	// Chance is the per-session, per-heartbeat probability of an event (0..1).
	Chance float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRoller seeds its own generator so tests can be reproducible.
func NewRoller(src *catalog.Source, m *game.Manager, logger *log.Logger, chance float64, seed uint64) *Roller {
	return &Roller{
		Catalog: src,
		Manager: m,
		Logger:  logger,
		Chance:  chance,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Pick draws one event by weight. False when the catalog has none.
func (r *Roller) Pick() (catalog.Event, bool) {
	evs := r.Catalog.Current().Events
	total := 0
	for _, e := range evs {
		total += e.Weight
	}
	if total <= 0 {
		return catalog.Event{}, false
	}

	r.mu.Lock()
	n := r.rng.IntN(total)
	r.mu.Unlock()

	for _, e := range evs {
		if n < e.Weight {
			return e, true
		}
		n -= e.Weight
	}
	return catalog.Event{}, false
}

func (r *Roller) hit() bool {
	if r.Chance <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64() < r.Chance
}

// RollAll gives every runnable session its chance at an event. It is meant
// to be the heartbeat's AfterTick hook.
func (r *Roller) RollAll(ctx context.Context) {
	for _, sess := range r.Manager.Sessions() {
		if !sess.Runnable() || !r.hit() {
			continue
		}
		ev, ok := r.Pick()
		if !ok {
			return
		}
		r.apply(ctx, sess, ev)
	}
}

// Fire applies a specific event by id.
func (r *Roller) Fire(ctx context.Context, sess *game.Session, eventID string) (game.TickResult, error) {
	for _, ev := range r.Catalog.Current().Events {
		if ev.ID == eventID {
			return r.apply(ctx, sess, ev), nil
		}
	}
	return game.TickResult{}, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
}

func (r *Roller) apply(ctx context.Context, sess *game.Session, ev catalog.Event) game.TickResult {
	res := r.Manager.Apply(ctx, sess, ev.Effect(), "Event: "+ev.Description)
	if !res.Report.Skipped {
		r.Logger.Info("event", "session", sess.ID(), "event", ev.ID)
	}
	return res
}
