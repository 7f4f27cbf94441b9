/*
Package game
File: session.go
Description:
    The runtime wrapper around one player's simulation state.

    A Session owns exactly one sim.State. Every mutation takes the session
    lock for the whole transition, so ticks, direct effects, schedule edits,
    pause and reset never interleave. Ticks are additionally single-flighted:
    a heartbeat that fires while a tick is still committing joins that tick
    instead of stepping twice.

    After each commit the session hands a Snapshot to its commit hook
    (persistence queue + live broadcast). Hooks run under the lock and must
    not block.
*/

package game

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/everforgeworks/quarantine-life/internal/sim"
)

var tracer = otel.Tracer("github.com/everforgeworks/quarantine-life/internal/game")

var (
	// ErrPaused is returned when a tick is requested on a paused session.
	ErrPaused = errors.New("session is paused")
	// ErrInvalidSessionID is returned for ids that cannot be used as storage keys.
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrSessionNotFound is returned by Manager.Find for ids never created.
	ErrSessionNotFound = errors.New("session not found")
)

// Snapshot is an immutable copy of a session at one revision.
type Snapshot struct {
	ID       string `json:"id"`
	Revision uint64 `json:"revision"`
	sim.State
	Paused bool `json:"paused"`
}

// CommitFunc receives every committed snapshot. It is called with the session
// lock held and must return quickly.
type CommitFunc func(Snapshot)

// Session is one player's simulation.
type Session struct {
	id     string
	flight singleflight.Group

	mu       sync.Mutex
	state    sim.State
	paused   bool
	revision uint64
	onCommit CommitFunc
}

// NewSession wraps an existing state. onCommit may be nil.
func NewSession(id string, st sim.State, onCommit CommitFunc) *Session {
	return &Session{id: id, state: st, onCommit: onCommit}
}

func (s *Session) ID() string { return s.id }

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{ID: s.id, Revision: s.revision, State: s.state, Paused: s.paused}
}

// commitLocked stores the new state and notifies the hook. Caller holds mu.
func (s *Session) commitLocked(st sim.State) Snapshot {
	s.state = st
	s.revision++
	snap := s.snapshotLocked()
	if s.onCommit != nil {
		s.onCommit(snap)
	}
	return snap
}

// TickResult is what one simulation hour produced.
type TickResult struct {
	Snapshot Snapshot
	Report   sim.Report
}

// Tick advances the session one game hour. Concurrent callers share a single
// step. A terminal session is left untouched and reports Skipped.
func (s *Session) Tick(ctx context.Context) (TickResult, error) {
	v, err, _ := s.flight.Do("tick", func() (any, error) {
		_, span := tracer.Start(ctx, "game.Tick", trace.WithAttributes(attribute.String("session.id", s.id)))
		defer span.End()

		s.mu.Lock()
		defer s.mu.Unlock()

		if s.paused {
			return TickResult{Snapshot: s.snapshotLocked(), Report: sim.Report{Skipped: true}}, ErrPaused
		}
		next, rep := sim.Step(s.state)
		if rep.Skipped {
			return TickResult{Snapshot: s.snapshotLocked(), Report: rep}, nil
		}
		span.SetAttributes(
			attribute.String("activity", string(rep.Activity)),
			attribute.Int("game.day", next.Time.Day),
			attribute.Int("game.hour", next.Time.Hour),
		)
		return TickResult{Snapshot: s.commitLocked(next), Report: rep}, nil
	})
	return v.(TickResult), err
}

// Apply runs a direct effect (event, item, manual adjustment) without
// advancing time. It works while paused; a terminal session ignores it.
func (s *Session) Apply(ctx context.Context, e sim.Effect) (before sim.Stats, res TickResult) {
	before, res, _ = s.ApplyChecked(ctx, e, nil)
	return before, res
}

// ApplyChecked is Apply guarded by check, which sees the state under the same
// lock as the mutation. A non-nil error from check aborts without changes.
func (s *Session) ApplyChecked(ctx context.Context, e sim.Effect, check func(sim.State) error) (sim.Stats, TickResult, error) {
	_, span := tracer.Start(ctx, "game.Apply", trace.WithAttributes(attribute.String("session.id", s.id)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.state.Stats
	if check != nil {
		if err := check(s.state); err != nil {
			return before, TickResult{Snapshot: s.snapshotLocked(), Report: sim.Report{Skipped: true}}, err
		}
	}
	next, rep := sim.ApplyDirect(s.state, e)
	if rep.Skipped {
		return before, TickResult{Snapshot: s.snapshotLocked(), Report: rep}, nil
	}
	return before, TickResult{Snapshot: s.commitLocked(next), Report: rep}, nil
}

// Assign sets one schedule slot. Allowed in every state, including game over.
func (s *Session) Assign(hour int, id sim.ActivityID) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	if err := next.Schedule.Assign(hour, id); err != nil {
		return s.snapshotLocked(), err
	}
	return s.commitLocked(next), nil
}

// AssignBlocks applies multi-hour blocks atomically.
func (s *Session) AssignBlocks(blocks []sim.Block) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, err := s.state.Schedule.WithBlocks(blocks)
	if err != nil {
		return s.snapshotLocked(), fmt.Errorf("assign blocks: %w", err)
	}
	next := s.state
	next.Schedule = sched
	return s.commitLocked(next), nil
}

// Reset restores the defaults and clears game over. Pause state is kept.
func (s *Session) Reset() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(sim.NewState())
}

// Pause stops heartbeat ticks until Resume.
func (s *Session) Pause() Snapshot {
	return s.setPaused(true)
}

func (s *Session) Resume() Snapshot {
	return s.setPaused(false)
}

func (s *Session) setPaused(p bool) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused == p {
		return s.snapshotLocked()
	}
	s.paused = p
	return s.commitLocked(s.state)
}

// Runnable reports whether the heartbeat should tick this session.
func (s *Session) Runnable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.paused && !s.state.GameOver.Over
}
