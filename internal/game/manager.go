/*
Package game
File: manager.go
Description:
    Keeps the set of live sessions, loading each one from the persistence
    gateway the first time it is touched. A missing or unreadable save never
    blocks play: the session starts from defaults and the problem is logged.
*/

package game

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/everforgeworks/quarantine-life/internal/sim"
	"github.com/everforgeworks/quarantine-life/internal/store"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Publisher receives committed snapshots for live delivery. Must not block.
type Publisher interface {
	Publish(Snapshot)
}

// Manager owns every live session.
type Manager struct {
	gateway   store.Gateway
	history   store.History
	saver     *Saver
	publisher Publisher
	logger    *log.Logger
	now       func() time.Time

	loads singleflight.Group

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithHistory records direct stat changes.
func WithHistory(h store.History) Option {
	return func(m *Manager) { m.history = h }
}

// WithSaver queues every commit for persistence.
func WithSaver(s *Saver) Option {
	return func(m *Manager) { m.saver = s }
}

// WithPublisher forwards every commit to live subscribers.
func WithPublisher(p Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithClock overrides the wall clock used for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(gateway store.Gateway, logger *log.Logger, opts ...Option) *Manager {
	m := &Manager{
		gateway:  gateway,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) commitHook(snap Snapshot) {
	if m.saver != nil {
		m.saver.Enqueue(snap)
	}
	if m.publisher != nil {
		m.publisher.Publish(snap)
	}
}

// Create starts a brand-new session with a random id.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	sess := NewSession(id, sim.NewState(), m.commitHook)

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	m.logger.Info("session created", "session", id)
	if m.saver != nil {
		m.saver.Enqueue(sess.Snapshot())
	}
	return sess, nil
}

// Open returns the live session for id, loading it on first use. An id with
// no save starts a fresh session under that id.
func (m *Manager) Open(ctx context.Context, id string) (*Session, error) {
	return m.open(ctx, id, true)
}

// Find is Open for callers that must not create sessions: an id that is
// neither live nor saved yields ErrSessionNotFound.
func (m *Manager) Find(ctx context.Context, id string) (*Session, error) {
	return m.open(ctx, id, false)
}

func (m *Manager) open(ctx context.Context, id string, create bool) (*Session, error) {
	if !validID.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}

	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return sess, nil
	}

	key := id
	if !create {
		key = "find:" + id
	}
	v, err, _ := m.loads.Do(key, func() (any, error) {
		m.mu.RLock()
		existing, ok := m.sessions[id]
		m.mu.RUnlock()
		if ok {
			return existing, nil
		}

		st, found := m.load(ctx, id)
		if !found && !create {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if existing, ok := m.sessions[id]; ok {
			return existing, nil
		}
		sess := NewSession(id, st, m.commitHook)
		m.sessions[id] = sess
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// load never fails: storage problems fall back to defaults. found is false
// only when the gateway reports that nothing is stored for id.
func (m *Manager) load(ctx context.Context, id string) (st sim.State, found bool) {
	if m.gateway == nil {
		return sim.NewState(), false
	}
	rec, err := m.gateway.Load(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		m.logger.Info("no save found", "session", id)
		return sim.NewState(), false
	case err != nil:
		m.logger.Warn("persistence unavailable, starting fresh", "session", id, "err", err)
		return sim.NewState(), true
	}
	st, warnings := rec.State()
	for _, w := range warnings {
		m.logger.Warn("repaired stored session", "session", id, "warning", w)
	}
	return st, true
}

// Sessions lists live sessions ordered by id.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Tick advances one session and logs what the step reported.
func (m *Manager) Tick(ctx context.Context, sess *Session) (TickResult, error) {
	res, err := sess.Tick(ctx)
	if err != nil {
		return res, err
	}
	if res.Report.Warning != nil {
		m.logger.Warn("scheduled activity ignored", "session", sess.id, "hour", res.Snapshot.Time.Hour, "err", res.Report.Warning)
	}
	if res.Report.Ended {
		m.logger.Info("game over", "session", sess.id, "reason", res.Snapshot.GameOver.Reason, "time", res.Snapshot.Time)
	}
	return res, nil
}

// TickAll advances every runnable session once and returns how many moved.
func (m *Manager) TickAll(ctx context.Context) int {
	n := 0
	for _, sess := range m.Sessions() {
		if !sess.Runnable() {
			continue
		}
		if _, err := m.Tick(ctx, sess); err != nil {
			// Paused between Runnable and Tick.
			continue
		}
		n++
	}
	return n
}

// Apply runs a direct effect and records every stat it changed.
func (m *Manager) Apply(ctx context.Context, sess *Session, e sim.Effect, reason string) TickResult {
	res, _ := m.ApplyChecked(ctx, sess, e, reason, nil)
	return res
}

// ApplyChecked is Apply guarded by an atomic precondition (see Session.ApplyChecked).
func (m *Manager) ApplyChecked(ctx context.Context, sess *Session, e sim.Effect, reason string, check func(sim.State) error) (TickResult, error) {
	before, res, err := sess.ApplyChecked(ctx, e, check)
	if err != nil || res.Report.Skipped {
		return res, err
	}
	if res.Report.Ended {
		m.logger.Info("game over", "session", sess.id, "reason", res.Snapshot.GameOver.Reason, "cause", reason)
	}
	if m.history == nil {
		return res, nil
	}
	after := res.Snapshot.Stats
	for _, name := range sim.StatNames {
		change, ok := e[name]
		if !ok || change == 0 {
			continue
		}
		row := store.StatChange{
			SessionID: sess.id,
			Stat:      string(name),
			Previous:  before.Get(name),
			New:       after.Get(name),
			Change:    change,
			Reason:    reason,
			At:        m.now(),
		}
		if err := m.history.RecordStatChange(ctx, row); err != nil {
			m.logger.Warn("stat history not recorded", "session", sess.id, "stat", name, "err", err)
		}
	}
	return res, nil
}
