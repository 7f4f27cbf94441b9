package game

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everforgeworks/quarantine-life/internal/sim"
	"github.com/everforgeworks/quarantine-life/internal/store"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

type recorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *recorder) Publish(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

type brokenGateway struct{}

func (brokenGateway) Load(context.Context, string) (store.Record, error) {
	return store.Record{}, errors.New("connection refused")
}

func (brokenGateway) Save(context.Context, string, store.Record) error {
	return errors.New("connection refused")
}

func TestSessionTickCommits(t *testing.T) {
	rec := &recorder{}
	st := sim.NewState()
	st.Schedule[1] = sim.Work
	sess := NewSession("s1", st, rec.Publish)

	res, err := sess.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sim.Stats{Hunger: 65, Stress: 25, Tone: 75, Health: 90, Money: 60}, res.Snapshot.Stats)
	assert.Equal(t, uint64(1), res.Snapshot.Revision)
	assert.Equal(t, 1, rec.count())
	assert.Equal(t, res.Snapshot, sess.Snapshot())
}

func TestSessionPauseStopsTicks(t *testing.T) {
	sess := NewSession("s1", sim.NewState(), nil)
	sess.Pause()
	assert.False(t, sess.Runnable())

	res, err := sess.Tick(context.Background())
	assert.ErrorIs(t, err, ErrPaused)
	assert.Equal(t, sim.StartTime(), res.Snapshot.Time)

	// Schedule edits and direct effects still work while paused.
	_, err = sess.Assign(5, sim.Sleep)
	require.NoError(t, err)
	_, applied := sess.Apply(context.Background(), sim.Effect{sim.Money: 5})
	assert.Equal(t, 55, applied.Snapshot.Stats.Money)

	sess.Resume()
	res, err = sess.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Snapshot.Time.Hour)
}

func TestSessionGameOverIsTerminalUntilReset(t *testing.T) {
	st := sim.NewState()
	st.Stats.Hunger = 1
	sess := NewSession("s1", st, nil)

	res, err := sess.Tick(context.Background())
	require.NoError(t, err)
	require.True(t, res.Report.Ended)
	frozen := sess.Snapshot()
	assert.False(t, sess.Runnable())

	res, err = sess.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Report.Skipped)
	_, applied := sess.Apply(context.Background(), sim.Effect{sim.Hunger: 40})
	assert.True(t, applied.Report.Skipped)
	assert.Equal(t, frozen, sess.Snapshot())

	// The schedule editor keeps working.
	_, err = sess.Assign(3, sim.Read)
	require.NoError(t, err)

	reset := sess.Reset()
	assert.Equal(t, sim.NewState(), reset.State)
	assert.True(t, sess.Runnable())
}

func TestSessionConcurrentTicksStaySerial(t *testing.T) {
	sess := NewSession("s1", sim.NewState(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = sess.Tick(context.Background())
		}()
	}
	wg.Wait()

	snap := sess.Snapshot()
	hours := (snap.Time.Day-1)*sim.HoursPerDay + snap.Time.Hour
	assert.GreaterOrEqual(t, hours, 1)
	assert.LessOrEqual(t, hours, 64)
	assert.Equal(t, uint64(hours), snap.Revision, "every commit is exactly one hour")
}

func TestSessionAssignBlocksAtomic(t *testing.T) {
	sess := NewSession("s1", sim.NewState(), nil)

	_, err := sess.AssignBlocks([]sim.Block{
		{ActivityID: sim.Work, StartHour: 9, DurationHours: 4},
		{ActivityID: sim.TV, StartHour: 12, DurationHours: 1},
	})
	assert.ErrorIs(t, err, sim.ErrScheduleConflict)
	assert.Equal(t, sim.DefaultSchedule(), sess.Snapshot().Schedule)

	snap, err := sess.AssignBlocks([]sim.Block{{ActivityID: sim.Work, StartHour: 9, DurationHours: 4}})
	require.NoError(t, err)
	assert.Equal(t, sim.Work, snap.Schedule[12])
}

func TestManagerOpenFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()

	m := NewManager(store.NewMemory(), quietLogger())
	sess, err := m.Open(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, sim.NewState(), sess.Snapshot().State)

	again, err := m.Open(ctx, "fresh")
	require.NoError(t, err)
	assert.Same(t, sess, again)

	broken := NewManager(brokenGateway{}, quietLogger())
	sess, err = broken.Open(ctx, "offline")
	require.NoError(t, err)
	assert.Equal(t, sim.NewState(), sess.Snapshot().State)

	_, err = m.Open(ctx, "../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidSessionID)
}

func TestManagerFindDoesNotCreate(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	m := NewManager(mem, quietLogger())

	_, err := m.Find(ctx, "ghost")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.Empty(t, m.Sessions(), "a failed lookup must not leave a live session behind")

	_, err = m.Find(ctx, "bad id")
	assert.ErrorIs(t, err, ErrInvalidSessionID)

	created, err := m.Create(ctx)
	require.NoError(t, err)
	found, err := m.Find(ctx, created.ID())
	require.NoError(t, err)
	assert.Same(t, created, found)

	// Saved but not live: Find loads it.
	st := sim.NewState()
	st.Stats.Money = 321
	require.NoError(t, mem.Save(ctx, "saved", store.RecordFromState(st)))
	loaded, err := m.Find(ctx, "saved")
	require.NoError(t, err)
	assert.Equal(t, 321, loaded.Snapshot().Stats.Money)
	assert.Len(t, m.Sessions(), 2)
}

func TestManagerOpenRepairsSchedule(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	rec := store.RecordFromState(sim.NewState())
	rec.Stats.Money = 321
	rec.Schedule = []string{"work"}
	require.NoError(t, mem.Save(ctx, "s1", rec))

	m := NewManager(mem, quietLogger())
	sess, err := m.Open(ctx, "s1")
	require.NoError(t, err)

	snap := sess.Snapshot()
	assert.Equal(t, 321, snap.Stats.Money)
	assert.Equal(t, sim.DefaultSchedule(), snap.Schedule)
}

func TestManagerApplyRecordsHistory(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(mem, quietLogger(), WithHistory(mem), WithClock(func() time.Time { return at }))
	sess, err := m.Open(ctx, "s1")
	require.NoError(t, err)

	res := m.Apply(ctx, sess, sim.Effect{sim.Hunger: 50, sim.Money: -10}, "pizza")
	assert.Equal(t, 100, res.Snapshot.Stats.Hunger)

	rows, err := mem.ListStatChanges(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, store.StatChange{SessionID: "s1", Stat: "money", Previous: 50, New: 40, Change: -10, Reason: "pizza", At: at}, rows[0])
	assert.Equal(t, 100, rows[1].New)
}

func TestManagerTickAllSkipsPausedAndOver(t *testing.T) {
	ctx := context.Background()
	pub := &recorder{}
	m := NewManager(nil, quietLogger(), WithPublisher(pub))

	a, _ := m.Open(ctx, "a")
	b, _ := m.Open(ctx, "b")
	c, _ := m.Open(ctx, "c")
	b.Pause()
	m.Apply(ctx, c, sim.Effect{sim.Health: -100}, "test")

	hb := &Heartbeat{Manager: m, Logger: quietLogger()}
	fired := 0
	hb.AfterTick = func(context.Context) { fired++ }
	hb.Beat(ctx)

	assert.Equal(t, 1, a.Snapshot().Time.Hour)
	assert.Equal(t, 0, b.Snapshot().Time.Hour)
	assert.Equal(t, 0, c.Snapshot().Time.Hour)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 3, pub.count(), "pause, apply, tick")
}

func TestHeartbeatRunStopsWithContext(t *testing.T) {
	m := NewManager(nil, quietLogger())
	sess, err := m.Open(context.Background(), "s1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	hb := &Heartbeat{Manager: m, Interval: 5 * time.Millisecond, Logger: quietLogger()}
	go func() {
		hb.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sess.Snapshot().Time.Hour >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("heartbeat did not stop")
	}
}

func fastSaver(gw store.Gateway) *Saver {
	s := NewSaver(gw, quietLogger())
	s.InitialInterval = time.Millisecond
	s.MaxInterval = 2 * time.Millisecond
	s.MaxElapsed = 50 * time.Millisecond
	s.RetryDelay = 5 * time.Millisecond
	return s
}

func TestSaverRetriesUntilSaved(t *testing.T) {
	mem := store.NewMemory()
	mem.FailSaves = func(attempt int) error {
		if attempt <= 2 {
			return errors.New("database is locked")
		}
		return nil
	}
	s := fastSaver(mem)

	st := sim.NewState()
	st.Stats.Money = 77
	s.Enqueue(Snapshot{ID: "s1", Revision: 1, State: st})
	s.Flush(context.Background())

	assert.Equal(t, 3, mem.Saves())
	assert.Equal(t, 0, s.Pending())
	rec, err := mem.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 77, rec.Stats.Money)
}

func TestSaverKeepsNewestAndRequeuesOnFailure(t *testing.T) {
	s := fastSaver(brokenGateway{})

	s.Enqueue(Snapshot{ID: "s1", Revision: 2})
	s.Enqueue(Snapshot{ID: "s1", Revision: 1})
	s.Enqueue(Snapshot{ID: "s2", Revision: 1})
	assert.Equal(t, 2, s.Pending())

	s.Flush(context.Background())
	assert.Equal(t, 2, s.Pending(), "failed saves stay queued")
}

func TestManagerPersistsThroughSaver(t *testing.T) {
	mem := store.NewMemory()
	saver := fastSaver(mem)
	m := NewManager(mem, quietLogger(), WithSaver(saver))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go saver.Run(ctx)

	sess, err := m.Create(ctx)
	require.NoError(t, err)
	_, err = sess.Assign(1, sim.Work)
	require.NoError(t, err)
	_, err = m.Tick(ctx, sess)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rec, err := mem.Load(context.Background(), sess.ID())
		return err == nil && rec.Time.Hour == 1 && rec.Stats.Money == 60
	}, time.Second, 5*time.Millisecond)

	// A second manager picks the session up where the first left off.
	other := NewManager(mem, quietLogger())
	reopened, err := other.Open(context.Background(), sess.ID())
	require.NoError(t, err)
	assert.Equal(t, sess.Snapshot().State, reopened.Snapshot().State)
}

func TestSaverRetriesAfterLongOutage(t *testing.T) {
	mem := store.NewMemory()
	// Fails well past one backoff round (MaxElapsed 50ms, steps of ~2ms).
	mem.FailSaves = func(attempt int) error {
		if attempt <= 40 {
			return errors.New("disk unavailable")
		}
		return nil
	}
	saver := fastSaver(mem)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go saver.Run(ctx)

	// A game-over session never commits again, so nothing else wakes the saver.
	st := sim.NewState()
	st.Stats.Health = 0
	st.GameOver = sim.EvaluateGameOver(st.Stats)
	saver.Enqueue(Snapshot{ID: "s1", Revision: 9, State: st})

	require.Eventually(t, func() bool {
		rec, err := mem.Load(context.Background(), "s1")
		return err == nil && rec.GameOver.Over
	}, 3*time.Second, 10*time.Millisecond)
	assert.Greater(t, mem.Saves(), 40)
	assert.Eventually(t, func() bool { return saver.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

// stuckGateway fails every save for one session id.
type stuckGateway struct {
	*store.Memory
	stuck string
}

func (g stuckGateway) Save(ctx context.Context, id string, rec store.Record) error {
	if id == g.stuck {
		return errors.New("row locked")
	}
	return g.Memory.Save(ctx, id, rec)
}

func TestSaverFailingSessionDoesNotBlockOthers(t *testing.T) {
	mem := store.NewMemory()
	saver := fastSaver(stuckGateway{Memory: mem, stuck: "stuck"})
	saver.MaxElapsed = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go saver.Run(ctx)

	saver.Enqueue(Snapshot{ID: "stuck", Revision: 1, State: sim.NewState()})
	time.Sleep(10 * time.Millisecond) // let the stuck save start retrying

	st := sim.NewState()
	st.Stats.Money = 123
	saver.Enqueue(Snapshot{ID: "healthy", Revision: 1, State: st})

	require.Eventually(t, func() bool {
		rec, err := mem.Load(context.Background(), "healthy")
		return err == nil && rec.Stats.Money == 123
	}, time.Second, 5*time.Millisecond)

	_, err := mem.Load(context.Background(), "stuck")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaverNewerSnapshotWaitsForInFlightSave(t *testing.T) {
	mem := store.NewMemory()
	saver := fastSaver(mem)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go saver.Run(ctx)

	for rev := uint64(1); rev <= 20; rev++ {
		st := sim.NewState()
		st.Stats.Money = int(rev)
		saver.Enqueue(Snapshot{ID: "s1", Revision: rev, State: st})
	}

	require.Eventually(t, func() bool {
		rec, err := mem.Load(context.Background(), "s1")
		return err == nil && rec.Stats.Money == 20 && saver.Pending() == 0
	}, time.Second, 5*time.Millisecond)
}
