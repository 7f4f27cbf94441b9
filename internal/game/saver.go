/*
Package game
File: saver.go
Description:
    Fire-and-forget persistence. Sessions enqueue snapshots without ever
    waiting on storage; the worker started by Run hands each session's newest
    snapshot to its own save goroutine, which retries failures with
    exponential backoff. Only the newest snapshot per session is kept, so a
    slow store never builds a backlog, and one failing session never holds
    up the others.

    A save that is still failing when its backoff gives up goes back in the
    queue (unless something newer arrived) and a retry is scheduled after
    RetryDelay. The in-memory session stays authoritative throughout.
*/

package game

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/charmbracelet/log"

	"github.com/everforgeworks/quarantine-life/internal/store"
)

// Saver writes snapshots to a gateway in the background.
type Saver struct {
	gateway store.Gateway
	logger  *log.Logger

	// Retry tuning. RetryDelay is the pause between a give-up and the next
	// round of attempts for the same snapshot.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	RetryDelay      time.Duration

	wake chan struct{}
	wg   sync.WaitGroup // in-flight saves

	mu       sync.Mutex
	pending  map[string]Snapshot // newest unsaved snapshot per session
	inflight map[string]bool
}

func NewSaver(gateway store.Gateway, logger *log.Logger) *Saver {
	return &Saver{
		gateway:         gateway,
		logger:          logger,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsed:      time.Minute,
		RetryDelay:      10 * time.Second,
		wake:            make(chan struct{}, 1),
		pending:         make(map[string]Snapshot),
		inflight:        make(map[string]bool),
	}
}

func (s *Saver) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Enqueue records the snapshot for saving. It never blocks on storage.
func (s *Saver) Enqueue(snap Snapshot) {
	s.mu.Lock()
	if cur, ok := s.pending[snap.ID]; !ok || cur.Revision <= snap.Revision {
		s.pending[snap.ID] = snap
	}
	s.mu.Unlock()
	s.poke()
}

// Pending reports how many sessions are waiting to be written.
func (s *Saver) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Run dispatches queued snapshots until ctx is done, then waits for the
// in-flight saves and makes a final flush attempt with a short deadline.
func (s *Saver) Run(ctx context.Context) {
	s.logger.Info("saver started")
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.Flush(flushCtx)
			cancel()
			s.logger.Info("saver stopped")
			return
		case <-s.wake:
			s.dispatch(ctx, true)
		}
	}
}

// Flush writes everything currently queued and waits for the result. Failed
// snapshots stay queued. It must not be called concurrently with Run.
func (s *Saver) Flush(ctx context.Context) {
	s.wg.Wait()
	s.dispatch(ctx, false)
	s.wg.Wait()
}

// dispatch starts one save goroutine per queued session that has none
// running. A session already in flight keeps its newer snapshot queued; it
// is picked up when the running save finishes.
func (s *Saver) dispatch(ctx context.Context, retry bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, snap := range s.pending {
		if s.inflight[id] {
			continue
		}
		delete(s.pending, id)
		s.inflight[id] = true
		s.wg.Go(func() { s.finish(snap, s.save(ctx, snap), retry) })
	}
}

func (s *Saver) finish(snap Snapshot, err error, retry bool) {
	s.mu.Lock()
	delete(s.inflight, snap.ID)
	_, newer := s.pending[snap.ID]
	if err != nil && !newer {
		s.pending[snap.ID] = snap
	}
	s.mu.Unlock()

	switch {
	case err != nil && retry:
		s.logger.Error("save failed, retrying later", "session", snap.ID, "revision", snap.Revision, "in", s.RetryDelay, "err", err)
		time.AfterFunc(s.RetryDelay, s.poke)
	case err != nil:
		s.logger.Error("save failed", "session", snap.ID, "revision", snap.Revision, "err", err)
	case newer:
		s.poke()
	}
}

func (s *Saver) save(ctx context.Context, snap Snapshot) error {
	rec := store.RecordFromState(snap.State)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.InitialInterval
	b.MaxInterval = s.MaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, s.gateway.Save(ctx, snap.ID, rec)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(s.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("save failed, retrying", "session", snap.ID, "in", next, "err", err)
		}),
	)
	return err
}
