/*
Package game
File: heartbeat.go
Description:
    The real-time clock that drives the simulation. Every Interval it ticks
    each running session once. Paused and finished sessions are skipped.
*/

package game

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultTickInterval is one game hour per real-time interval.
const DefaultTickInterval = 5 * time.Second

// Heartbeat ticks all sessions of a Manager on a fixed period.
type Heartbeat struct {
	Manager  *Manager
	Interval time.Duration
	Logger   *log.Logger

	// AfterTick runs once per beat after the sessions have stepped,
	// e.g. to roll random events.
	AfterTick func(ctx context.Context)
}

// Run blocks until ctx is cancelled: `go hb.Run(ctx)`.
func (h *Heartbeat) Run(ctx context.Context) {
	interval := h.Interval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.Logger.Info("heartbeat started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			h.Logger.Info("heartbeat stopped")
			return
		case <-ticker.C:
			h.Beat(ctx)
		}
	}
}

// Beat performs one heartbeat synchronously.
func (h *Heartbeat) Beat(ctx context.Context) {
	moved := h.Manager.TickAll(ctx)
	if h.AfterTick != nil {
		h.AfterTick(ctx)
	}
	if moved > 0 {
		h.Logger.Debug("heartbeat", "sessions", moved)
	}
}
