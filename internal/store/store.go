/*
Package store
File: store.go
Description:
    The persistence gateway contracts. The simulation never blocks on these;
    game.Saver calls Save from a background worker and the manager calls
    Load once when a session is first touched.

    Implementations:
    - Memory    (tests, local play)
    - YAMLFiles (one YAML document per session on disk)
    - sqlite.Store (SQLite database, also history and inventory)
*/

package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/everforgeworks/quarantine-life/internal/sim"
)

var (
	// ErrNotFound means the gateway has nothing stored for the key.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientQuantity means an inventory removal asked for more than is held.
	ErrInsufficientQuantity = errors.New("insufficient quantity")
)

// Record is the persisted shape of a session.
// Schedule is kept as raw slots so a damaged save can still be loaded.
type Record struct {
	Stats    sim.Stats    `json:"stats" yaml:"stats"`
	Time     sim.GameTime `json:"game_time" yaml:"game_time"`
	Schedule []string     `json:"schedule" yaml:"schedule"`
	GameOver sim.GameOver `json:"game_over" yaml:"game_over"`
}

// RecordFromState converts simulation state to its persisted form.
func RecordFromState(st sim.State) Record {
	return Record{
		Stats:    st.Stats,
		Time:     st.Time,
		Schedule: st.Schedule.Slots(),
		GameOver: st.GameOver,
	}
}

// State rebuilds simulation state from a record. Anything that cannot be
// trusted is replaced by defaults; each repair is returned as a warning.
func (r Record) State() (sim.State, []error) {
	var warnings []error
	st := sim.NewState()

	stats, changed := r.Stats.Normalized()
	if changed {
		warnings = append(warnings, errors.New("stored stats out of bounds, clamped"))
	}
	st.Stats = stats

	if r.Time.Valid() {
		st.Time = r.Time
	} else {
		warnings = append(warnings, errors.New("stored game time invalid, reset to day 1"))
	}

	sched, err := sim.ScheduleFromSlots(r.Schedule)
	if err != nil {
		warnings = append(warnings, err)
	}
	st.Schedule = sched
	st.GameOver = r.GameOver
	return st, warnings
}

// Clone deep-copies the record.
func (r Record) Clone() Record {
	r.Schedule = slices.Clone(r.Schedule)
	return r
}

// Gateway is durable storage for session state.
type Gateway interface {
	Load(ctx context.Context, sessionID string) (Record, error)
	Save(ctx context.Context, sessionID string, rec Record) error
}

// StatChange is one row of stat history.
type StatChange struct {
	SessionID string    `json:"session_id"`
	Stat      string    `json:"stat_type"`
	Previous  int       `json:"previous_value"`
	New       int       `json:"new_value"`
	Change    int       `json:"change"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"created_at"`
}

// History records direct stat changes (events, items, manual updates).
type History interface {
	RecordStatChange(ctx context.Context, c StatChange) error
	ListStatChanges(ctx context.Context, sessionID string, limit int) ([]StatChange, error)
}

// InventoryItem is a stack of one owned item.
type InventoryItem struct {
	ItemID      string    `json:"item_id"`
	Quantity    int       `json:"quantity"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// Purchase is one row of purchase history.
type Purchase struct {
	SessionID    string    `json:"session_id"`
	ItemID       string    `json:"item_id"`
	Quantity     int       `json:"quantity"`
	TotalCost    int       `json:"total_cost"`
	PurchaseType string    `json:"purchase_type"`
	At           time.Time `json:"purchased_at"`
}

// ItemUse is one row of item usage history.
type ItemUse struct {
	SessionID string    `json:"session_id"`
	ItemID    string    `json:"item_id"`
	At        time.Time `json:"used_at"`
}

// Inventory holds purchased items per session, plus the purchase and usage
// ledgers. List calls return the newest rows first; limit <= 0 means all.
type Inventory interface {
	AddItem(ctx context.Context, sessionID, itemID string, qty int, at time.Time) error
	RemoveItem(ctx context.Context, sessionID, itemID string, qty int) error
	ListItems(ctx context.Context, sessionID string) ([]InventoryItem, error)

	RecordPurchase(ctx context.Context, p Purchase) error
	ListPurchases(ctx context.Context, sessionID string, limit int) ([]Purchase, error)
	RecordItemUse(ctx context.Context, u ItemUse) error
	ListItemUses(ctx context.Context, sessionID string, limit int) ([]ItemUse, error)
}
