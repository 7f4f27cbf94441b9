/*
Package store
File: memory.go
Description:
    In-process implementation of every store interface.
*/

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory keeps everything in process. Safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	sessions  map[string]Record
	history   map[string][]StatChange
	inventory map[string]map[string]InventoryItem
	purchases map[string][]Purchase
	uses      map[string][]ItemUse

	// FailSaves makes Save return an error; used to exercise retry paths.
	FailSaves func(attempt int) error
	saves     int
}

func NewMemory() *Memory {
	return &Memory{
		sessions:  make(map[string]Record),
		history:   make(map[string][]StatChange),
		inventory: make(map[string]map[string]InventoryItem),
		purchases: make(map[string][]Purchase),
		uses:      make(map[string][]ItemUse),
	}
}

func (m *Memory) Load(ctx context.Context, sessionID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[sessionID]
	if !ok {
		return Record{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return rec.Clone(), nil
}

func (m *Memory) Save(ctx context.Context, sessionID string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.FailSaves != nil {
		if err := m.FailSaves(m.saves); err != nil {
			return err
		}
	}
	m.sessions[sessionID] = rec.Clone()
	return nil
}

// Saves reports how many Save calls were made, failed ones included.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

func (m *Memory) RecordStatChange(ctx context.Context, c StatChange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[c.SessionID] = append(m.history[c.SessionID], c)
	return nil
}

// ListStatChanges returns the newest changes first.
func (m *Memory) ListStatChanges(ctx context.Context, sessionID string, limit int) ([]StatChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.history[sessionID], limit), nil
}

func (m *Memory) AddItem(ctx context.Context, sessionID, itemID string, qty int, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.inventory[sessionID]
	if items == nil {
		items = make(map[string]InventoryItem)
		m.inventory[sessionID] = items
	}
	it := items[itemID]
	it.ItemID = itemID
	it.Quantity += qty
	it.PurchasedAt = at.UTC()
	items[itemID] = it
	return nil
}

func (m *Memory) RemoveItem(ctx context.Context, sessionID, itemID string, qty int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.inventory[sessionID][itemID]
	if !ok {
		return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	if it.Quantity < qty {
		return fmt.Errorf("item %s: %w", itemID, ErrInsufficientQuantity)
	}
	it.Quantity -= qty
	if it.Quantity == 0 {
		delete(m.inventory[sessionID], itemID)
		return nil
	}
	m.inventory[sessionID][itemID] = it
	return nil
}

func (m *Memory) ListItems(ctx context.Context, sessionID string) ([]InventoryItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]InventoryItem, 0, len(m.inventory[sessionID]))
	for _, it := range m.inventory[sessionID] {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// newestFirst copies rows in reverse order, at most limit of them.
func newestFirst[T any](rows []T, limit int) []T {
	out := make([]T, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, rows[i])
	}
	return out
}

func (m *Memory) RecordPurchase(ctx context.Context, p Purchase) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases[p.SessionID] = append(m.purchases[p.SessionID], p)
	return nil
}

func (m *Memory) ListPurchases(ctx context.Context, sessionID string, limit int) ([]Purchase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.purchases[sessionID], limit), nil
}

func (m *Memory) RecordItemUse(ctx context.Context, u ItemUse) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uses[u.SessionID] = append(m.uses[u.SessionID], u)
	return nil
}

func (m *Memory) ListItemUses(ctx context.Context, sessionID string, limit int) ([]ItemUse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.uses[sessionID], limit), nil
}
