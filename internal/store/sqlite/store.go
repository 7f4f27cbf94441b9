/*
Package sqlite
File: store.go
Description:
    SQLite-backed persistence gateway, stat history, inventory and the
    purchase and item usage ledgers.
*/

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/everforgeworks/quarantine-life/internal/sim"
	"github.com/everforgeworks/quarantine-life/internal/store"
	"github.com/everforgeworks/quarantine-life/internal/store/sqlite/migrations"
)

var tracer = otel.Tracer("github.com/everforgeworks/quarantine-life/internal/store/sqlite")

// Store persists sessions in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var (
	_ store.Gateway   = (*Store)(nil)
	_ store.History   = (*Store)(nil)
	_ store.Inventory = (*Store)(nil)
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// Load returns the stored session. A schedule column that does not decode
// comes back as a nil schedule so the caller can substitute the default.
func (s *Store) Load(ctx context.Context, sessionID string) (store.Record, error) {
	ctx, span := tracer.Start(ctx, "sqlite.Load", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return store.Record{}, err
	}

	var (
		rec      store.Record
		schedule string
		over     int
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT hunger, stress, tone, health, money, day, hour, schedule, game_over, game_over_reason
		   FROM sessions WHERE id = ?`,
		sessionID,
	).Scan(
		&rec.Stats.Hunger, &rec.Stats.Stress, &rec.Stats.Tone, &rec.Stats.Health, &rec.Stats.Money,
		&rec.Time.Day, &rec.Time.Hour, &schedule, &over, &rec.GameOver.Reason,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
	}
	if err != nil {
		span.RecordError(err)
		return store.Record{}, fmt.Errorf("load session: %w", err)
	}
	rec.GameOver.Over = over != 0
	rec.Schedule = decodeSchedule(schedule)
	return rec, nil
}

func decodeSchedule(raw string) []string {
	var slots []*string
	if err := json.Unmarshal([]byte(raw), &slots); err != nil {
		return nil
	}
	out := make([]string, len(slots))
	for i, slot := range slots {
		if slot != nil {
			out[i] = *slot
		}
	}
	return out
}

// Save upserts the session row.
func (s *Store) Save(ctx context.Context, sessionID string, rec store.Record) error {
	ctx, span := tracer.Start(ctx, "sqlite.Save", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	schedule, err := json.Marshal(rec.Schedule)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	over := 0
	if rec.GameOver.Over {
		over = 1
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO sessions (
		   id, hunger, stress, tone, health, money, day, hour, schedule, game_over, game_over_reason, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   hunger = excluded.hunger,
		   stress = excluded.stress,
		   tone = excluded.tone,
		   health = excluded.health,
		   money = excluded.money,
		   day = excluded.day,
		   hour = excluded.hour,
		   schedule = excluded.schedule,
		   game_over = excluded.game_over,
		   game_over_reason = excluded.game_over_reason,
		   updated_at = excluded.updated_at`,
		sessionID,
		rec.Stats.Hunger, rec.Stats.Stress, rec.Stats.Tone, rec.Stats.Health, rec.Stats.Money,
		rec.Time.Day, rec.Time.Hour,
		string(schedule),
		over, rec.GameOver.Reason,
		toMillis(s.now()),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// RecordStatChange appends one history row.
func (s *Store) RecordStatChange(ctx context.Context, c store.StatChange) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := sim.ParseStatName(c.Stat); err != nil {
		return err
	}
	at := c.At
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO stat_history (session_id, stat_type, previous_value, new_value, change, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.SessionID, c.Stat, c.Previous, c.New, c.Change, c.Reason, toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("record stat change: %w", err)
	}
	return nil
}

// ListStatChanges returns the newest changes first. limit <= 0 means all.
func (s *Store) ListStatChanges(ctx context.Context, sessionID string, limit int) ([]store.StatChange, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT session_id, stat_type, previous_value, new_value, change, reason, created_at
		   FROM stat_history WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stat changes: %w", err)
	}
	defer rows.Close()

	out := []store.StatChange{}
	for rows.Next() {
		var (
			c  store.StatChange
			at int64
		)
		if err := rows.Scan(&c.SessionID, &c.Stat, &c.Previous, &c.New, &c.Change, &c.Reason, &at); err != nil {
			return nil, fmt.Errorf("scan stat change: %w", err)
		}
		c.At = fromMillis(at)
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddItem adds qty of an item, stacking onto any existing quantity.
func (s *Store) AddItem(ctx context.Context, sessionID, itemID string, qty int, at time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO inventory (session_id, item_id, quantity, purchased_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id, item_id) DO UPDATE SET
		   quantity = inventory.quantity + excluded.quantity,
		   purchased_at = excluded.purchased_at`,
		sessionID, itemID, qty, toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("add inventory item: %w", err)
	}
	return nil
}

// RemoveItem takes qty of an item out, deleting the row when it reaches zero.
func (s *Store) RemoveItem(ctx context.Context, sessionID, itemID string, qty int) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove item: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var held int
	err = tx.QueryRowContext(ctx,
		`SELECT quantity FROM inventory WHERE session_id = ? AND item_id = ?`,
		sessionID, itemID,
	).Scan(&held)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("item %s: %w", itemID, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read inventory item: %w", err)
	}
	if held < qty {
		return fmt.Errorf("item %s: %w", itemID, store.ErrInsufficientQuantity)
	}

	if held == qty {
		_, err = tx.ExecContext(ctx, `DELETE FROM inventory WHERE session_id = ? AND item_id = ?`, sessionID, itemID)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE inventory SET quantity = quantity - ? WHERE session_id = ? AND item_id = ?`, qty, sessionID, itemID)
	}
	if err != nil {
		return fmt.Errorf("update inventory item: %w", err)
	}
	return tx.Commit()
}

// ListItems returns the session inventory sorted by item id.
func (s *Store) ListItems(ctx context.Context, sessionID string) ([]store.InventoryItem, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT item_id, quantity, purchased_at FROM inventory WHERE session_id = ? ORDER BY item_id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list inventory: %w", err)
	}
	defer rows.Close()

	out := []store.InventoryItem{}
	for rows.Next() {
		var (
			it store.InventoryItem
			at int64
		)
		if err := rows.Scan(&it.ItemID, &it.Quantity, &at); err != nil {
			return nil, fmt.Errorf("scan inventory: %w", err)
		}
		it.PurchasedAt = fromMillis(at)
		out = append(out, it)
	}
	return out, rows.Err()
}

// RecordPurchase appends one purchase_history row.
func (s *Store) RecordPurchase(ctx context.Context, p store.Purchase) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	at := p.At
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO purchase_history (session_id, item_id, quantity, total_cost, purchase_type, purchased_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.SessionID, p.ItemID, p.Quantity, p.TotalCost, p.PurchaseType, toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("record purchase: %w", err)
	}
	return nil
}

// ListPurchases returns the newest purchases first. limit <= 0 means all.
func (s *Store) ListPurchases(ctx context.Context, sessionID string, limit int) ([]store.Purchase, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT session_id, item_id, quantity, total_cost, purchase_type, purchased_at
		   FROM purchase_history WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	out := []store.Purchase{}
	for rows.Next() {
		var (
			p  store.Purchase
			at int64
		)
		if err := rows.Scan(&p.SessionID, &p.ItemID, &p.Quantity, &p.TotalCost, &p.PurchaseType, &at); err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		p.At = fromMillis(at)
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordItemUse appends one item_usage_history row.
func (s *Store) RecordItemUse(ctx context.Context, u store.ItemUse) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	at := u.At
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO item_usage_history (session_id, item_id, used_at) VALUES (?, ?, ?)`,
		u.SessionID, u.ItemID, toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("record item use: %w", err)
	}
	return nil
}

// ListItemUses returns the newest uses first. limit <= 0 means all.
func (s *Store) ListItemUses(ctx context.Context, sessionID string, limit int) ([]store.ItemUse, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT session_id, item_id, used_at FROM item_usage_history WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list item uses: %w", err)
	}
	defer rows.Close()

	out := []store.ItemUse{}
	for rows.Next() {
		var (
			u  store.ItemUse
			at int64
		)
		if err := rows.Scan(&u.SessionID, &u.ItemID, &at); err != nil {
			return nil, fmt.Errorf("scan item use: %w", err)
		}
		u.At = fromMillis(at)
		out = append(out, u)
	}
	return out, rows.Err()
}
