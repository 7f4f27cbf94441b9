/*
Package shop
File: shop.go
Description:
    Buying and using catalog items. Buying spends in-game money and puts
    the item in the session's inventory; using an item consumes one and
    applies its stat effects through the session, exactly like an event.
    Stat effects apply on use only, never at purchase time.
    Every purchase and every use is appended to the inventory's ledgers.
*/

package shop

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/everforgeworks/quarantine-life/internal/catalog"
	"github.com/everforgeworks/quarantine-life/internal/game"
	"github.com/everforgeworks/quarantine-life/internal/sim"
	"github.com/everforgeworks/quarantine-life/internal/store"
)

var (
	ErrItemNotFound         = errors.New("item not found")
	ErrInsufficientFunds    = errors.New("not enough money")
	ErrNotInInventory       = errors.New("item not in inventory")
	ErrRealMoneyUnsupported = errors.New("real-money purchases are not supported")
	ErrGameOver             = errors.New("game is over")
	ErrInvalidQuantity      = errors.New("invalid quantity")
)

// MaxPurchaseQuantity caps a single purchase.
const MaxPurchaseQuantity = 99

// Shop sells catalog items to sessions.
type Shop struct {
	Catalog   *catalog.Source
	Manager   *game.Manager
	Inventory store.Inventory
	Logger    *log.Logger
	Now       func() time.Time
}

func (s *Shop) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Receipt describes a completed purchase.
type Receipt struct {
	ItemID    string        `json:"item_id"`
	Quantity  int           `json:"quantity"`
	TotalCost int           `json:"total_cost"`
	Session   game.Snapshot `json:"session"`
}

// Purchase buys qty of an item with in-game money.
func (s *Shop) Purchase(ctx context.Context, sess *game.Session, itemID string, qty int) (Receipt, error) {
	if qty < 1 || qty > MaxPurchaseQuantity {
		return Receipt{}, fmt.Errorf("%w: %d (1..%d)", ErrInvalidQuantity, qty, MaxPurchaseQuantity)
	}
	item, ok := s.Catalog.Current().Item(itemID)
	if !ok {
		return Receipt{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if item.PurchaseType == catalog.RealMoney {
		return Receipt{}, fmt.Errorf("%s: %w", item.ID, ErrRealMoneyUnsupported)
	}
	if item.Price > 0 && qty > math.MaxInt/item.Price {
		return Receipt{}, fmt.Errorf("%w: %d x %s overflows the price", ErrInvalidQuantity, qty, item.ID)
	}

	total := item.Price * qty
	reason := fmt.Sprintf("Purchased %dx %s", qty, item.Name)

	// 1. Charge atomically against the current balance
	res, err := s.Manager.ApplyChecked(ctx, sess, sim.Effect{sim.Money: -total}, reason, func(st sim.State) error {
		if st.GameOver.Over {
			return ErrGameOver
		}
		if st.Stats.Money < total {
			return fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, total, st.Stats.Money)
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}

	// 2. Deliver, refunding if the inventory cannot take it
	if err := s.Inventory.AddItem(ctx, sess.ID(), item.ID, qty, s.now()); err != nil {
		s.Manager.Apply(ctx, sess, sim.Effect{sim.Money: total}, "Refund: "+reason)
		return Receipt{}, fmt.Errorf("add to inventory: %w", err)
	}

	// 3. Ledger; the purchase already happened, so a failure is only logged
	if err := s.Inventory.RecordPurchase(ctx, store.Purchase{
		SessionID:    sess.ID(),
		ItemID:       item.ID,
		Quantity:     qty,
		TotalCost:    total,
		PurchaseType: string(item.PurchaseType),
		At:           s.now(),
	}); err != nil {
		s.Logger.Warn("purchase history not recorded", "session", sess.ID(), "item", item.ID, "err", err)
	}

	s.Logger.Info("purchase", "session", sess.ID(), "item", item.ID, "qty", qty, "cost", total)
	return Receipt{ItemID: item.ID, Quantity: qty, TotalCost: total, Session: res.Snapshot}, nil
}

// Use consumes one item and applies its effects.
func (s *Shop) Use(ctx context.Context, sess *game.Session, itemID string) (game.TickResult, error) {
	item, ok := s.Catalog.Current().Item(itemID)
	if !ok {
		return game.TickResult{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if sess.Snapshot().GameOver.Over {
		return game.TickResult{}, ErrGameOver
	}

	if err := s.Inventory.RemoveItem(ctx, sess.ID(), item.ID, 1); err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInsufficientQuantity) {
			return game.TickResult{}, fmt.Errorf("%w: %s", ErrNotInInventory, item.ID)
		}
		return game.TickResult{}, fmt.Errorf("remove from inventory: %w", err)
	}

	res := s.Manager.Apply(ctx, sess, item.Effect(), "Used "+item.Name)
	if res.Report.Skipped {
		// The game ended between the check and the apply; give the item back.
		if err := s.Inventory.AddItem(ctx, sess.ID(), item.ID, 1, s.now()); err != nil {
			s.Logger.Error("could not return unused item", "session", sess.ID(), "item", item.ID, "err", err)
		}
		return res, ErrGameOver
	}
	if err := s.Inventory.RecordItemUse(ctx, store.ItemUse{SessionID: sess.ID(), ItemID: item.ID, At: s.now()}); err != nil {
		s.Logger.Warn("item usage not recorded", "session", sess.ID(), "item", item.ID, "err", err)
	}
	return res, nil
}

// Purchases returns the session's purchase history, newest first.
func (s *Shop) Purchases(ctx context.Context, sessionID string, limit int) ([]store.Purchase, error) {
	return s.Inventory.ListPurchases(ctx, sessionID, limit)
}

// Uses returns the session's item usage history, newest first.
func (s *Shop) Uses(ctx context.Context, sessionID string, limit int) ([]store.ItemUse, error) {
	return s.Inventory.ListItemUses(ctx, sessionID, limit)
}

// Entry is an inventory row joined with its catalog item.
type Entry struct {
	store.InventoryItem
	Item *catalog.Item `json:"item_details,omitempty"`
}

// List returns the session inventory with item details. Items no longer in
// the catalog are still listed, without details.
func (s *Shop) List(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := s.Inventory.ListItems(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cat := s.Catalog.Current()
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e := Entry{InventoryItem: r}
		if it, ok := cat.Item(r.ItemID); ok {
			e.Item = &it
		}
		out = append(out, e)
	}
	return out, nil
}
