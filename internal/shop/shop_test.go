package shop

import (
	"context"
	"io"
	"math"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everforgeworks/quarantine-life/internal/catalog"
	"github.com/everforgeworks/quarantine-life/internal/game"
	"github.com/everforgeworks/quarantine-life/internal/sim"
	"github.com/everforgeworks/quarantine-life/internal/store"
)

const testCatalog = `
items:
  - {id: pizza, name: Pizza, category: food, price: 8, stats_effects: {hunger: 40, health: -5}}
  - {id: course, name: Course, category: course, price: 499, purchase_type: real_money}
  - {id: poison, name: Bad Mushroom, category: food, price: 1, stats_effects: {health: -100}}
  - {id: mansion, name: Mansion, category: furniture, price: 4611686018427387904}
`

func newShop(t *testing.T) (*Shop, *game.Manager, *store.Memory) {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalog))
	require.NoError(t, err)
	mem := store.NewMemory()
	logger := log.New(io.Discard)
	m := game.NewManager(mem, logger, game.WithHistory(mem))
	return &Shop{
		Catalog:   catalog.StaticSource(cat),
		Manager:   m,
		Inventory: mem,
		Logger:    logger,
		Now:       func() time.Time { return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC) },
	}, m, mem
}

func TestPurchaseAndUse(t *testing.T) {
	ctx := context.Background()
	s, m, mem := newShop(t)
	sess, err := m.Open(ctx, "p1")
	require.NoError(t, err)

	rec, err := s.Purchase(ctx, sess, "pizza", 2)
	require.NoError(t, err)
	assert.Equal(t, 16, rec.TotalCost)
	assert.Equal(t, 34, rec.Session.Stats.Money)

	entries, err := s.List(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Quantity)
	require.NotNil(t, entries[0].Item)
	assert.Equal(t, "Pizza", entries[0].Item.Name)

	res, err := s.Use(ctx, sess, "pizza")
	require.NoError(t, err)
	assert.Equal(t, 100, res.Snapshot.Stats.Hunger)
	assert.Equal(t, 85, res.Snapshot.Stats.Health)

	items, _ := mem.ListItems(ctx, "p1")
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)

	hist, err := mem.ListStatChanges(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Equal(t, "Used Pizza", hist[0].Reason)
	assert.Equal(t, "Purchased 2x Pizza", hist[len(hist)-1].Reason)
}

func TestPurchaseErrors(t *testing.T) {
	ctx := context.Background()
	s, m, _ := newShop(t)
	sess, err := m.Open(ctx, "p1")
	require.NoError(t, err)

	_, err = s.Purchase(ctx, sess, "pizza", 7)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, 50, sess.Snapshot().Stats.Money)

	_, err = s.Purchase(ctx, sess, "course", 1)
	assert.ErrorIs(t, err, ErrRealMoneyUnsupported)

	_, err = s.Purchase(ctx, sess, "spaceship", 1)
	assert.ErrorIs(t, err, ErrItemNotFound)

	_, err = s.Purchase(ctx, sess, "pizza", 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = s.Use(ctx, sess, "pizza")
	assert.ErrorIs(t, err, ErrNotInInventory)
}

func TestUseCanEndTheGame(t *testing.T) {
	ctx := context.Background()
	s, m, _ := newShop(t)
	sess, err := m.Open(ctx, "p1")
	require.NoError(t, err)

	_, err = s.Purchase(ctx, sess, "poison", 2)
	require.NoError(t, err)
	res, err := s.Use(ctx, sess, "poison")
	require.NoError(t, err)
	assert.Equal(t, sim.GameOver{Over: true, Reason: sim.ReasonHealth}, res.Snapshot.GameOver)

	_, err = s.Use(ctx, sess, "poison")
	assert.ErrorIs(t, err, ErrGameOver)
	_, err = s.Purchase(ctx, sess, "pizza", 1)
	assert.ErrorIs(t, err, ErrGameOver)
}

func TestPurchaseRejectsHugeQuantities(t *testing.T) {
	ctx := context.Background()
	s, m, mem := newShop(t)
	sess, err := m.Open(ctx, "p1")
	require.NoError(t, err)

	for _, tc := range []struct {
		item string
		qty  int
	}{
		{"pizza", (1 << 61) - 1},
		{"pizza", MaxPurchaseQuantity + 1},
		{"pizza", math.MaxInt},
		{"mansion", 2}, // price * qty wraps
	} {
		_, err := s.Purchase(ctx, sess, tc.item, tc.qty)
		assert.ErrorIs(t, err, ErrInvalidQuantity, "%s x %d", tc.item, tc.qty)
	}

	assert.Equal(t, 50, sess.Snapshot().Stats.Money)
	items, err := mem.ListItems(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, items)
	purchases, err := mem.ListPurchases(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Empty(t, purchases)

	// One mansion is fine to attempt; it is simply unaffordable.
	_, err = s.Purchase(ctx, sess, "mansion", 1)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestPurchaseAndUseAreLedgered(t *testing.T) {
	ctx := context.Background()
	s, m, _ := newShop(t)
	sess, err := m.Open(ctx, "p1")
	require.NoError(t, err)

	rec, err := s.Purchase(ctx, sess, "pizza", 3)
	require.NoError(t, err)
	// Buying does not apply the item's effects; only using it does.
	assert.Equal(t, 70, rec.Session.Stats.Hunger)
	_, err = s.Purchase(ctx, sess, "pizza", 7) // unaffordable, not ledgered
	require.ErrorIs(t, err, ErrInsufficientFunds)
	_, err = s.Use(ctx, sess, "pizza")
	require.NoError(t, err)

	purchases, err := s.Purchases(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, store.Purchase{
		SessionID:    "p1",
		ItemID:       "pizza",
		Quantity:     3,
		TotalCost:    24,
		PurchaseType: string(catalog.InGame),
		At:           time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}, purchases[0])

	uses, err := s.Uses(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, uses, 1)
	assert.Equal(t, "pizza", uses[0].ItemID)
}
