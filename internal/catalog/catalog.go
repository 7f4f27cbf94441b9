/*
Package catalog
File: catalog.go
Description:
    Game content loaded from 'catalog.yaml': the shop's items and the pool
    of random events. Both carry stat deltas in the same shape as activity
    effects; the simulation only applies them, it never picks them.
*/

package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/everforgeworks/quarantine-life/internal/sim"
)

// Category groups shop items.
type Category string

const (
	CategoryCourse        Category = "course"
	CategoryPlant         Category = "plant"
	CategoryFood          Category = "food"
	CategoryEntertainment Category = "entertainment"
	CategoryFurniture     Category = "furniture"
	CategoryClothing      Category = "clothing"
)

var categories = map[Category]bool{
	CategoryCourse: true, CategoryPlant: true, CategoryFood: true,
	CategoryEntertainment: true, CategoryFurniture: true, CategoryClothing: true,
}

// PurchaseType says what currency an item costs.
type PurchaseType string

const (
	InGame    PurchaseType = "in_game"
	RealMoney PurchaseType = "real_money"
)

// Item is something sold in the shop.
type Item struct {
	ID           string         `yaml:"id" json:"id"`
	Name         string         `yaml:"name" json:"name"`
	Description  string         `yaml:"description" json:"description"`
	Category     Category       `yaml:"category" json:"category"`
	Price        int            `yaml:"price" json:"price"` // In-game money, or cents for real-money items
	PurchaseType PurchaseType   `yaml:"purchase_type" json:"purchase_type"`
	ImageURL     string         `yaml:"image_url,omitempty" json:"image_url,omitempty"`
	StatsEffects map[string]int `yaml:"stats_effects" json:"stats_effects"` // Applied when the item is used
}

// Effect returns the item's deltas. Validated at load time.
func (i Item) Effect() sim.Effect {
	e, _ := sim.ParseEffect(i.StatsEffects)
	return e
}

// Event is a random happening applied to a session.
type Event struct {
	ID           string         `yaml:"id" json:"id"`
	Description  string         `yaml:"description" json:"description"`
	Weight       int            `yaml:"weight" json:"weight"` // Relative likelihood, defaults to 1
	StatsEffects map[string]int `yaml:"stats_effects" json:"stats_effects"`
}

func (e Event) Effect() sim.Effect {
	eff, _ := sim.ParseEffect(e.StatsEffects)
	return eff
}

// Catalog is the root of 'catalog.yaml'.
type Catalog struct {
	Items  []Item  `yaml:"items"`
	Events []Event `yaml:"events"`
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func (c *Catalog) validate() error {
	seen := make(map[string]bool)
	for i := range c.Items {
		it := &c.Items[i]
		it.ID = strings.TrimSpace(it.ID)
		if it.ID == "" {
			return fmt.Errorf("item %d: id is required", i)
		}
		if seen[it.ID] {
			return fmt.Errorf("item %s: duplicate id", it.ID)
		}
		seen[it.ID] = true
		if !categories[it.Category] {
			return fmt.Errorf("item %s: unknown category %q", it.ID, it.Category)
		}
		if it.PurchaseType == "" {
			it.PurchaseType = InGame
		}
		if it.PurchaseType != InGame && it.PurchaseType != RealMoney {
			return fmt.Errorf("item %s: unknown purchase type %q", it.ID, it.PurchaseType)
		}
		if it.Price < 0 {
			return fmt.Errorf("item %s: negative price", it.ID)
		}
		if _, err := sim.ParseEffect(it.StatsEffects); err != nil {
			return fmt.Errorf("item %s: %w", it.ID, err)
		}
	}

	seen = make(map[string]bool)
	for i := range c.Events {
		ev := &c.Events[i]
		if ev.ID == "" {
			return fmt.Errorf("event %d: id is required", i)
		}
		if seen[ev.ID] {
			return fmt.Errorf("event %s: duplicate id", ev.ID)
		}
		seen[ev.ID] = true
		if ev.Weight < 0 {
			return fmt.Errorf("event %s: negative weight", ev.ID)
		}
		if ev.Weight == 0 {
			ev.Weight = 1
		}
		if _, err := sim.ParseEffect(ev.StatsEffects); err != nil {
			return fmt.Errorf("event %s: %w", ev.ID, err)
		}
	}
	return nil
}

// Item looks up one item by id.
func (c *Catalog) Item(id string) (Item, bool) {
	for _, it := range c.Items {
		if it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// ItemsIn lists items, optionally filtered by category, sorted by id.
func (c *Catalog) ItemsIn(category Category) []Item {
	out := []Item{}
	for _, it := range c.Items {
		if category == "" || it.Category == category {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Source holds the active catalog and swaps it on reload.
type Source struct {
	path string

	mu      sync.RWMutex
	current *Catalog
}

// NewSource loads path once; Reload re-reads it.
func NewSource(path string) (*Source, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Source{path: path, current: c}, nil
}

// StaticSource wraps an already-parsed catalog.
func StaticSource(c *Catalog) *Source {
	return &Source{current: c}
}

// Current returns the catalog in effect.
func (s *Source) Current() *Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Reload re-reads the file. On error the previous catalog stays active.
func (s *Source) Reload() error {
	if s.path == "" {
		return nil
	}
	c, err := Load(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = c
	s.mu.Unlock()
	return nil
}
