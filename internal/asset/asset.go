package asset

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// DefaultHistoryCap is how many price points an asset keeps when no limit is
// configured.
const DefaultHistoryCap = 100

// PricePoint pairs a single observed price with the time it was observed.
type PricePoint struct {
	Price     float64
	Timestamp time.Time
}

type pricePointJSON struct {
	Price     float64 `json:"price"`
	Timestamp float64 `json:"timestamp"`
}

// MarshalJSON encodes the timestamp as epoch seconds, the on-disk format the
// asset files have always used.
func (p PricePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(pricePointJSON{
		Price:     p.Price,
		Timestamp: float64(p.Timestamp.UnixNano()) / float64(time.Second),
	})
}

func (p *PricePoint) UnmarshalJSON(b []byte) error {
	var raw pricePointJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p.Price = raw.Price
	p.Timestamp = time.Unix(0, int64(raw.Timestamp*float64(time.Second)))
	return nil
}

// Asset is a single holding: a named symbol, the quantity owned, and a
// bounded history of observed prices.
type Asset struct {
	Name       string       `json:"name"`
	Symbol     string       `json:"symbol"`
	Quantity   float64      `json:"quantity"`
	History    []PricePoint `json:"phistory"`
	HistoryCap int          `json:"-"`
}

// New creates an asset with an empty price history.
func New(name, symbol string, quantity float64) *Asset {
	return &Asset{Name: name, Symbol: symbol, Quantity: quantity}
}

func (a *Asset) historyCap() int {
	if a.HistoryCap > 0 {
		return a.HistoryCap
	}
	return DefaultHistoryCap
}

// AppendPrice adds a price point to the history. Points must arrive in
// timestamp order; out-of-order points are rejected. When the history is at
// capacity the oldest point is evicted.
func (a *Asset) AppendPrice(p PricePoint) bool {
	if n := len(a.History); n > 0 {
		latest := a.History[n-1]
		if !p.Timestamp.After(latest.Timestamp) {
			return false
		}
	}
	if len(a.History) >= a.historyCap() {
		a.History = a.History[1:]
	}
	a.History = append(a.History, p)
	return true
}

// EarliestPrice returns the oldest recorded price point, or nil.
func (a *Asset) EarliestPrice() *PricePoint {
	if len(a.History) == 0 {
		return nil
	}
	return &a.History[0]
}

// LatestPrice returns the newest recorded price point, or nil.
func (a *Asset) LatestPrice() *PricePoint {
	if len(a.History) == 0 {
		return nil
	}
	return &a.History[len(a.History)-1]
}

// Value returns the asset's market value at its latest known price. Assets
// with no price history are worth zero.
func (a *Asset) Value() float64 {
	p := a.LatestPrice()
	if p == nil {
		return 0
	}
	return p.Price * a.Quantity
}

// Save writes the asset to a JSON file.
func (a *Asset) Save(path string) error {
	return writeJSON(path, a)
}

// Load reads an asset from a file written by Save.
func Load(path string) (*Asset, error) {
	var a Asset
	if err := readJSON(path, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Group is a named collection of assets.
type Group struct {
	Name   string   `json:"name"`
	Assets []*Asset `json:"assets"`
}

// NewGroup creates an empty asset group.
func NewGroup(name string) *Group {
	return &Group{Name: name}
}

func (g *Group) Len() int { return len(g.Assets) }

// Append adds an asset to the group.
func (g *Group) Append(a *Asset) {
	g.Assets = append(g.Assets, a)
}

// Search returns the asset with the given symbol, or nil.
func (g *Group) Search(symbol string) *Asset {
	for _, a := range g.Assets {
		if a.Symbol == symbol {
			return a
		}
	}
	return nil
}

// Remove drops the asset with the given symbol. It reports whether an asset
// was removed.
func (g *Group) Remove(symbol string) bool {
	for i, a := range g.Assets {
		if a.Symbol == symbol {
			g.Assets = append(g.Assets[:i], g.Assets[i+1:]...)
			return true
		}
	}
	return false
}

// Update merges a freshly-observed asset into the group: the quantity is
// replaced and the newest price point appended. Unknown symbols are added.
func (g *Group) Update(a *Asset) {
	existing := g.Search(a.Symbol)
	if existing == nil {
		g.Append(a)
		return
	}
	existing.Quantity = a.Quantity
	if p := a.LatestPrice(); p != nil {
		existing.AppendPrice(*p)
	}
}

// Value returns the combined market value of all assets in the group.
func (g *Group) Value() float64 {
	total := 0.0
	for _, a := range g.Assets {
		total += a.Value()
	}
	return total
}

// Percents returns each symbol's share of the group's total value, as values
// between 0 and 1. An empty or worthless group yields an empty map.
func (g *Group) Percents() map[string]float64 {
	out := map[string]float64{}
	total := g.Value()
	if total == 0 {
		return out
	}
	for _, a := range g.Assets {
		out[a.Symbol] = a.Value() / total
	}
	return out
}

// Save writes the group to a JSON file.
func (g *Group) Save(path string) error {
	return writeJSON(path, g)
}

// LoadGroup reads a group from a file written by Save.
func LoadGroup(path string) (*Group, error) {
	var g Group
	if err := readJSON(path, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return os.WriteFile(path, b, 0o644)
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
