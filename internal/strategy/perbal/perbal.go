// Package perbal implements the "percent balance" strategy. Every asset is
// assigned a target percent of the portfolio's total value; each cycle the
// strategy sells down whatever drifted above its target and buys whatever
// drifted below, pulling the split back to the profile.
package perbal

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"snowbanker/internal/api"
	"snowbanker/internal/asset"
	"snowbanker/internal/strategy"
	"snowbanker/internal/tradelog"
)

const (
	assetsFileName        = "assets.json"
	lastOrderTimeFileName = "last_order_time.txt"

	// orders are placed at most once per day, however often the strategy ticks
	defaultOrderRate = 24 * time.Hour
)

func init() {
	strategy.Register("perbal", New)
}

// Strategy is the percent-balance strategy.
type Strategy struct {
	strategy.Base

	// profile maps symbol to its target share of total value, 0..1
	profile   map[string]float64
	orderRate time.Duration
	now       func() time.Time
}

// New builds an uninitialized percent-balance strategy.
func New(name string, deps strategy.Deps) strategy.Strategy {
	return &Strategy{
		Base:      strategy.NewBase(name, deps),
		orderRate: defaultOrderRate,
		now:       time.Now,
	}
}

// Init prepares the working directory, pulls a first snapshot of the
// account's assets, and loads (or derives) the percent profile.
func (s *Strategy) Init(ctx context.Context, workDir, configPath string) error {
	if err := s.Base.Init(ctx, workDir); err != nil {
		return err
	}

	assets, err := s.retrieveAssets(ctx)
	if err != nil {
		return err
	}
	return s.initProfile(assets, configPath)
}

// Tick runs one rebalance cycle.
func (s *Strategy) Tick(ctx context.Context) error {
	open, err := s.API().GetMarketStatus(ctx)
	if err != nil {
		return err
	}
	if !open {
		s.Log(ctx, "markets are closed, skipping this tick")
		return nil
	}

	lastOrder, haveLast := s.loadLastOrderTime()
	if haveLast {
		s.Log(ctx, "last order time: %s ago", s.now().Sub(lastOrder).Round(time.Second))
	} else {
		s.Log(ctx, "last order time: (unknown)")
	}

	assets, err := s.retrieveAssets(ctx)
	if err != nil {
		s.Log(ctx, "failed to retrieve assets: %v, skipping this tick", err)
		return err
	}
	if assets.Len() == 0 {
		s.Log(ctx, "no assets found, skipping this tick")
		return nil
	}

	tracked, trackedPercent := s.trackedAssets(assets)
	for _, a := range tracked.Assets {
		price := "(no history)"
		if p := a.LatestPrice(); p != nil {
			price = fmt.Sprintf("$%.2f", p.Price)
		}
		s.Log(ctx, "%-8s %s (x%g) = $%.2f", a.Symbol, price, a.Quantity, a.Value())
	}
	totalValue := tracked.Value()
	s.Log(ctx, "total value: $%.2f (profile covers %.2f%%)", totalValue, trackedPercent*100)

	if haveLast && s.now().Sub(lastOrder) < s.orderRate {
		s.Log(ctx, "the last order was made too recently, skipping this tick")
		return nil
	}
	if tracked.Len() < 2 {
		s.Log(ctx, "fewer than two profiled assets are owned, nothing to rebalance")
		return nil
	}

	orders := s.computeOrders(ctx, tracked, trackedPercent, totalValue)
	if len(orders) == 0 {
		s.Log(ctx, "portfolio already balanced, no orders")
		return nil
	}

	s.saveLastOrderTime(s.now())
	for _, order := range orders {
		result, err := s.API().PlaceOrder(ctx, order)
		if err != nil {
			s.Log(ctx, "order failed for %s: %v", order.Symbol, err)
			continue
		}
		s.Log(ctx, "order succeeded for %s [id: %s]", order.Symbol, result.ID)
		_ = s.Orders.Append(tradelog.Entry{
			Symbol:   order.Symbol,
			Side:     string(order.Action),
			Notional: order.Notional.String(),
			OrderID:  result.ID,
			Reason:   "rebalance",
		})
	}
	return nil
}

// trackedAssets filters the account's assets down to those in the percent
// profile and reports how much of the profile they represent. An empty
// profile adopts every asset with an equal split.
func (s *Strategy) trackedAssets(assets *asset.Group) (*asset.Group, float64) {
	if len(s.profile) == 0 {
		s.profile = map[string]float64{}
		for _, a := range assets.Assets {
			s.profile[a.Symbol] = 1.0 / float64(assets.Len())
		}
		return assets, 1.0
	}

	tracked := asset.NewGroup("tracked")
	trackedPercent := 0.0
	for _, a := range assets.Assets {
		if pct, ok := s.profile[a.Symbol]; ok {
			tracked.Append(a)
			trackedPercent += pct
		}
	}
	return tracked, trackedPercent
}

// computeOrders compares each asset's share of the tracked value against its
// target and emits buy/sell orders for the drift.
func (s *Strategy) computeOrders(ctx context.Context, tracked *asset.Group, trackedPercent, totalValue float64) []api.TradeOrder {
	current := tracked.Percents()
	var orders []api.TradeOrder
	for _, a := range tracked.Assets {
		target := s.profile[a.Symbol] / trackedPercent
		drift := target*totalValue - a.Value()

		s.Log(ctx, "%-8s %.2f%% of total value (target: %.2f%%)",
			a.Symbol, current[a.Symbol]*100, target*100)

		action := api.OrderAction("")
		switch {
		case drift > 0:
			action = api.Buy
		case drift < 0:
			action = api.Sell
		default:
			continue
		}

		notional := decimal.NewFromFloat(math.Abs(drift)).Round(2)
		if notional.IsZero() {
			continue
		}
		orders = append(orders, api.TradeOrder{
			Symbol:   a.Symbol,
			Action:   action,
			Notional: notional,
		})
		s.Log(ctx, "    order: %s $%s", action, notional)
	}
	return orders
}

// retrieveAssets merges the latest account positions into the asset history
// saved on disk, drops assets no longer held, and writes the result back.
func (s *Strategy) retrieveAssets(ctx context.Context) (*asset.Group, error) {
	path := filepath.Join(s.WorkDir, assetsFileName)
	saved, err := asset.LoadGroup(path)
	if err != nil {
		saved = nil // first run, or an unreadable file: start from the API view
	}

	fresh, err := s.API().GetAssets(ctx)
	if err != nil {
		return nil, err
	}

	if saved == nil {
		saved = fresh
	} else {
		for _, a := range saved.Assets {
			if fresh.Search(a.Symbol) == nil {
				s.Log(ctx, "asset %s is on disk but no longer on the account, dropping", a.Symbol)
				saved.Remove(a.Symbol)
			}
		}
		for _, a := range fresh.Assets {
			saved.Update(a)
		}
	}

	for _, a := range saved.Assets {
		a.HistoryCap = s.HistoryCap()
	}
	if err := saved.Save(path); err != nil {
		return nil, err
	}
	return saved, nil
}

// initProfile loads the percent profile from a JSON file mapping symbol to
// percent (the file's values must total 100), or derives an equal split from
// the given assets when no file is configured.
func (s *Strategy) initProfile(assets *asset.Group, configPath string) error {
	s.profile = map[string]float64{}

	if configPath != "" {
		b, err := os.ReadFile(configPath)
		if err != nil {
			return err
		}
		var raw map[string]float64
		if err := json.Unmarshal(b, &raw); err != nil {
			return fmt.Errorf("failed to parse percent profile %s: %w", configPath, err)
		}

		total := 0.0
		for symbol, pct := range raw {
			s.profile[symbol] = pct / 100.0
			total += pct
		}
		if math.Abs(total-100.0) > 1e-9 {
			return fmt.Errorf("percent profile %s totals %g, not 100", configPath, total)
		}
		return nil
	}

	if assets.Len() == 0 {
		return fmt.Errorf("no percent profile given and the account holds no assets")
	}
	for _, a := range assets.Assets {
		s.profile[a.Symbol] = 1.0 / float64(assets.Len())
	}
	return nil
}

func (s *Strategy) saveLastOrderTime(t time.Time) {
	path := filepath.Join(s.WorkDir, lastOrderTimeFileName)
	_ = os.WriteFile(path, []byte(strconv.FormatFloat(
		float64(t.UnixNano())/float64(time.Second), 'f', -1, 64)), 0o644)
}

func (s *Strategy) loadLastOrderTime() (time.Time, bool) {
	path := filepath.Join(s.WorkDir, lastOrderTimeFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, false
	}
	seconds, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, int64(seconds*float64(time.Second))), true
}
