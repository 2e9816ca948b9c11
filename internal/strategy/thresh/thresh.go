// Package thresh implements the "threshold" strategy. It watches a fixed
// list of symbols and trades each one between two modes: WATCH, waiting for
// the price to fall far enough below the last transaction to buy, and HOLD,
// waiting for it to rise far enough above the last transaction to sell.
package thresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"snowbanker/internal/api"
	"snowbanker/internal/asset"
	"snowbanker/internal/strategy"
	"snowbanker/internal/tradelog"
)

func init() {
	strategy.Register("thresh", New)
}

// Mode is the per-asset trading mode.
type Mode int

const (
	ModeUnknown Mode = -1
	ModeWatch   Mode = 0
	ModeHold    Mode = 1
)

func (m Mode) String() string {
	switch m {
	case ModeWatch:
		return "WATCH"
	case ModeHold:
		return "HOLD"
	}
	return "UNKNOWN"
}

// Config is the strategy's JSON configuration file.
type Config struct {
	BaseBuy    float64  `json:"base_buy"`
	ThreshBuy  float64  `json:"thresh_buy"`
	ThreshSell float64  `json:"thresh_sell"`
	Symbols    []string `json:"symbols"`
}

// AssetState wraps one watched asset with the extra state this strategy
// tracks for it: the current mode and the history of its own transactions.
type AssetState struct {
	asset.Asset
	Mode               Mode               `json:"mode"`
	TransactionHistory []asset.PricePoint `json:"thistory"`
}

// LastTransaction returns the most recent transaction price point, or nil.
func (s *AssetState) LastTransaction() *asset.PricePoint {
	if len(s.TransactionHistory) == 0 {
		return nil
	}
	return &s.TransactionHistory[len(s.TransactionHistory)-1]
}

// RecordTransaction appends a transaction to the state's history.
func (s *AssetState) RecordTransaction(p asset.PricePoint) {
	s.TransactionHistory = append(s.TransactionHistory, p)
}

func stateFileName(symbol string) string {
	return "asset_" + strings.ToLower(symbol) + ".json"
}

func (s *AssetState) save(dir string) error {
	b, err := json.MarshalIndent(s, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, stateFileName(s.Symbol)), b, 0o644)
}

func loadState(symbol, dir string) (*AssetState, error) {
	b, err := os.ReadFile(filepath.Join(dir, stateFileName(symbol)))
	if err != nil {
		return nil, err
	}
	st := AssetState{Mode: ModeUnknown}
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("failed to parse asset state for %s: %w", symbol, err)
	}
	return &st, nil
}

// Strategy is the threshold strategy.
type Strategy struct {
	strategy.Base

	cfg Config
	now func() time.Time
}

// New builds an uninitialized threshold strategy.
func New(name string, deps strategy.Deps) strategy.Strategy {
	return &Strategy{Base: strategy.NewBase(name, deps), now: time.Now}
}

// Init prepares the working directory and loads the strategy config, which
// is required: without a symbol list there is nothing to watch.
func (s *Strategy) Init(ctx context.Context, workDir, configPath string) error {
	if err := s.Base.Init(ctx, workDir); err != nil {
		return err
	}
	if configPath == "" {
		return errors.New("the threshold strategy requires a config file")
	}
	return s.loadConfig(configPath)
}

func (s *Strategy) loadConfig(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var cfg Config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return fmt.Errorf("failed to parse strategy config %s: %w", path, err)
	}
	if len(cfg.Symbols) == 0 {
		return fmt.Errorf("strategy config %s contains zero symbols", path)
	}
	if cfg.BaseBuy <= 0 {
		return fmt.Errorf("strategy config %s: base_buy must be positive", path)
	}
	if cfg.ThreshBuy <= 0 || cfg.ThreshSell <= 0 {
		return fmt.Errorf("strategy config %s: thresholds must be positive", path)
	}
	s.cfg = cfg
	return nil
}

// Tick runs one decision cycle over every watched symbol.
func (s *Strategy) Tick(ctx context.Context) error {
	open, err := s.API().GetMarketStatus(ctx)
	if err != nil {
		return err
	}
	if !open {
		s.Log(ctx, "markets are closed, skipping this tick")
		return nil
	}

	states, err := s.retrieveStates(ctx)
	if err != nil {
		return err
	}

	for _, st := range states {
		if err := s.decide(ctx, st); err != nil {
			s.Log(ctx, "decision failed for %s: %v", st.Symbol, err)
			continue
		}
		if err := st.save(s.WorkDir); err != nil {
			return err
		}
	}
	return nil
}

// decide applies the threshold rules to one asset state.
func (s *Strategy) decide(ctx context.Context, st *AssetState) error {
	owned := st.Quantity > 0
	lastTx := st.LastTransaction()
	current := st.LatestPrice()

	// First contact with a symbol: buy the base amount and hold it.
	if !owned && st.Mode != ModeWatch {
		s.Log(ctx, "own zero shares of %s, buying $%.2f and switching to HOLD",
			st.Symbol, s.cfg.BaseBuy)
		return s.placeOrder(ctx, st, api.Buy, decimal.NewFromFloat(s.cfg.BaseBuy), ModeHold, "initial buy")
	}

	// Waiting to re-enter: buy when the price has dropped far enough below
	// the last transaction.
	if !owned && st.Mode == ModeWatch {
		if lastTx == nil || current == nil {
			s.Log(ctx, "%s is in WATCH mode with no reference price, waiting", st.Symbol)
			return nil
		}
		trigger := lastTx.Price * (1 - s.cfg.ThreshBuy)
		if current.Price <= trigger {
			s.Log(ctx, "%s fell to $%.2f (trigger $%.2f), buying $%.2f and switching to HOLD",
				st.Symbol, current.Price, trigger, s.cfg.BaseBuy)
			return s.placeOrder(ctx, st, api.Buy, decimal.NewFromFloat(s.cfg.BaseBuy), ModeHold, "threshold buy")
		}
		s.Log(ctx, "%s at $%.2f, waiting for $%.2f to buy", st.Symbol, current.Price, trigger)
		return nil
	}

	// Owned but without any recorded transactions: adopt the current price
	// as the baseline and hold.
	if lastTx == nil {
		if current == nil {
			s.Log(ctx, "%s has no transaction history and no current price, waiting", st.Symbol)
			return nil
		}
		s.Log(ctx, "%s has no transaction history, adopting $%.2f as baseline and switching to HOLD",
			st.Symbol, current.Price)
		st.RecordTransaction(*current)
		st.Mode = ModeHold
		return nil
	}

	// Holding: sell the whole position when the price has risen far enough
	// above the last transaction.
	if current == nil {
		s.Log(ctx, "%s has no current price, waiting", st.Symbol)
		return nil
	}
	trigger := lastTx.Price * (1 + s.cfg.ThreshSell)
	if current.Price >= trigger {
		notional := decimal.NewFromFloat(current.Price * st.Quantity).Round(2)
		s.Log(ctx, "%s rose to $%.2f (trigger $%.2f), selling $%s and switching to WATCH",
			st.Symbol, current.Price, trigger, notional)
		return s.placeOrder(ctx, st, api.Sell, notional, ModeWatch, "threshold sell")
	}
	s.Log(ctx, "%s at $%.2f, waiting for $%.2f to sell", st.Symbol, current.Price, trigger)
	return nil
}

// placeOrder submits the order and, on success, records the transaction and
// flips the asset's mode. An initial buy with no known price records nothing:
// the next tick's baseline adoption picks up the real fill price instead of a
// bogus zero that every sell trigger would clear.
func (s *Strategy) placeOrder(ctx context.Context, st *AssetState, action api.OrderAction, notional decimal.Decimal, next Mode, reason string) error {
	result, err := s.API().PlaceOrder(ctx, api.TradeOrder{
		Symbol:   st.Symbol,
		Action:   action,
		Notional: notional,
	})
	if err != nil {
		return err
	}

	if p := st.LatestPrice(); p != nil {
		st.RecordTransaction(asset.PricePoint{Price: p.Price, Timestamp: s.now()})
	}
	st.Mode = next

	_ = s.Orders.Append(tradelog.Entry{
		Symbol:   st.Symbol,
		Side:     string(action),
		Notional: notional.String(),
		OrderID:  result.ID,
		Reason:   reason,
	})
	return nil
}

// retrieveStates merges the account's current positions into the per-symbol
// state files, creating fresh state for symbols seen for the first time.
func (s *Strategy) retrieveStates(ctx context.Context) ([]*AssetState, error) {
	fresh, err := s.API().GetAssets(ctx)
	if err != nil {
		return nil, err
	}

	var states []*AssetState
	for _, symbol := range s.cfg.Symbols {
		st, err := loadState(symbol, s.WorkDir)
		if err != nil {
			st = nil // first sighting of this symbol
		}

		held := fresh.Search(symbol)
		if held == nil {
			held = asset.New(symbol, symbol, 0)
		}
		held.HistoryCap = s.HistoryCap()

		if st == nil {
			st = &AssetState{Asset: *held, Mode: ModeUnknown}
		} else {
			st.Quantity = held.Quantity
			if p := held.LatestPrice(); p != nil {
				st.AppendPrice(*p)
			}
		}
		st.Asset.HistoryCap = s.HistoryCap()

		if err := st.save(s.WorkDir); err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}
