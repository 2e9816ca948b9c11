package perbal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"snowbanker/internal/api"
	"snowbanker/internal/strategy"
)

// stubTransport routes requests by path. Orders are recorded for inspection.
type stubTransport struct {
	marketOpen bool
	positions  string
	orders     []map[string]any
}

func (s *stubTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	reply := func(status int, body string) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
		}, nil
	}

	switch r.URL.Path {
	case "/v2/clock":
		if s.marketOpen {
			return reply(200, `{"is_open": true}`)
		}
		return reply(200, `{"is_open": false}`)
	case "/v2/positions":
		return reply(200, s.positions)
	case "/v2/orders":
		b, _ := io.ReadAll(r.Body)
		var order map[string]any
		_ = json.Unmarshal(b, &order)
		s.orders = append(s.orders, order)
		return reply(200, `{"id": "srv-1", "status": "accepted"}`)
	}
	return reply(404, `{"message":"not found"}`)
}

func newTestStrategy(t *testing.T, rt *stubTransport) *Strategy {
	t.Helper()
	trade := api.NewTradeAPI("https://paper-api.alpaca.markets", api.WithTransport(rt))
	trade.UseCredentials(api.Credentials{KeyID: "AKID", KeySecret: "SECRET"})
	deps := strategy.Deps{Trade: trade, HistoryCap: 100}
	return New("perbal", deps).(*Strategy)
}

func writeProfile(t *testing.T, profile string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.json")
	if err := os.WriteFile(path, []byte(profile), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const twoPositions = `[
	{"asset_id": "id-1", "symbol": "VTI", "qty": "1", "current_price": "300"},
	{"asset_id": "id-2", "symbol": "BND", "qty": "10", "current_price": "10"}
]`

func TestInitWithProfile(t *testing.T) {
	rt := &stubTransport{marketOpen: true, positions: twoPositions}
	s := newTestStrategy(t, rt)

	profile := writeProfile(t, `{"VTI": 50, "BND": 50}`)
	if err := s.Init(context.Background(), t.TempDir(), profile); err != nil {
		t.Fatal(err)
	}
	if s.profile["VTI"] != 0.5 || s.profile["BND"] != 0.5 {
		t.Errorf("unexpected profile: %v", s.profile)
	}
}

func TestInitRejectsBadProfileTotal(t *testing.T) {
	rt := &stubTransport{marketOpen: true, positions: twoPositions}
	s := newTestStrategy(t, rt)

	profile := writeProfile(t, `{"VTI": 50, "BND": 40}`)
	err := s.Init(context.Background(), t.TempDir(), profile)
	if err == nil || !strings.Contains(err.Error(), "not 100") {
		t.Fatalf("expected a profile total error, got %v", err)
	}
}

func TestInitEqualSplitWithoutProfile(t *testing.T) {
	rt := &stubTransport{marketOpen: true, positions: twoPositions}
	s := newTestStrategy(t, rt)

	if err := s.Init(context.Background(), t.TempDir(), ""); err != nil {
		t.Fatal(err)
	}
	if s.profile["VTI"] != 0.5 || s.profile["BND"] != 0.5 {
		t.Errorf("expected an equal split, got %v", s.profile)
	}
}

func TestTickMarketClosed(t *testing.T) {
	rt := &stubTransport{marketOpen: false, positions: twoPositions}
	s := newTestStrategy(t, rt)
	profile := writeProfile(t, `{"VTI": 50, "BND": 50}`)
	if err := s.Init(context.Background(), t.TempDir(), profile); err != nil {
		t.Fatal(err)
	}

	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(rt.orders) != 0 {
		t.Errorf("expected no orders while markets are closed, got %v", rt.orders)
	}
}

func TestTickRebalances(t *testing.T) {
	// total value $400, 50/50 target: VTI holds $300 (sell $100), BND holds
	// $100 (buy $100)
	rt := &stubTransport{marketOpen: true, positions: twoPositions}
	s := newTestStrategy(t, rt)
	workDir := t.TempDir()
	profile := writeProfile(t, `{"VTI": 50, "BND": 50}`)
	if err := s.Init(context.Background(), workDir, profile); err != nil {
		t.Fatal(err)
	}

	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(rt.orders) != 2 {
		t.Fatalf("expected 2 orders, got %d: %v", len(rt.orders), rt.orders)
	}
	bySymbol := map[string]map[string]any{}
	for _, o := range rt.orders {
		bySymbol[o["symbol"].(string)] = o
	}
	if got := bySymbol["VTI"]; got["side"] != "sell" || got["notional"] != "100" {
		t.Errorf("unexpected VTI order: %v", got)
	}
	if got := bySymbol["BND"]; got["side"] != "buy" || got["notional"] != "100" {
		t.Errorf("unexpected BND order: %v", got)
	}

	// the cycle leaves its state files behind
	if _, err := os.Stat(filepath.Join(workDir, "assets.json")); err != nil {
		t.Errorf("assets.json missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(workDir, "last_order_time.txt")); err != nil {
		t.Errorf("last_order_time.txt missing: %v", err)
	}

	day := time.Now().UTC()
	entries, err := s.Orders.ReadDay(day)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 trade log entries, got %d", len(entries))
	}
}

func TestTickRespectsOrderCooldown(t *testing.T) {
	rt := &stubTransport{marketOpen: true, positions: twoPositions}
	s := newTestStrategy(t, rt)
	profile := writeProfile(t, `{"VTI": 50, "BND": 50}`)
	if err := s.Init(context.Background(), t.TempDir(), profile); err != nil {
		t.Fatal(err)
	}

	// an order just went out
	s.saveLastOrderTime(time.Now())

	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(rt.orders) != 0 {
		t.Errorf("expected the cooldown to suppress orders, got %v", rt.orders)
	}
}

func TestTickSkipsSinglyOwnedProfile(t *testing.T) {
	rt := &stubTransport{
		marketOpen: true,
		positions:  `[{"asset_id": "id-1", "symbol": "VTI", "qty": "1", "current_price": "300"}]`,
	}
	s := newTestStrategy(t, rt)
	profile := writeProfile(t, `{"VTI": 50, "BND": 50}`)
	if err := s.Init(context.Background(), t.TempDir(), profile); err != nil {
		t.Fatal(err)
	}

	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(rt.orders) != 0 {
		t.Errorf("expected no orders with one tracked asset, got %v", rt.orders)
	}
}

func TestTickDropsAssetsNoLongerHeld(t *testing.T) {
	rt := &stubTransport{marketOpen: true, positions: twoPositions}
	s := newTestStrategy(t, rt)
	workDir := t.TempDir()
	profile := writeProfile(t, `{"VTI": 50, "BND": 50}`)
	if err := s.Init(context.Background(), workDir, profile); err != nil {
		t.Fatal(err)
	}

	// BND disappears from the account
	rt.positions = `[{"asset_id": "id-1", "symbol": "VTI", "qty": "1", "current_price": "300"}]`
	if err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(filepath.Join(workDir, "assets.json"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "BND") {
		t.Errorf("expected BND dropped from assets.json:\n%s", b)
	}
}

func TestLastOrderTimeRoundTrip(t *testing.T) {
	rt := &stubTransport{marketOpen: true, positions: twoPositions}
	s := newTestStrategy(t, rt)
	if err := s.Base.Init(context.Background(), t.TempDir()); err != nil {
		t.Fatal(err)
	}

	stamp := time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)
	s.saveLastOrderTime(stamp)
	got, ok := s.loadLastOrderTime()
	if !ok {
		t.Fatal("expected a saved last order time")
	}
	if !got.Equal(stamp) {
		t.Errorf("expected %v, got %v", stamp, got)
	}
}
