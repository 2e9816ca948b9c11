package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"snowbanker/internal/asset"
	"snowbanker/internal/logger"
)

// OrderAction is the side of a trade order.
type OrderAction string

const (
	Buy  OrderAction = "buy"
	Sell OrderAction = "sell"
)

// TradeOrder is a market order for a dollar (notional) amount of a symbol.
type TradeOrder struct {
	Symbol        string
	Action        OrderAction
	Notional      decimal.Decimal
	ClientOrderID uuid.UUID
}

// OrderResult is the brokerage's acknowledgement of a placed order.
type OrderResult struct {
	ID            string `json:"id"`
	ClientOrderID string `json:"client_order_id"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
}

// Account is a snapshot of the trading account.
type Account struct {
	ID            string          `json:"id"`
	AccountNumber string          `json:"account_number"`
	Status        string          `json:"status"`
	Currency      string          `json:"currency"`
	Cash          decimal.Decimal `json:"cash"`
	Equity        decimal.Decimal `json:"equity"`
	BuyingPower   decimal.Decimal `json:"buying_power"`
}

// AssetInfo describes one tradable asset in the brokerage's catalog.
type AssetInfo struct {
	ID           string `json:"id"`
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Tradable     bool   `json:"tradable"`
	Fractionable bool   `json:"fractionable"`
}

// TradeAPI talks to the Alpaca trading API on behalf of one profile. Every
// request carries the profile's credentials in the two APCA headers.
type TradeAPI struct {
	client *Client
	now    func() time.Time
}

// NewTradeAPI builds a trade API client for a base URL. Credentials must be
// attached with LoadKeys (or UseCredentials) before any call is made.
func NewTradeAPI(baseURL string, opts ...ClientOption) *TradeAPI {
	all := append([]ClientOption{WithBaseURL(baseURL)}, opts...)
	return &TradeAPI{client: NewClient(all...), now: time.Now}
}

// LoadKeys reads the key pair from the given files and attaches them as
// default headers. No request is possible until this succeeds.
func (t *TradeAPI) LoadKeys(keyIDPath, keySecretPath string) error {
	creds, err := Profile{KeyIDPath: keyIDPath, KeySecretPath: keySecretPath}.LoadCredentials()
	if err != nil {
		return err
	}
	t.UseCredentials(creds)
	return nil
}

// UseCredentials attaches an already-loaded key pair.
func (t *TradeAPI) UseCredentials(creds Credentials) {
	t.client.SetHeader(HeaderKeyID, creds.KeyID)
	t.client.SetHeader(HeaderKeySecret, creds.KeySecret)
}

func (t *TradeAPI) get(ctx context.Context, endpoint string, out any) error {
	resp, err := t.client.Do(NewRequest(http.MethodGet, endpoint).WithContext(ctx))
	if err != nil {
		return err
	}
	return decodeResponse(endpoint, resp, out)
}

func decodeResponse(endpoint string, resp *Response, out any) error {
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: did not receive 200 response code (%d): %s",
			endpoint, resp.StatusCode, string(resp.Body))
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%s: could not parse response body as JSON: %w", endpoint, err)
	}
	return nil
}

// GetMarketStatus reports whether the markets are currently open.
func (t *TradeAPI) GetMarketStatus(ctx context.Context) (bool, error) {
	ctx, span := logger.StartSpan(ctx, "api.GetMarketStatus")
	defer span.End()

	var clock struct {
		IsOpen bool `json:"is_open"`
	}
	if err := t.get(ctx, "/v2/clock", &clock); err != nil {
		return false, err
	}
	return clock.IsOpen, nil
}

// GetAccount retrieves the current account snapshot.
func (t *TradeAPI) GetAccount(ctx context.Context) (*Account, error) {
	ctx, span := logger.StartSpan(ctx, "api.GetAccount")
	defer span.End()

	var acct Account
	if err := t.get(ctx, "/v2/account", &acct); err != nil {
		return nil, err
	}
	return &acct, nil
}

// GetAssets retrieves all open positions as an asset group, each asset
// carrying one fresh price point.
func (t *TradeAPI) GetAssets(ctx context.Context) (*asset.Group, error) {
	ctx, span := logger.StartSpan(ctx, "api.GetAssets")
	defer span.End()

	var positions []struct {
		AssetID      string `json:"asset_id"`
		Symbol       string `json:"symbol"`
		Qty          string `json:"qty"`
		CurrentPrice string `json:"current_price"`
	}
	if err := t.get(ctx, "/v2/positions", &positions); err != nil {
		return nil, err
	}

	group := asset.NewGroup("fetched")
	for _, pos := range positions {
		quantity, err := strconv.ParseFloat(pos.Qty, 64)
		if err != nil {
			return nil, fmt.Errorf("position %s has a bad quantity %q: %w", pos.Symbol, pos.Qty, err)
		}
		price, err := strconv.ParseFloat(pos.CurrentPrice, 64)
		if err != nil {
			return nil, fmt.Errorf("position %s has a bad price %q: %w", pos.Symbol, pos.CurrentPrice, err)
		}

		a := asset.New(pos.AssetID, pos.Symbol, quantity)
		a.AppendPrice(asset.PricePoint{Price: price, Timestamp: t.now()})
		group.Append(a)
	}
	return group, nil
}

// ListAssets retrieves the brokerage's asset catalog.
func (t *TradeAPI) ListAssets(ctx context.Context) ([]AssetInfo, error) {
	ctx, span := logger.StartSpan(ctx, "api.ListAssets")
	defer span.End()

	var assets []AssetInfo
	if err := t.get(ctx, "/v2/assets", &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// PlaceOrder submits a notional market order, valid for the day. A zero
// ClientOrderID is replaced with a fresh one so the order can be traced.
func (t *TradeAPI) PlaceOrder(ctx context.Context, order TradeOrder) (*OrderResult, error) {
	ctx, span := logger.StartSpan(ctx, "api.PlaceOrder")
	defer span.End()

	if order.ClientOrderID == uuid.Nil {
		order.ClientOrderID = uuid.New()
	}

	body := map[string]any{
		"symbol":          order.Symbol,
		"notional":        order.Notional.String(),
		"side":            string(order.Action),
		"type":            "market",
		"time_in_force":   "day",
		"client_order_id": order.ClientOrderID.String(),
	}

	resp, err := t.client.Do(NewRequest(http.MethodPost, "/v2/orders").
		WithContext(ctx).
		WithBody(body))
	if err != nil {
		return nil, err
	}

	var result OrderResult
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("/v2/orders: order rejected (%d): %s", resp.StatusCode, string(resp.Body))
	}
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("/v2/orders: could not parse response body as JSON: %w", err)
	}

	logger.Info(ctx, "Order placed",
		"symbol", order.Symbol,
		"side", string(order.Action),
		"notional", order.Notional.String(),
		"order_id", result.ID,
		"status", result.Status)
	return &result, nil
}
