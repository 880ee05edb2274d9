// Package kalshi implements the Exchange Adapter: a signed
// REST client and WebSocket stream for a Kalshi-style binary-outcome
// prediction market, plus rate limiting, error classification, and
// bracket/ticker parsing.
package kalshi

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/bozweather/trader/internal/model"
)

const apiPrefix = "/trade-api/v2"

// Client is a rate-limited, signed REST client for the exchange.
type Client struct {
	BaseURL    string
	AccessKey  string
	PrivateKey *rsa.PrivateKey
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient builds a Client with the production-default 10 req/s (burst 10)
// token-bucket limiter.
func NewClient(baseURL, accessKey string, privateKey *rsa.PrivateKey) *Client {
	return &Client{
		BaseURL:    baseURL,
		AccessKey:  accessKey,
		PrivateKey: privateKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 10),
	}
}

// sign produces the three KALSHI-ACCESS-* headers for one request. The
// signing string is decimal-milliseconds-timestamp || method || full
// path (including the /trade-api/v2 prefix); the signature is PKCS#1
// v1.5 over SHA-256 of that string, base64-encoded.
func (c *Client) sign(method, path string) (key, signature, timestamp string, err error) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	digest := sha256sum(ts + method + path)

	sig, err := signDigest(c.PrivateKey, digest)
	if err != nil {
		return "", "", "", fmt.Errorf("kalshi: sign request: %w", err)
	}

	return c.AccessKey, sig, ts, nil
}

// do issues a signed request against path (relative to apiPrefix) and
// decodes a JSON response into out (if non-nil). isOrderEndpoint controls
// 400-status classification per the error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, body any, out any, isOrderEndpoint bool) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &ConnectionError{Err: err}
	}

	fullPath := apiPrefix + path
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("kalshi: marshal request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+fullPath, reader)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	key, signature, timestamp, err := c.sign(method, fullPath)
	if err != nil {
		return err
	}
	req.Header.Set("KALSHI-ACCESS-KEY", key)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", signature)
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", timestamp)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnectionError{Err: err}
	}

	if resp.StatusCode >= 400 {
		retryAfter := time.Duration(0)
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return classifyStatus(resp.StatusCode, string(raw), retryAfter, isOrderEndpoint)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("kalshi: decode response: %w", err)
		}
	}
	return nil
}

// ListEventsFor returns the market event (with parsed brackets) for a
// city/target_date. Brackets that fail to parse are logged and skipped;
// the event is still returned if at least one bracket parses.
func (c *Client) ListEventsFor(ctx context.Context, cityEventSeries, targetDate string) (model.MarketEvent, error) {
	var resp struct {
		Events []rawEvent `json:"events"`
	}
	path := fmt.Sprintf("/events?series_ticker=%s&status=open", cityEventSeries)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, false); err != nil {
		return model.MarketEvent{}, err
	}
	if len(resp.Events) == 0 {
		return model.MarketEvent{}, fmt.Errorf("kalshi: no open event for series %s", cityEventSeries)
	}

	event, parseErrs := parseEvent(resp.Events[0], cityEventSeries, targetDate)
	for _, pe := range parseErrs {
		slog.Warn("skipping unparseable bracket", "series", cityEventSeries, "error", pe)
	}
	if len(event.Brackets) == 0 {
		return model.MarketEvent{}, fmt.Errorf("kalshi: no parseable bracket in event for series %s", cityEventSeries)
	}
	return event, nil
}

// GetEventMarkets fetches full bracket detail (with current book) for an
// already-known event ID.
func (c *Client) GetEventMarkets(ctx context.Context, eventID, city, targetDate string) (model.MarketEvent, error) {
	var resp rawEvent
	path := fmt.Sprintf("/events/%s", eventID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp, false); err != nil {
		return model.MarketEvent{}, err
	}
	event, _ := parseEvent(resp, city, targetDate)
	return event, nil
}

// OrderBookLevel is one price/quantity rung of an orderbook side.
type OrderBookLevel struct {
	PriceCents model.Cents `json:"price_cents"`
	Quantity   int64       `json:"quantity"`
}

// OrderBook is the current yes/no book for one bracket ticker.
type OrderBook struct {
	YesLevels []OrderBookLevel `json:"yes_levels"`
	NoLevels  []OrderBookLevel `json:"no_levels"`
}

// GetOrderBook fetches the current book for a single bracket.
func (c *Client) GetOrderBook(ctx context.Context, ticker string) (OrderBook, error) {
	var raw struct {
		Orderbook struct {
			Yes [][2]int64 `json:"yes"`
			No  [][2]int64 `json:"no"`
		} `json:"orderbook"`
	}
	path := fmt.Sprintf("/markets/%s/orderbook", ticker)
	if err := c.do(ctx, http.MethodGet, path, nil, &raw, false); err != nil {
		return OrderBook{}, err
	}

	book := OrderBook{}
	for _, lvl := range raw.Orderbook.Yes {
		book.YesLevels = append(book.YesLevels, OrderBookLevel{PriceCents: model.Cents(lvl[0]), Quantity: lvl[1]})
	}
	for _, lvl := range raw.Orderbook.No {
		book.NoLevels = append(book.NoLevels, OrderBookLevel{PriceCents: model.Cents(lvl[0]), Quantity: lvl[1]})
	}
	return book, nil
}

// GetBalance returns the account balance in integer cents.
func (c *Client) GetBalance(ctx context.Context) (model.Cents, error) {
	var resp struct {
		BalanceCents int64 `json:"balance"`
	}
	if err := c.do(ctx, http.MethodGet, "/portfolio/balance", nil, &resp, false); err != nil {
		return 0, err
	}
	return model.Cents(resp.BalanceCents), nil
}

// Position is one open position row from the exchange.
type Position struct {
	Ticker        string      `json:"ticker"`
	Side          model.Side  `json:"side"`
	Quantity      int64       `json:"quantity"`
	AvgPriceCents model.Cents `json:"avg_price_cents"`
}

// GetPositions returns every currently open position.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var resp struct {
		MarketPositions []struct {
			Ticker   string `json:"ticker"`
			Position int64  `json:"position"` // positive=YES held, negative=NO held
			AvgPrice int64  `json:"average_price_cents"`
		} `json:"market_positions"`
	}
	if err := c.do(ctx, http.MethodGet, "/portfolio/positions", nil, &resp, false); err != nil {
		return nil, err
	}

	positions := make([]Position, 0, len(resp.MarketPositions))
	for _, p := range resp.MarketPositions {
		side := model.SideYes
		qty := p.Position
		if qty < 0 {
			side = model.SideNo
			qty = -qty
		}
		positions = append(positions, Position{
			Ticker:        p.Ticker,
			Side:          side,
			Quantity:      qty,
			AvgPriceCents: model.Cents(p.AvgPrice),
		})
	}
	return positions, nil
}

// OrderRequest places a single-bracket limit order.
type OrderRequest struct {
	Ticker     string
	Side       model.Side
	Quantity   int64
	PriceCents model.Cents
	ClientID   string // idempotency key supplied by the caller
}

// OrderResponse is the exchange's acknowledgement of a placed order.
type OrderResponse struct {
	OrderID string
	Status  string
}

// PlaceOrder submits an order. Under the exchange's idempotence rule, a timeout
// after send is never retried here — it surfaces as a ConnectionError and
// the caller must mark the trade UNCERTAIN and reconcile via
// GetPositions before the next cycle.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResponse, error) {
	if req.PriceCents < 1 || req.PriceCents > 99 {
		return OrderResponse{}, fmt.Errorf("kalshi: price %d cents out of [1,99] bound", req.PriceCents)
	}

	body := map[string]any{
		"ticker":          req.Ticker,
		"side":            string(req.Side),
		"action":          "buy",
		"count":           req.Quantity,
		"type":            "limit",
		"client_order_id": req.ClientID,
	}
	// PriceCents is the limit for the side being bought, so a NO order
	// carries it as no_price.
	if req.Side == model.SideNo {
		body["no_price"] = req.PriceCents
	} else {
		body["yes_price"] = req.PriceCents
	}
	var resp struct {
		Order struct {
			OrderID string `json:"order_id"`
			Status  string `json:"status"`
		} `json:"order"`
	}
	if err := c.do(ctx, http.MethodPost, "/portfolio/orders", body, &resp, true); err != nil {
		return OrderResponse{}, err
	}
	return OrderResponse{OrderID: resp.Order.OrderID, Status: resp.Order.Status}, nil
}

// CancelOrder cancels a resting order by ID.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	path := fmt.Sprintf("/portfolio/orders/%s", orderID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil, false); err != nil {
		return false, err
	}
	return true, nil
}
