// Package kalshi is a thin REST client for the Kalshi trading API.
// Grounded on internal/execution/order_client.go from the teacher:
// same request-build-then-sign-then-submit shape, same structured
// API-error wrapping on non-2xx responses, same single shared
// *http.Client with a fixed timeout — but authentication is
// RSA-PSS-SHA256 header signing via pkg/kalshiauth instead of HMAC
// over a Polymarket-specific secret, and order submission goes
// through Kalshi's REST batch endpoint instead of EIP-712-signed
// CTF exchange orders.
package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kalshi-trading/core/pkg/boterrors"
	"github.com/kalshi-trading/core/pkg/kalshiauth"
)

// Client talks to the Kalshi trade API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *kalshiauth.Auth
	logger     *zap.Logger
}

// NewClient builds a Client against baseURL (e.g. the demo or
// production trade-api v2 root), signing every request with auth.
func NewClient(baseURL string, auth *kalshiauth.Auth, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		auth:       auth,
		logger:     logger,
	}
}

// Market is the subset of Kalshi market metadata the bot needs.
type Market struct {
	Ticker          string  `json:"ticker"`
	EventTicker     string  `json:"event_ticker"`
	Status          string  `json:"status"`
	YesBid          int64   `json:"yes_bid"`
	YesAsk          int64   `json:"yes_ask"`
	NoBid           int64   `json:"no_bid"`
	NoAsk           int64   `json:"no_ask"`
	LastPrice       int64   `json:"last_price"`
	Volume24h       int64   `json:"volume_24h"`
	OpenInterest    int64   `json:"open_interest"`
	RulesPrimary    string  `json:"rules_primary"`
	RulesSecondary  string  `json:"rules_secondary"`
	CloseTime       string  `json:"close_time"`
	StrikeType      string  `json:"strike_type"`
	FloorStrike     float64 `json:"floor_strike"`
	CapStrike       float64 `json:"cap_strike"`
}

// marketsResponse is the envelope the /markets listing endpoint
// returns.
type marketsResponse struct {
	Markets []Market `json:"markets"`
	Cursor  string   `json:"cursor"`
}

// ListMarkets fetches one page of markets filtered by series ticker
// prefix and status, following the cursor-based pagination the
// exchange uses.
func (c *Client) ListMarkets(ctx context.Context, seriesTicker, status, cursor string) ([]Market, string, error) {
	q := url.Values{}
	if seriesTicker != "" {
		q.Set("series_ticker", seriesTicker)
	}
	if status != "" {
		q.Set("status", status)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var resp marketsResponse
	if err := c.get(ctx, "/markets", q, &resp); err != nil {
		return nil, "", err
	}
	return resp.Markets, resp.Cursor, nil
}

// Balance is the account balance response.
type Balance struct {
	BalanceCents int64 `json:"balance"`
}

// GetBalance fetches the account's current cash balance in cents.
func (c *Client) GetBalance(ctx context.Context) (int64, error) {
	var resp Balance
	if err := c.get(ctx, "/portfolio/balance", nil, &resp); err != nil {
		return 0, err
	}
	return resp.BalanceCents, nil
}

// Position is one open market position.
type Position struct {
	Ticker       string `json:"ticker"`
	Position     int64  `json:"position"` // signed: positive=long yes, negative=long no
	MarketExposureCents int64 `json:"market_exposure"`
}

type positionsResponse struct {
	MarketPositions []Position `json:"market_positions"`
}

// GetPositions returns every open market position.
func (c *Client) GetPositions(ctx context.Context) ([]Position, error) {
	var resp positionsResponse
	if err := c.get(ctx, "/portfolio/positions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.MarketPositions, nil
}

// OrderRequest is one leg submitted to the batch order endpoint.
type OrderRequest struct {
	Ticker      string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Side        string `json:"side"`   // "yes" or "no"
	Action      string `json:"action"` // "buy" or "sell"
	Type        string `json:"type"`   // "limit" or "market"
	Count       int64  `json:"count"`
	YesPrice    int64  `json:"yes_price,omitempty"`
	NoPrice     int64  `json:"no_price,omitempty"`
	TimeInForce string `json:"time_in_force,omitempty"` // "fill_or_kill", "immediate_or_cancel"
}

// OrderResult is one entry of the batch order response: either a
// placed order or a per-entry error.
type OrderResult struct {
	Order *OrderStatus `json:"order,omitempty"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// OrderStatus reflects the exchange's view of one order.
type OrderStatus struct {
	OrderID        string `json:"order_id"`
	Ticker         string `json:"ticker"`
	Status         string `json:"status"`
	FillCount      int64  `json:"fill_count"`
	RemainingCount int64  `json:"remaining_count"`
	YesPrice       int64  `json:"yes_price"`
	NoPrice        int64  `json:"no_price"`
}

// TerminalStatuses lists the exchange's terminal order states.
var TerminalStatuses = map[string]bool{
	"executed":  true,
	"canceled":  true,
	"cancelled": true,
	"expired":   true,
	"rejected":  true,
}

type batchOrdersRequest struct {
	Orders []OrderRequest `json:"orders"`
}

type batchOrdersResponse struct {
	Orders []OrderResult `json:"orders"`
}

// PlaceBatchOrders submits every leg atomically through the batch
// endpoint and returns one OrderResult per submitted leg, in order.
func (c *Client) PlaceBatchOrders(ctx context.Context, orders []OrderRequest) ([]OrderResult, error) {
	var resp batchOrdersResponse
	if err := c.post(ctx, "/portfolio/orders/batched", batchOrdersRequest{Orders: orders}, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// CancelOrder cancels one resting order by id.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.delete(ctx, "/portfolio/orders/"+orderID)
}

type orderEnvelope struct {
	Order OrderStatus `json:"order"`
}

// GetOrder fetches the exchange's current view of one order, used to
// verify fills after batch submission.
func (c *Client) GetOrder(ctx context.Context, orderID string) (OrderStatus, error) {
	var resp orderEnvelope
	if err := c.get(ctx, "/portfolio/orders/"+orderID, nil, &resp); err != nil {
		return OrderStatus{}, err
	}
	return resp.Order, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	full := path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, full, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// do signs and sends one HTTP request. fullPath may include a query
// string; Auth.SignRequest strips it before computing the signature.
func (c *Client) do(ctx context.Context, method, fullPath string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &boterrors.SchemaError{Field: "request", Reason: err.Error(), Err: err}
		}
		reqBody = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+fullPath, reqBody)
	if err != nil {
		return &boterrors.TransportError{Op: "kalshi_request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if c.auth != nil {
		signed, err := c.auth.SignRequest(method, fullPath)
		if err != nil {
			return &boterrors.AuthError{Reason: "sign request", Err: err}
		}
		for k, v := range signed.Headers() {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &boterrors.TransportError{Op: "kalshi_request", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &boterrors.TransportError{Op: "kalshi_request", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &boterrors.ExchangeError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &boterrors.SchemaError{Field: "response", Reason: fmt.Sprintf("decode %s", fullPath), Err: err}
	}
	return nil
}
