package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kdjtrader/internal/model"
)

type balance struct {
	Asset  string `json:"asset" validate:"required"`
	Free   string `json:"free" validate:"required,numeric"`
	Locked string `json:"locked" validate:"omitempty,numeric"`
}

type accountResponse struct {
	Balances []balance `json:"balances" validate:"dive"`
}

// AvailableBalance returns the free amount of currency. An asset missing
// from the account is reported as zero.
func (c *Client) AvailableBalance(ctx context.Context, currency string) (float64, error) {
	if err := c.requireKeys(); err != nil {
		return 0, err
	}
	var acct accountResponse
	if err := c.do(ctx, http.MethodGet, "/api/v3/account", c.sign(url.Values{}), true, &acct); err != nil {
		return 0, err
	}
	if err := c.validate.Struct(&acct); err != nil {
		return 0, fmt.Errorf("binance: account payload: %w", err)
	}
	for _, b := range acct.Balances {
		if strings.EqualFold(b.Asset, currency) {
			free, err := parseDecimal("free", b.Free)
			if err != nil {
				return 0, err
			}
			return free.InexactFloat64(), nil
		}
	}
	return 0, nil
}

type fill struct {
	Price string `json:"price"`
	Qty   string `json:"qty"`
}

type orderResponse struct {
	Symbol              string `json:"symbol" validate:"required"`
	OrderID             int64  `json:"orderId" validate:"required"`
	ClientOrderID       string `json:"clientOrderId"`
	TransactTime        int64  `json:"transactTime"`
	Status              string `json:"status" validate:"required"`
	ExecutedQty         string `json:"executedQty" validate:"required,numeric"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty" validate:"omitempty,numeric"`
	Fills               []fill `json:"fills"`
}

// RoundQty floors qty to the configured lot step. Without a step the
// quantity is truncated to 8 decimals.
func (c *Client) RoundQty(qty float64) decimal.Decimal {
	q := decimal.NewFromFloat(qty)
	if c.step.IsPositive() {
		return q.Div(c.step).Floor().Mul(c.step)
	}
	return q.Truncate(8)
}

// PlaceMarketOrder submits a MARKET order for qty base units. Only an
// acknowledged order with a non-terminal-failure status is a success.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side model.Side, qty float64) (model.OrderConfirmation, error) {
	if err := c.requireKeys(); err != nil {
		return model.OrderConfirmation{}, fmt.Errorf("%w: %v", model.ErrOrderFailed, err)
	}
	q := c.RoundQty(qty)
	if !q.IsPositive() {
		return model.OrderConfirmation{}, fmt.Errorf("%w: quantity %g rounds to zero", model.ErrOrderFailed, qty)
	}

	clientID := uuid.NewString()
	v := url.Values{}
	v.Set("symbol", NormalizeSymbol(symbol))
	v.Set("side", strings.ToUpper(string(side)))
	v.Set("type", "MARKET")
	v.Set("quantity", q.String())
	v.Set("newClientOrderId", clientID)
	v.Set("newOrderRespType", "FULL")

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/api/v3/order", c.sign(v), true, &resp); err != nil {
		return model.OrderConfirmation{}, fmt.Errorf("%w: %v", model.ErrOrderFailed, err)
	}
	if err := c.validate.Struct(&resp); err != nil {
		return model.OrderConfirmation{}, fmt.Errorf("%w: order payload: %v", model.ErrOrderFailed, err)
	}
	switch resp.Status {
	case "REJECTED", "EXPIRED", "CANCELED", "EXPIRED_IN_MATCH":
		return model.OrderConfirmation{}, fmt.Errorf("%w: order %d status %s", model.ErrOrderFailed, resp.OrderID, resp.Status)
	}

	executed, err := parseDecimal("executedQty", resp.ExecutedQty)
	if err != nil {
		return model.OrderConfirmation{}, fmt.Errorf("%w: %v", model.ErrOrderFailed, err)
	}
	conf := model.OrderConfirmation{
		OrderID:       strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		Symbol:        symbol,
		Side:          side,
		Qty:           executed.InexactFloat64(),
		AvgPrice:      avgPrice(resp, executed).InexactFloat64(),
		Status:        resp.Status,
		CreatedAt:     time.UnixMilli(resp.TransactTime).UTC(),
	}
	if conf.ClientOrderID == "" {
		conf.ClientOrderID = clientID
	}
	return conf, nil
}

// avgPrice prefers cumulative quote / executed, falling back to fills.
func avgPrice(r orderResponse, executed decimal.Decimal) decimal.Decimal {
	if !executed.IsPositive() {
		return decimal.Zero
	}
	if r.CummulativeQuoteQty != "" {
		if quote, err := decimal.NewFromString(r.CummulativeQuoteQty); err == nil && quote.IsPositive() {
			return quote.Div(executed)
		}
	}
	var notional, qty decimal.Decimal
	for _, f := range r.Fills {
		p, err1 := decimal.NewFromString(f.Price)
		q, err2 := decimal.NewFromString(f.Qty)
		if err1 != nil || err2 != nil {
			continue
		}
		notional = notional.Add(p.Mul(q))
		qty = qty.Add(q)
	}
	if qty.IsPositive() {
		return notional.Div(qty)
	}
	return decimal.Zero
}
