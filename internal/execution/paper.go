// Package execution provides a dry-run broker and a persistent trade journal.
package execution

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kdjtrader/internal/model"
)

// Fill represents a simulated order fill.
type Fill struct {
	OrderID   string     `json:"order_id"`
	Symbol    string     `json:"symbol"`
	Side      model.Side `json:"side"`
	FillPrice float64    `json:"fill_price"`
	FillQty   float64    `json:"fill_qty"`
	FilledAt  time.Time  `json:"filled_at"`
	Slippage  float64    `json:"slippage"` // absolute price slippage applied
}

// PaperBroker simulates a spot account without real exchange calls.
// It wraps a real market-data feed and fills market orders at the close of
// the most recently fetched candle, adjusted by slippage.
type PaperBroker struct {
	feed  model.MarketData
	quote string

	mu       sync.RWMutex
	cash     decimal.Decimal
	holdings map[string]decimal.Decimal // base asset -> qty
	marks    map[string]float64         // symbol -> last close seen
	fills    []Fill
	orderSeq int64

	slippageBps int64 // basis points of slippage (e.g., 5 = 0.05%)
	now         func() time.Time
}

// NewPaperBroker creates a paper account holding balance units of quote.
func NewPaperBroker(feed model.MarketData, quote string, balance float64, slippageBps int64) *PaperBroker {
	return &PaperBroker{
		feed:        feed,
		quote:       strings.ToUpper(quote),
		cash:        decimal.NewFromFloat(balance),
		holdings:    make(map[string]decimal.Decimal),
		marks:       make(map[string]float64),
		fills:       make([]Fill, 0, 64),
		slippageBps: slippageBps,
		now:         time.Now,
	}
}

// FetchCandles delegates to the wrapped feed and records the newest close
// as the mark price for symbol.
func (p *PaperBroker) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	candles, err := p.feed.FetchCandles(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	if n := len(candles); n > 0 {
		p.SetMark(symbol, candles[n-1].Close)
	}
	return candles, nil
}

// SetMark sets the price the next market order for symbol fills at.
func (p *PaperBroker) SetMark(symbol string, price float64) {
	p.mu.Lock()
	p.marks[symbol] = price
	p.mu.Unlock()
}

// AvailableBalance returns free cash for the quote currency, otherwise the
// held quantity of the named base asset.
func (p *PaperBroker) AvailableBalance(_ context.Context, currency string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	currency = strings.ToUpper(currency)
	if currency == p.quote {
		return p.cash.InexactFloat64(), nil
	}
	return p.holdings[currency].InexactFloat64(), nil
}

// PlaceMarketOrder fills immediately at the mark price.
func (p *PaperBroker) PlaceMarketOrder(_ context.Context, symbol string, side model.Side, qty float64) (model.OrderConfirmation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	mark, ok := p.marks[symbol]
	if !ok || mark <= 0 {
		return model.OrderConfirmation{}, fmt.Errorf("%w: no mark price for %s", model.ErrOrderFailed, symbol)
	}
	if qty <= 0 {
		return model.OrderConfirmation{}, fmt.Errorf("%w: quantity %g", model.ErrOrderFailed, qty)
	}

	base := baseAsset(symbol, p.quote)
	price := decimal.NewFromFloat(mark)
	slip := price.Mul(decimal.NewFromInt(p.slippageBps)).Div(decimal.NewFromInt(10000))
	q := decimal.NewFromFloat(qty)

	switch side {
	case model.SideBuy:
		price = price.Add(slip) // buy higher
		cost := price.Mul(q)
		if cost.GreaterThan(p.cash) {
			return model.OrderConfirmation{}, fmt.Errorf("%w: insufficient %s: need %s, have %s",
				model.ErrOrderFailed, p.quote, cost.StringFixed(2), p.cash.StringFixed(2))
		}
		p.cash = p.cash.Sub(cost)
		p.holdings[base] = p.holdings[base].Add(q)
	case model.SideSell:
		price = price.Sub(slip) // sell lower
		held := p.holdings[base]
		if q.GreaterThan(held) {
			return model.OrderConfirmation{}, fmt.Errorf("%w: insufficient %s: need %s, have %s",
				model.ErrOrderFailed, base, q.String(), held.String())
		}
		p.holdings[base] = held.Sub(q)
		p.cash = p.cash.Add(price.Mul(q))
	default:
		return model.OrderConfirmation{}, fmt.Errorf("%w: unknown side %q", model.ErrOrderFailed, side)
	}

	p.orderSeq++
	now := p.now()
	fill := Fill{
		OrderID:   fmt.Sprintf("PAPER-%d", p.orderSeq),
		Symbol:    symbol,
		Side:      side,
		FillPrice: price.InexactFloat64(),
		FillQty:   qty,
		FilledAt:  now,
		Slippage:  slip.InexactFloat64(),
	}
	p.fills = append(p.fills, fill)

	return model.OrderConfirmation{
		OrderID:       fill.OrderID,
		ClientOrderID: uuid.NewString(),
		Symbol:        symbol,
		Side:          side,
		Qty:           qty,
		AvgPrice:      fill.FillPrice,
		Status:        "FILLED",
		CreatedAt:     now,
	}, nil
}

// Fills returns a snapshot of all fills.
func (p *PaperBroker) Fills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// baseAsset extracts BTC from "BTC/USDT", "BTC-USDT" or "BTCUSDT".
func baseAsset(symbol, quote string) string {
	s := strings.ToUpper(symbol)
	for _, sep := range []string{"/", "-", "_"} {
		if i := strings.Index(s, sep); i > 0 {
			return s[:i]
		}
	}
	return strings.TrimSuffix(s, quote)
}
