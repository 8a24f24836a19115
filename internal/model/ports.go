package model

import (
	"context"
	"errors"
)

// ── Collaborator Ports ──
// The core never talks to an exchange directly. Live mode and the backtest
// binary are wired with implementations of these interfaces.

var (
	// ErrDataUnavailable means the market-data source errored or returned no candles.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrOrderFailed means an order placement did not return an explicit success.
	ErrOrderFailed = errors.New("order placement failed")
)

// MarketData supplies candle sequences, ascending by timestamp.
type MarketData interface {
	// FetchCandles returns up to limit of the most recent candles.
	// The last candle may still be forming.
	FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
}

// Account reports free balances.
type Account interface {
	AvailableBalance(ctx context.Context, currency string) (float64, error)
}

// OrderPlacer submits market orders. qty is in the base asset.
type OrderPlacer interface {
	PlaceMarketOrder(ctx context.Context, symbol string, side Side, qty float64) (OrderConfirmation, error)
}

// Broker is an exchange that can do all of the above.
type Broker interface {
	MarketData
	Account
	OrderPlacer
}
