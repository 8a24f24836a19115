package model

import "time"

// Side is the direction of a market order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderConfirmation is returned by an OrderPlacer when the exchange
// acknowledged the order. A confirmation is the only evidence that an
// order executed.
type OrderConfirmation struct {
	OrderID       string    `json:"order_id"`
	ClientOrderID string    `json:"client_order_id"`
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Qty           float64   `json:"qty"`       // executed base quantity
	AvgPrice      float64   `json:"avg_price"` // 0 when the exchange did not report fills
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}
