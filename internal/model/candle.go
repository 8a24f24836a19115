package model

import (
	"fmt"
	"time"
)

// Candle is one OHLCV bucket for a single symbol.
// TS is the bucket open time in milliseconds since the Unix epoch.
type Candle struct {
	TS     int64   `json:"ts" db:"ts"`
	Open   float64 `json:"open" db:"open"`
	High   float64 `json:"high" db:"high"`
	Low    float64 `json:"low" db:"low"`
	Close  float64 `json:"close" db:"close"`
	Volume float64 `json:"volume" db:"volume"`
}

// Time returns the candle open time in UTC.
func (c Candle) Time() time.Time {
	return time.UnixMilli(c.TS).UTC()
}

// ValidateSeries checks that candles are strictly ascending by timestamp.
func ValidateSeries(candles []Candle) error {
	for i := 1; i < len(candles); i++ {
		if candles[i].TS <= candles[i-1].TS {
			return fmt.Errorf("candle %d: ts %d not after previous ts %d", i, candles[i].TS, candles[i-1].TS)
		}
	}
	return nil
}
