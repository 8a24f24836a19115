// Package export writes trade logs for offline review.
package export

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"

	"kdjtrader/internal/indicator"
	"kdjtrader/internal/portfolio"
)

// KDJ is the oscillator snapshot. nil fields were undefined.
type KDJ struct {
	K *float64 `json:"%K"`
	D *float64 `json:"%D"`
	J *float64 `json:"%J"`
}

// SKDJ is the smoothed oscillator snapshot.
type SKDJ struct {
	SK *float64 `json:"%SK"`
	SD *float64 `json:"%SD"`
}

// Bollinger is the band snapshot.
type Bollinger struct {
	SMA *float64 `json:"SMA"`
	UB  *float64 `json:"UB"`
	LB  *float64 `json:"LB"`
}

// LossRecord is one exported losing trade.
type LossRecord struct {
	Entry         float64   `json:"entry"`
	Exit          float64   `json:"exit"`
	Profit        float64   `json:"profit"`
	OpenDatetime  string    `json:"open_datetime"`
	CloseDatetime string    `json:"close_datetime"`
	Duration      string    `json:"duration"`
	DurationMS    int64     `json:"duration_ms"`
	OpenKDJ       KDJ       `json:"open_KDJ"`
	OpenSKDJ      SKDJ      `json:"open_SKDJ"`
	OpenBollinger Bollinger `json:"open_Bollinger"`
	ExitKDJ       KDJ       `json:"exit_KDJ"`
	ExitSKDJ      SKDJ      `json:"exit_SKDJ"`
	ExitBollinger Bollinger `json:"exit_Bollinger"`
	ExitRSI       *float64  `json:"exit_RSI"`
}

func kdjOf(f indicator.Frame) KDJ {
	return KDJ{K: indicator.Nullable(f.K), D: indicator.Nullable(f.D), J: indicator.Nullable(f.J)}
}

func skdjOf(f indicator.Frame) SKDJ {
	return SKDJ{SK: indicator.Nullable(f.SK), SD: indicator.Nullable(f.SD)}
}

func bollOf(f indicator.Frame) Bollinger {
	return Bollinger{SMA: indicator.Nullable(f.SMA), UB: indicator.Nullable(f.UB), LB: indicator.Nullable(f.LB)}
}

func isoTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// NewLossRecord converts a trade. It does not check the sign of the profit.
func NewLossRecord(t portfolio.Trade) LossRecord {
	return LossRecord{
		Entry:         t.EntryPrice,
		Exit:          t.ExitPrice,
		Profit:        t.Profit,
		OpenDatetime:  isoTime(t.EntryTS),
		CloseDatetime: isoTime(t.ExitTS),
		Duration:      t.Duration.String(),
		DurationMS:    t.Duration.Milliseconds(),
		OpenKDJ:       kdjOf(t.EntrySnapshot),
		OpenSKDJ:      skdjOf(t.EntrySnapshot),
		OpenBollinger: bollOf(t.EntrySnapshot),
		ExitKDJ:       kdjOf(t.ExitSnapshot),
		ExitSKDJ:      skdjOf(t.ExitSnapshot),
		ExitBollinger: bollOf(t.ExitSnapshot),
		ExitRSI:       indicator.Nullable(t.ExitSnapshot.RSI),
	}
}

// EncodeLossTrades writes the losing trades among trades as an indented JSON array.
func EncodeLossTrades(w io.Writer, trades []portfolio.Trade) error {
	out := make([]LossRecord, 0, len(trades))
	for _, t := range trades {
		if t.IsLoss() {
			out = append(out, NewLossRecord(t))
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(out)
}

// WriteLossTrades writes the loss trade log to path, replacing any existing file.
func WriteLossTrades(path string, trades []portfolio.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := EncodeLossTrades(f, trades); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
