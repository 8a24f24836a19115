package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	json "github.com/goccy/go-json"

	"kdjtrader/internal/model"
)

// kline rows are positional arrays:
// [openTime, open, high, low, close, volume, closeTime, ...]
type klineRow []json.RawMessage

func (r klineRow) candle() (model.Candle, error) {
	if len(r) < 6 {
		return model.Candle{}, fmt.Errorf("binance: kline row has %d fields", len(r))
	}
	var c model.Candle
	if err := json.Unmarshal(r[0], &c.TS); err != nil {
		return model.Candle{}, fmt.Errorf("binance: kline open time: %w", err)
	}
	dst := []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume}
	names := []string{"open", "high", "low", "close", "volume"}
	for i, p := range dst {
		var s string
		if err := json.Unmarshal(r[i+1], &s); err != nil {
			return model.Candle{}, fmt.Errorf("binance: kline %s: %w", names[i], err)
		}
		d, err := parseDecimal(names[i], s)
		if err != nil {
			return model.Candle{}, err
		}
		*p = d.InexactFloat64()
	}
	return c, nil
}

// FetchCandles returns the latest limit klines, oldest first. The last one
// is normally still forming.
func (c *Client) FetchCandles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	if !ValidInterval(timeframe) {
		return nil, fmt.Errorf("%w: unsupported interval %q", model.ErrDataUnavailable, timeframe)
	}
	if limit <= 0 || limit > maxKlineLimit {
		limit = maxKlineLimit
	}

	q := url.Values{}
	q.Set("symbol", NormalizeSymbol(symbol))
	q.Set("interval", timeframe)
	q.Set("limit", strconv.Itoa(limit))

	var rows []klineRow
	if err := c.do(ctx, http.MethodGet, "/api/v3/klines", q.Encode(), false, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDataUnavailable, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no klines for %s %s", model.ErrDataUnavailable, symbol, timeframe)
	}

	out := make([]model.Candle, 0, len(rows))
	for _, r := range rows {
		cd, err := r.candle()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrDataUnavailable, err)
		}
		out = append(out, cd)
	}
	if err := model.ValidateSeries(out); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDataUnavailable, err)
	}
	return out, nil
}

// FetchRange pages through klines from startMS (inclusive) until endMS or
// max candles, whichever comes first. Used for long historical runs that
// exceed a single request.
func (c *Client) FetchRange(ctx context.Context, symbol, timeframe string, startMS, endMS int64, max int) ([]model.Candle, error) {
	if !ValidInterval(timeframe) {
		return nil, fmt.Errorf("%w: unsupported interval %q", model.ErrDataUnavailable, timeframe)
	}
	var out []model.Candle
	for from := startMS; max <= 0 || len(out) < max; {
		q := url.Values{}
		q.Set("symbol", NormalizeSymbol(symbol))
		q.Set("interval", timeframe)
		q.Set("startTime", strconv.FormatInt(from, 10))
		if endMS > 0 {
			q.Set("endTime", strconv.FormatInt(endMS, 10))
		}
		q.Set("limit", strconv.Itoa(maxKlineLimit))

		var rows []klineRow
		if err := c.do(ctx, http.MethodGet, "/api/v3/klines", q.Encode(), false, &rows); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrDataUnavailable, err)
		}
		for _, r := range rows {
			cd, err := r.candle()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", model.ErrDataUnavailable, err)
			}
			out = append(out, cd)
		}
		if len(rows) < maxKlineLimit {
			break
		}
		from = out[len(out)-1].TS + 1
	}
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no klines for %s %s", model.ErrDataUnavailable, symbol, timeframe)
	}
	return out, model.ValidateSeries(out)
}
