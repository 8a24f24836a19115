// Package binance implements the market-data, account and order ports
// against the Binance spot REST API.
//
// Prices and quantities travel as strings on the wire and are parsed with
// decimal.Decimal before being handed to the core as float64. Order
// quantities are rounded down to the configured lot step.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL = "https://api.binance.com"
	maxKlineLimit  = 1000
)

// ErrInvalidConfig is returned by New for unusable settings.
var ErrInvalidConfig = errors.New("invalid binance config")

// Config configures a Client.
type Config struct {
	BaseURL    string        `validate:"required,url"`
	APIKey     string        // required for account and order calls
	Secret     string        // required for account and order calls
	QtyStep    string        `validate:"omitempty,numeric"` // lot size step, e.g. "0.00001"
	RecvWindow time.Duration `validate:"omitempty,gt=0"`
	Timeout    time.Duration `validate:"omitempty,gt=0"`
}

// APIError is a non-2xx response body from Binance.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: http %d: code %d: %s", e.Status, e.Code, e.Msg)
}

// Client talks to one Binance REST endpoint.
type Client struct {
	cfg      Config
	step     decimal.Decimal
	http     *http.Client
	validate *validator.Validate
	now      func() time.Time
}

// New validates cfg and creates a client. Zero fields take defaults.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RecvWindow == 0 {
		cfg.RecvWindow = 5 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var step decimal.Decimal
	if cfg.QtyStep != "" {
		var err error
		if step, err = decimal.NewFromString(cfg.QtyStep); err != nil {
			return nil, fmt.Errorf("%w: qty step: %v", ErrInvalidConfig, err)
		}
	}

	return &Client{
		cfg:      cfg,
		step:     step,
		http:     &http.Client{Timeout: cfg.Timeout},
		validate: v,
		now:      time.Now,
	}, nil
}

// NormalizeSymbol converts "BTC/USDT", "btc-usdt" or "BTCUSDT" to "BTCUSDT".
func NormalizeSymbol(s string) string {
	r := strings.NewReplacer("/", "", "-", "", "_", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(s)))
}

var intervals = map[string]bool{
	"1s": true, "1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true, "1M": true,
}

// ValidInterval reports whether tf is a Binance kline interval.
func ValidInterval(tf string) bool { return intervals[tf] }

func (c *Client) sign(q url.Values) string {
	q.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	q.Set("recvWindow", strconv.FormatInt(c.cfg.RecvWindow.Milliseconds(), 10))
	payload := q.Encode()
	mac := hmac.New(sha256.New, []byte(c.cfg.Secret))
	mac.Write([]byte(payload))
	return payload + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) requireKeys() error {
	if c.cfg.APIKey == "" || c.cfg.Secret == "" {
		return fmt.Errorf("%w: api key and secret required", ErrInvalidConfig)
	}
	return nil
}

// do sends a request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, method, path, query string, signed bool, out any) error {
	u := c.cfg.BaseURL + path
	var body io.Reader
	if method == http.MethodGet && query != "" {
		u += "?" + query
	} else if query != "" {
		body = strings.NewReader(query)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("binance: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("binance: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("binance: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Msg == "" {
			apiErr.Msg = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("binance: decode %s: %w", path, err)
	}
	return nil
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: invalid %s %q: %w", field, s, err)
	}
	return d, nil
}
