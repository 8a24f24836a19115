// Package metrics exposes Prometheus metrics and a /healthz endpoint for
// the live trader.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trader.
type Metrics struct {
	Registry *prometheus.Registry

	CyclesTotal     prometheus.Counter
	CycleDur        prometheus.Histogram
	DataErrorsTotal prometheus.Counter

	SignalsTotal *prometheus.CounterVec // labels: action
	OrdersTotal  *prometheus.CounterVec // labels: side, outcome
	TradesTotal  *prometheus.CounterVec // labels: reason
	SkippedBuys  prometheus.Counter

	PositionOpen prometheus.Gauge // 0=flat, 1=long
	LastClose    prometheus.Gauge
	Balance      prometheus.Gauge
	RealizedPnL  prometheus.Gauge

	// Event publisher
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisBufferedEvents      prometheus.Counter
}

// New creates the metrics on a private registry that also carries the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,

		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kdjtrader_cycles_total",
			Help: "Decision cycles run",
		}),
		CycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kdjtrader_cycle_duration_seconds",
			Help:    "Wall time of one decision cycle including exchange calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		DataErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kdjtrader_data_errors_total",
			Help: "Cycles skipped because market data was unavailable",
		}),

		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kdjtrader_signals_total",
			Help: "Fused decisions by action",
		}, []string{"action"}),
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kdjtrader_orders_total",
			Help: "Market orders by side and outcome",
		}, []string{"side", "outcome"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kdjtrader_trades_total",
			Help: "Closed trades by exit reason",
		}, []string{"reason"}),
		SkippedBuys: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kdjtrader_skipped_buys_total",
			Help: "BUY decisions skipped for lack of balance",
		}),

		PositionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kdjtrader_position_open",
			Help: "1 while a long position is held",
		}),
		LastClose: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kdjtrader_last_close",
			Help: "Close of the newest candle seen",
		}),
		Balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kdjtrader_available_balance",
			Help: "Quote balance at the last BUY evaluation",
		}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kdjtrader_realized_pnl",
			Help: "Sum of closed-trade profit since start",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kdjtrader_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisBufferedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kdjtrader_redis_buffered_events_total",
			Help: "Events buffered locally while the Redis breaker was open",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CyclesTotal,
		m.CycleDur,
		m.DataErrorsTotal,
		m.SignalsTotal,
		m.OrdersTotal,
		m.TradesTotal,
		m.SkippedBuys,
		m.PositionOpen,
		m.LastClose,
		m.Balance,
		m.RealizedPnL,
		m.RedisCircuitBreakerState,
		m.RedisBufferedEvents,
	)
	return m
}

// HealthStatus represents the trader's health.
type HealthStatus struct {
	mu sync.RWMutex

	LastCycleAt  time.Time
	LastCycleOK  bool
	LastError    string
	Position     string
	RedisOK      bool
	RedisEnabled bool
	StartedAt    time.Time

	// StaleAfter marks the trader unhealthy when no cycle completed for
	// this long (typically a few loop intervals).
	StaleAfter time.Duration
	now        func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(staleAfter time.Duration) *HealthStatus {
	return &HealthStatus{
		StartedAt:  time.Now(),
		Position:   "FLAT",
		StaleAfter: staleAfter,
		now:        time.Now,
	}
}

// RecordCycle notes the outcome of a decision cycle.
func (h *HealthStatus) RecordCycle(err error, position string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LastCycleAt = h.now()
	h.LastCycleOK = err == nil
	h.LastError = ""
	if err != nil {
		h.LastError = err.Error()
	}
	h.Position = position
}

// SetRedis records publisher health. enabled=false means not configured.
func (h *HealthStatus) SetRedis(enabled, ok bool) {
	h.mu.Lock()
	h.RedisEnabled, h.RedisOK = enabled, ok
	h.mu.Unlock()
}

type healthBody struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	LastCycleAt string `json:"last_cycle_at,omitempty"`
	LastCycleOK bool   `json:"last_cycle_ok"`
	LastError   string `json:"last_error,omitempty"`
	Position    string `json:"position"`
	RedisOK     *bool  `json:"redis_ok,omitempty"`
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	status, code := "healthy", http.StatusOK
	switch {
	case h.LastCycleAt.IsZero():
		status = "starting"
	case h.StaleAfter > 0 && now.Sub(h.LastCycleAt) > h.StaleAfter:
		status, code = "unhealthy", http.StatusServiceUnavailable
	case !h.LastCycleOK || (h.RedisEnabled && !h.RedisOK):
		status = "degraded"
	}

	body := healthBody{
		Status:      status,
		Uptime:      now.Sub(h.StartedAt).Round(time.Second).String(),
		LastCycleOK: h.LastCycleOK,
		LastError:   h.LastError,
		Position:    h.Position,
	}
	if !h.LastCycleAt.IsZero() {
		body.LastCycleAt = h.LastCycleAt.UTC().Format(time.RFC3339)
	}
	if h.RedisEnabled {
		ok := h.RedisOK
		body.RedisOK = &ok
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, m *Metrics, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the mux, for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("[metrics] server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("[metrics] server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
