// Package redis publishes trading events to Redis pub/sub and a capped
// stream so dashboards and other processes can follow a running trader.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"

	"kdjtrader/internal/events"
)

const (
	defaultStreamMaxLen = 10000
	defaultMaxBuffered  = 1000
)

// Config configures the publisher.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	StreamMaxLen int64 // approximate XADD MAXLEN
	MaxBuffered  int   // events kept while the breaker is open
}

// ChannelFor returns the pub/sub channel for symbol.
func ChannelFor(symbol string) string { return "kdj:events:" + symbol }

// StreamFor returns the stream key for symbol.
func StreamFor(symbol string) string { return "kdj:stream:" + symbol }

type pending struct {
	symbol string
	data   []byte
}

// Publisher implements events.Sink. While Redis is unreachable events are
// buffered in memory (oldest dropped first) and replayed after the next
// successful write.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker
	maxLen int64
	maxBuf int

	// send performs the actual write; replaced in tests.
	send func(ctx context.Context, symbol string, data []byte) error

	mu     sync.Mutex
	buffer []pending

	// OnBuffer is called when an event is buffered (for metrics).
	OnBuffer func()
	// OnStateChange is called with the breaker's new state.
	OnStateChange func(to State)
}

// NewPublisher connects to Redis and pings it.
func NewPublisher(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("[redis] connected", "addr", cfg.Addr)
	p := newPublisher(cfg, NewCircuitBreaker(5, 10*time.Second))
	p.client = client
	p.send = p.write
	return p, nil
}

func newPublisher(cfg Config, cb *CircuitBreaker) *Publisher {
	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = defaultStreamMaxLen
	}
	if cfg.MaxBuffered <= 0 {
		cfg.MaxBuffered = defaultMaxBuffered
	}
	p := &Publisher{
		cb:     cb,
		maxLen: cfg.StreamMaxLen,
		maxBuf: cfg.MaxBuffered,
		buffer: make([]pending, 0, 64),
	}
	cb.OnStateChange = func(from, to State) {
		slog.Warn("[redis] circuit breaker", "from", from.String(), "to", to.String())
		if p.OnStateChange != nil {
			p.OnStateChange(to)
		}
	}
	return p
}

func (p *Publisher) write(ctx context.Context, symbol string, data []byte) error {
	_, err := p.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Publish(ctx, ChannelFor(symbol), data)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: StreamFor(symbol),
			MaxLen: p.maxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		return nil
	})
	return err
}

// Emit publishes e. A write rejected because the breaker is open is
// buffered and not reported as an error.
func (p *Publisher) Emit(ctx context.Context, e events.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", e.Kind, err)
	}

	err = p.cb.Execute(func() error { return p.send(ctx, e.Symbol, data) })
	switch {
	case err == nil:
		p.flush(ctx)
		return nil
	case errors.Is(err, ErrCircuitOpen):
		p.bufferEvent(e.Symbol, data)
		return nil
	default:
		p.bufferEvent(e.Symbol, data)
		return fmt.Errorf("redis: publish %s: %w", e.Kind, err)
	}
}

func (p *Publisher) bufferEvent(symbol string, data []byte) {
	p.mu.Lock()
	if len(p.buffer) >= p.maxBuf {
		p.buffer = p.buffer[1:]
	}
	p.buffer = append(p.buffer, pending{symbol: symbol, data: data})
	p.mu.Unlock()

	if p.OnBuffer != nil {
		p.OnBuffer()
	}
}

// flush replays buffered events in order, stopping at the first failure.
func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	toFlush := p.buffer
	p.buffer = make([]pending, 0, 64)
	p.mu.Unlock()
	if len(toFlush) == 0 {
		return
	}

	for i, pw := range toFlush {
		if err := p.cb.Execute(func() error { return p.send(ctx, pw.symbol, pw.data) }); err != nil {
			p.mu.Lock()
			p.buffer = append(toFlush[i:], p.buffer...)
			p.mu.Unlock()
			slog.Warn("[redis] flush interrupted", "flushed", i, "remaining", len(toFlush)-i, "error", err)
			return
		}
	}
	slog.Info("[redis] flushed buffered events", "count", len(toFlush))
}

// Pending returns the number of buffered events.
func (p *Publisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Healthy reports whether the breaker is closed.
func (p *Publisher) Healthy() bool { return p.cb.CurrentState() == StateClosed }

// Close closes the Redis client.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
