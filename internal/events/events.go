// Package events carries structured notifications out of the core. The
// simulator and live loop never log or notify directly; they emit Events to
// an injected Sink and the binaries decide where those go.
package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an event.
type Kind string

const (
	KindSignal          Kind = "signal"
	KindTradeOpened     Kind = "trade_opened"
	KindTradeClosed     Kind = "trade_closed"
	KindStopLoss        Kind = "stop_loss"
	KindOrderFailed     Kind = "order_failed"
	KindBalanceSkipped  Kind = "balance_skipped"
	KindDataUnavailable Kind = "data_unavailable"
	KindWarmup          Kind = "warmup"
	KindBacktestDone    Kind = "backtest_done"
)

// Level returns the log severity for k.
func (k Kind) Level() slog.Level {
	switch k {
	case KindOrderFailed:
		return slog.LevelError
	case KindDataUnavailable, KindBalanceSkipped, KindStopLoss:
		return slog.LevelWarn
	case KindSignal:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Event is one structured occurrence.
type Event struct {
	ID      string         `json:"id"`
	Kind    Kind           `json:"kind"`
	Symbol  string         `json:"symbol"`
	Time    time.Time      `json:"time"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// New creates an event stamped with a fresh id and the current time.
func New(kind Kind, symbol, message string, fields map[string]any) Event {
	return Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		Symbol:  symbol,
		Time:    time.Now().UTC(),
		Message: message,
		Fields:  fields,
	}
}

// Sink receives events. Implementations must be safe for sequential use;
// the core never emits concurrently.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Emit(ctx context.Context, e Event) error { return f(ctx, e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// LogSink writes events through slog at the kind's level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log-backed sink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, e Event) error {
	attrs := make([]any, 0, 2*len(e.Fields)+6)
	attrs = append(attrs, "event_id", e.ID, "kind", string(e.Kind), "symbol", e.Symbol)
	for k, v := range e.Fields {
		attrs = append(attrs, k, v)
	}
	s.logger.Log(ctx, e.Kind.Level(), e.Message, attrs...)
	return nil
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Only forwards events whose kind is listed.
func Only(sink Sink, kinds ...Kind) Sink {
	allowed := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	return SinkFunc(func(ctx context.Context, e Event) error {
		if !allowed[e.Kind] {
			return nil
		}
		return sink.Emit(ctx, e)
	})
}

// Recorder keeps every event in memory. Used by tests and the backtest summary.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) error {
	r.Events = append(r.Events, e)
	return nil
}

// Count returns how many recorded events have kind k.
func (r *Recorder) Count(k Kind) int {
	n := 0
	for _, e := range r.Events {
		if e.Kind == k {
			n++
		}
	}
	return n
}
