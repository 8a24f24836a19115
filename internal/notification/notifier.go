// Package notification delivers trade alerts to external channels
// (Telegram, webhooks, the log).
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"kdjtrader/internal/events"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the log (useful for development).
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.logger.InfoContext(ctx, "[notify] "+alert.Title, "level", string(alert.Level), "message", alert.Message)
	return nil
}

// DefaultKinds are the events worth paging a human about.
var DefaultKinds = []events.Kind{
	events.KindTradeOpened,
	events.KindTradeClosed,
	events.KindStopLoss,
	events.KindOrderFailed,
}

// EventSink turns events into alerts for a Notifier.
type EventSink struct {
	notifier Notifier
	kinds    map[events.Kind]bool
}

// NewEventSink forwards the listed kinds (DefaultKinds when none) to n.
func NewEventSink(n Notifier, kinds ...events.Kind) *EventSink {
	if len(kinds) == 0 {
		kinds = DefaultKinds
	}
	m := make(map[events.Kind]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return &EventSink{notifier: n, kinds: m}
}

func (s *EventSink) Emit(ctx context.Context, e events.Event) error {
	if !s.kinds[e.Kind] {
		return nil
	}
	return s.notifier.Send(ctx, AlertFromEvent(e))
}

// AlertFromEvent renders an event as a human-readable alert.
func AlertFromEvent(e events.Event) Alert {
	level := AlertInfo
	switch e.Kind.Level() {
	case slog.LevelError:
		level = AlertCritical
	case slog.LevelWarn:
		level = AlertWarning
	}

	var b strings.Builder
	b.WriteString(e.Message)
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %v", k, e.Fields[k])
	}

	return Alert{
		Level:   level,
		Title:   fmt.Sprintf("%s %s", e.Symbol, strings.ReplaceAll(string(e.Kind), "_", " ")),
		Message: b.String(),
	}
}
