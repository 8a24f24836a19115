package events

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestLogSink_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	e := New(KindOrderFailed, "BTC/USDT", "buy rejected", map[string]any{"qty": 0.5})
	if err := NewLogSink(logger).Emit(context.Background(), e); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{`"level":"ERROR"`, `"kind":"order_failed"`, `"symbol":"BTC/USDT"`, `"qty":0.5`, `"msg":"buy rejected"`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}
}

func TestMulti_JoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	var rec Recorder
	m := Multi{&rec, SinkFunc(func(context.Context, Event) error { return boom }), Discard}

	err := m.Emit(context.Background(), New(KindSignal, "X", "", nil))
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error, got %v", err)
	}
	if len(rec.Events) != 1 {
		t.Errorf("recorder must still receive the event")
	}
}

func TestOnly_Filters(t *testing.T) {
	var rec Recorder
	s := Only(&rec, KindTradeClosed)
	ctx := context.Background()
	s.Emit(ctx, New(KindSignal, "X", "", nil))
	s.Emit(ctx, New(KindTradeClosed, "X", "", nil))

	if rec.Count(KindTradeClosed) != 1 || len(rec.Events) != 1 {
		t.Errorf("recorded: %+v", rec.Events)
	}
}

func TestNew_UniqueIDs(t *testing.T) {
	a := New(KindWarmup, "X", "", nil)
	b := New(KindWarmup, "X", "", nil)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids: %q %q", a.ID, b.ID)
	}
}
