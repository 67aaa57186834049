package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// recordingLogger captures events for assertions.
type recordingLogger struct {
	events []Event
}

func (r *recordingLogger) Log(event Event) {
	r.events = append(r.events, event)
}

func TestNoopLogger(t *testing.T) {
	// Must not panic, including as a zero value.
	var l NoopLogger
	l.Log(Event{Category: CategoryLine, Line: NewLineEvent("ID")})
}

func TestMultiLoggerFanOut(t *testing.T) {
	a := &recordingLogger{}
	b := &recordingLogger{}

	m := NewMultiLogger(a, b, NoopLogger{})
	m.Log(Event{Category: CategoryLine, Line: NewLineEvent("INFO")})
	m.Log(Event{Category: CategoryState})

	if len(a.events) != 2 || len(b.events) != 2 {
		t.Errorf("fan-out counts = %d/%d, want 2/2", len(a.events), len(b.events))
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	adapter := NewSlogAdapter(slog.New(handler))

	adapter.Log(Event{
		ConnectionID: "c1",
		GatewayID:    "CC3F1D0163D5",
		Direction:    DirectionIn,
		Layer:        LayerTransport,
		Category:     CategoryLine,
		Line:         NewLineEvent("CHN,1:SETPTEMP,220"),
	})

	out := buf.String()
	for _, want := range []string{"CHN,1:SETPTEMP,220", "CC3F1D0163D5", "direction=IN", "layer=TRANSPORT"} {
		if !strings.Contains(out, want) {
			t.Errorf("slog output missing %q: %s", want, out)
		}
	}
}
