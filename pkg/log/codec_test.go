package log

import (
	"testing"
	"time"
)

func TestEncodeDecodeEvent(t *testing.T) {
	tests := []struct {
		name  string
		event Event
	}{
		{
			name: "line event",
			event: Event{
				Timestamp:    time.Now().UTC(),
				ConnectionID: "conn-1",
				GatewayID:    "CC3F1D0163D5",
				Direction:    DirectionIn,
				Layer:        LayerTransport,
				Category:     CategoryLine,
				RemoteAddr:   "192.168.1.50:3310",
				Line:         NewLineEvent("CHN,1:MODE,COOL"),
			},
		},
		{
			name: "state change",
			event: Event{
				Timestamp: time.Now().UTC(),
				Direction: DirectionOut,
				Layer:     LayerEngine,
				Category:  CategoryState,
				StateChange: &StateChangeEvent{
					Entity:   EntityConnection,
					OldState: "CONNECTED",
					NewState: "DISCONNECTED",
					Reason:   "watchdog",
				},
			},
		},
		{
			name: "error event",
			event: Event{
				Timestamp: time.Now().UTC(),
				Direction: DirectionIn,
				Layer:     LayerWire,
				Category:  CategoryError,
				Error: &ErrorEventData{
					Layer:   LayerWire,
					Message: "malformed line",
					Context: "dispatch",
				},
			},
		},
		{
			name: "discovery event",
			event: Event{
				Timestamp: time.Now().UTC(),
				Direction: DirectionIn,
				Layer:     LayerDiscovery,
				Category:  CategoryDiscovery,
				Discovery: &DiscoveryEvent{
					Model:    "MH-AC-WMP-1",
					MAC:      "CC3F1D0163D5",
					IP:       "192.168.1.50",
					Name:     "Living room",
					Accepted: true,
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeEvent(tt.event)
			if err != nil {
				t.Fatalf("EncodeEvent failed: %v", err)
			}

			got, err := DecodeEvent(data)
			if err != nil {
				t.Fatalf("DecodeEvent failed: %v", err)
			}

			if got.ConnectionID != tt.event.ConnectionID {
				t.Errorf("ConnectionID = %q, want %q", got.ConnectionID, tt.event.ConnectionID)
			}
			if got.Direction != tt.event.Direction {
				t.Errorf("Direction = %v, want %v", got.Direction, tt.event.Direction)
			}
			if got.Category != tt.event.Category {
				t.Errorf("Category = %v, want %v", got.Category, tt.event.Category)
			}
			if tt.event.Line != nil {
				if got.Line == nil || got.Line.Text != tt.event.Line.Text {
					t.Errorf("Line = %+v, want %+v", got.Line, tt.event.Line)
				}
			}
			if tt.event.StateChange != nil {
				if got.StateChange == nil || got.StateChange.NewState != tt.event.StateChange.NewState {
					t.Errorf("StateChange = %+v, want %+v", got.StateChange, tt.event.StateChange)
				}
			}
			if tt.event.Discovery != nil {
				if got.Discovery == nil || got.Discovery.MAC != tt.event.Discovery.MAC {
					t.Errorf("Discovery = %+v, want %+v", got.Discovery, tt.event.Discovery)
				}
			}
		})
	}
}

func TestNewLineEventTruncation(t *testing.T) {
	long := make([]byte, MaxLogLineSize+100)
	for i := range long {
		long[i] = 'A'
	}

	ev := NewLineEvent(string(long))
	if !ev.Truncated {
		t.Error("expected Truncated to be set")
	}
	if len(ev.Text) != MaxLogLineSize {
		t.Errorf("Text length = %d, want %d", len(ev.Text), MaxLogLineSize)
	}
	if ev.Size != len(long) {
		t.Errorf("Size = %d, want %d", ev.Size, len(long))
	}
}
