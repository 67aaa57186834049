package log

import (
	"time"
)

// MaxLogLineSize is the maximum line length stored in a log event.
// Longer lines are truncated; WMP lines are short, so truncation only
// happens on garbage input.
const MaxLogLineSize = 1024

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the TCP session (UUID).
	// Empty for events not tied to a session (discovery).
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// GatewayID is the gateway identifier (MAC), when known.
	GatewayID string `cbor:"3,keyasint,omitempty"`

	// Direction indicates message flow.
	Direction Direction `cbor:"4,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"5,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"6,keyasint"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Line        *LineEvent        `cbor:"8,keyasint,omitempty"`  // Raw protocol line
	StateChange *StateChangeEvent `cbor:"9,keyasint,omitempty"`  // Connection/engine state
	Error       *ErrorEventData   `cbor:"10,keyasint,omitempty"` // Errors at any layer
	Discovery   *DiscoveryEvent   `cbor:"11,keyasint,omitempty"` // Discovery results
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming line or datagram.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing line or datagram.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the socket layer (raw lines, connect/close).
	LayerTransport Layer = 0
	// LayerWire is the message parsing layer.
	LayerWire Layer = 1
	// LayerEngine is the gateway engine layer (dispatch, pacing).
	LayerEngine Layer = 2
	// LayerDiscovery is the UDP discovery layer.
	LayerDiscovery Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerEngine:
		return "ENGINE"
	case LayerDiscovery:
		return "DISCOVERY"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryLine indicates a protocol line was sent or received.
	CategoryLine Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
	// CategoryDiscovery indicates a discovery result.
	CategoryDiscovery Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryLine:
		return "LINE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	case CategoryDiscovery:
		return "DISCOVERY"
	default:
		return "UNKNOWN"
	}
}

// LineEvent captures one protocol line at the transport layer.
type LineEvent struct {
	// Text is the line content without the CR/LF terminator.
	Text string `cbor:"1,keyasint"`

	// Size is the original line length in bytes.
	Size int `cbor:"2,keyasint"`

	// Truncated indicates Text was cut at MaxLogLineSize.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewLineEvent builds a LineEvent, truncating oversized lines.
func NewLineEvent(text string) *LineEvent {
	ev := &LineEvent{Text: text, Size: len(text)}
	if len(text) > MaxLogLineSize {
		ev.Text = text[:MaxLogLineSize]
		ev.Truncated = true
	}
	return ev
}

// Entity identifies what changed state in a StateChangeEvent.
type Entity uint8

const (
	// EntityConnection is the TCP session state machine.
	EntityConnection Entity = 0
	// EntityGateway is the gateway engine lifecycle.
	EntityGateway Entity = 1
	// EntityUnit is a unit's externally visible state.
	EntityUnit Entity = 2
)

// String returns the entity name.
func (e Entity) String() string {
	switch e {
	case EntityConnection:
		return "CONNECTION"
	case EntityGateway:
		return "GATEWAY"
	case EntityUnit:
		return "UNIT"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures a state transition.
type StateChangeEvent struct {
	// Entity that changed state.
	Entity Entity `cbor:"1,keyasint"`

	// OldState is the previous state name.
	OldState string `cbor:"2,keyasint"`

	// NewState is the new state name.
	NewState string `cbor:"3,keyasint"`

	// Reason describes why the transition happened (optional).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// ErrorEventData captures an error at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error text.
	Message string `cbor:"2,keyasint"`

	// Context describes what was being attempted.
	Context string `cbor:"3,keyasint,omitempty"`
}

// DiscoveryEvent captures one discovery reply.
type DiscoveryEvent struct {
	// Model is the reported device model.
	Model string `cbor:"1,keyasint"`

	// MAC is the reported hardware identifier.
	MAC string `cbor:"2,keyasint"`

	// IP is the reported network address.
	IP string `cbor:"3,keyasint"`

	// Name is the reported friendly name.
	Name string `cbor:"4,keyasint,omitempty"`

	// Accepted indicates the reply passed the model-family filter.
	Accepted bool `cbor:"5,keyasint"`
}
