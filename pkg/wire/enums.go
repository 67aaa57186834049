package wire

// Protocol network constants.
const (
	// DefaultPort is the TCP port gateways listen on.
	DefaultPort = 3310

	// ProxyPort is the local relay-proxy port.
	ProxyPort = 2504

	// DiscoveryPort is the UDP port for broadcast discovery.
	DiscoveryPort = 3310

	// DiscoverProbe is the literal datagram payload for broadcast discovery.
	DiscoverProbe = "DISCOVER"

	// ProtocolTag is the protocol identifier gateways report in ID and
	// DISCOVER replies. Replies with any other tag are incompatible.
	ProtocolTag = "ASCII"
)

// MessageType identifies a protocol message.
// Unrecognized wire tokens map to TypeUnknown; there is no open-ended
// dispatch table.
type MessageType uint8

const (
	// TypeUnknown is any unrecognized message token.
	TypeUnknown MessageType = iota

	// TypeID is the gateway identity report.
	TypeID

	// TypeInfo is the gateway configuration report.
	TypeInfo

	// TypeCHN is an asynchronous state-change notification.
	TypeCHN

	// TypeLimits reports legal values or a numeric range for a function.
	TypeLimits

	// TypeACK acknowledges a command.
	TypeACK

	// TypeERR reports a rejected command.
	TypeERR

	// TypePong answers a PING, carrying the gateway RSSI.
	TypePong

	// TypeClose announces that the gateway is closing the session.
	TypeClose

	// TypeDiscover is a UDP discovery reply (never seen on TCP).
	TypeDiscover
)

// messageTypeTokens maps wire tokens to message types.
var messageTypeTokens = map[string]MessageType{
	"ID":       TypeID,
	"INFO":     TypeInfo,
	"CHN":      TypeCHN,
	"LIMITS":   TypeLimits,
	"ACK":      TypeACK,
	"ERR":      TypeERR,
	"PONG":     TypePong,
	"CLOSE":    TypeClose,
	"DISCOVER": TypeDiscover,
}

// ParseMessageType maps a wire token to a MessageType.
func ParseMessageType(token string) MessageType {
	if t, ok := messageTypeTokens[token]; ok {
		return t
	}
	return TypeUnknown
}

// String returns the wire token for the message type.
func (t MessageType) String() string {
	switch t {
	case TypeID:
		return "ID"
	case TypeInfo:
		return "INFO"
	case TypeCHN:
		return "CHN"
	case TypeLimits:
		return "LIMITS"
	case TypeACK:
		return "ACK"
	case TypeERR:
		return "ERR"
	case TypePong:
		return "PONG"
	case TypeClose:
		return "CLOSE"
	case TypeDiscover:
		return "DISCOVER"
	default:
		return "UNKNOWN"
	}
}

// Function identifies a controllable or reported capability of a unit.
type Function uint8

const (
	// FuncUnknown is any unrecognized function token.
	FuncUnknown Function = iota

	// FuncOnOff is unit power ("ON"/"OFF").
	FuncOnOff

	// FuncMode is the operating mode (AUTO/HEAT/DRY/FAN/COOL).
	FuncMode

	// FuncSetpoint is the setpoint temperature in tenths of a degree C.
	FuncSetpoint

	// FuncFanSpeed is the fan speed (AUTO or a small integer).
	FuncFanSpeed

	// FuncVaneUD is the vertical vane position.
	FuncVaneUD

	// FuncVaneLR is the horizontal vane position.
	FuncVaneLR

	// FuncAmbient is the ambient temperature in tenths of a degree C.
	FuncAmbient

	// FuncErrStatus is the unit error status flag.
	FuncErrStatus

	// FuncErrCode is a vendor error code.
	FuncErrCode
)

// functionTokens maps wire tokens to functions.
var functionTokens = map[string]Function{
	"ONOFF":     FuncOnOff,
	"MODE":      FuncMode,
	"SETPTEMP":  FuncSetpoint,
	"FANSP":     FuncFanSpeed,
	"VANEUD":    FuncVaneUD,
	"VANELR":    FuncVaneLR,
	"AMBTEMP":   FuncAmbient,
	"ERRSTATUS": FuncErrStatus,
	"ERRCODE":   FuncErrCode,
}

// ParseFunction maps a wire token to a Function.
// Matching is case-insensitive as some firmware revisions report
// lowercase tokens.
func ParseFunction(token string) Function {
	if f, ok := functionTokens[upper(token)]; ok {
		return f
	}
	return FuncUnknown
}

// String returns the wire token for the function.
func (f Function) String() string {
	switch f {
	case FuncOnOff:
		return "ONOFF"
	case FuncMode:
		return "MODE"
	case FuncSetpoint:
		return "SETPTEMP"
	case FuncFanSpeed:
		return "FANSP"
	case FuncVaneUD:
		return "VANEUD"
	case FuncVaneLR:
		return "VANELR"
	case FuncAmbient:
		return "AMBTEMP"
	case FuncErrStatus:
		return "ERRSTATUS"
	case FuncErrCode:
		return "ERRCODE"
	default:
		return "UNKNOWN"
	}
}

// upper is an ASCII-only uppercase conversion. Protocol tokens are
// plain ASCII; this avoids locale surprises from strings.ToUpper.
func upper(s string) string {
	b := []byte(s)
	changed := false
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
			changed = true
		}
	}
	if !changed {
		return s
	}
	return string(b)
}
