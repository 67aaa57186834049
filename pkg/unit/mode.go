package unit

import "strings"

// Mode is the externally visible operating mode of a unit. ModeOff is
// not a wire mode: the gateway reports power (ONOFF) separately.
type Mode uint8

const (
	// ModeUnknown indicates no mode has been reported yet.
	ModeUnknown Mode = iota

	// ModeOff indicates the unit is powered off.
	ModeOff

	// ModeAuto lets the unit choose heating or cooling.
	ModeAuto

	// ModeHeat is heating.
	ModeHeat

	// ModeDry is dehumidification.
	ModeDry

	// ModeFan is fan-only circulation.
	ModeFan

	// ModeCool is cooling.
	ModeCool
)

// ParseMode maps a vendor mode token to a Mode.
func ParseMode(token string) Mode {
	switch strings.ToUpper(strings.TrimSpace(token)) {
	case "AUTO":
		return ModeAuto
	case "HEAT":
		return ModeHeat
	case "DRY":
		return ModeDry
	case "FAN":
		return ModeFan
	case "COOL":
		return ModeCool
	default:
		return ModeUnknown
	}
}

// String returns the mode name. Wire modes use their vendor token.
func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "OFF"
	case ModeAuto:
		return "AUTO"
	case ModeHeat:
		return "HEAT"
	case ModeDry:
		return "DRY"
	case ModeFan:
		return "FAN"
	case ModeCool:
		return "COOL"
	default:
		return "UNKNOWN"
	}
}

// IsWireMode reports whether the mode can be sent in a SET MODE command.
func (m Mode) IsWireMode() bool {
	switch m {
	case ModeAuto, ModeHeat, ModeDry, ModeFan, ModeCool:
		return true
	default:
		return false
	}
}
