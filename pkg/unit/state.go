package unit

import (
	"math"
	"strings"

	"github.com/wmp-protocol/wmp-go/pkg/wire"
)

// Temperature envelope, in tenths of a degree Celsius. The gateway
// reports 32768 when a unit has no sensor data; anything outside the
// envelope is equally meaningless and is ignored rather than applied.
const (
	// SentinelTenths is the "no data" temperature marker.
	SentinelTenths = 32768

	// AmbientMinTenths / AmbientMaxTenths bound plausible room readings.
	AmbientMinTenths = -600
	AmbientMaxTenths = 800

	// SetpointMinTenths / SetpointMaxTenths bound plausible setpoints.
	SetpointMinTenths = 0
	SetpointMaxTenths = 800
)

// ErrCodeRingCap bounds the retained error-code history.
const ErrCodeRingCap = 10

// Vane roll tokens: stepping past the end of a vane axis transitions to
// sweep (or auto) when the device advertises it.
const (
	SweepToken = "SWING"
	AutoToken  = "AUTO"
)

// Fallback orderings for relative stepping when the gateway has not
// advertised limits for the function.
var (
	DefaultFanSpeeds     = []string{"AUTO", "1", "2", "3", "4"}
	DefaultVanePositions = []string{"AUTO", "1", "2", "3", "4", "5", "6", "7", "8", "9", "SWING"}
)

// State is the derived state of one unit, built entirely from inbound
// protocol messages. It is mutated only by the gateway dispatcher.
type State struct {
	// ID is the unit number, unique within its gateway.
	ID int

	// Power is the ONOFF flag.
	Power bool

	// Mode is the externally visible mode: ModeOff while powered off,
	// otherwise the operating mode.
	Mode Mode

	// LastMode is the last real mode reported on the wire, preserved
	// across power-off so switching back on can restore it.
	LastMode Mode

	// FanSpeed is the reported fan speed token ("AUTO" or "1".."4").
	FanSpeed string

	// VaneUD and VaneLR are the reported vane position tokens.
	VaneUD string
	VaneLR string

	// AmbientTenths is the room temperature; valid when HasAmbient.
	AmbientTenths int
	HasAmbient    bool

	// SetpointTenths is the target temperature; valid when HasSetpoint.
	SetpointTenths int
	HasSetpoint    bool

	// ErrStatus is the last reported error status, verbatim.
	ErrStatus string

	// ErrCodes is the ring of the last ErrCodeRingCap error codes,
	// oldest first.
	ErrCodes []string

	// Limits holds the advertised constraints per function.
	Limits map[wire.Function]Limits
}

// NewState creates an empty unit state.
func NewState(id int) *State {
	return &State{
		ID:     id,
		Limits: make(map[wire.Function]Limits),
	}
}

// Clone returns a deep copy for external readers.
func (s *State) Clone() State {
	out := *s
	out.ErrCodes = append([]string(nil), s.ErrCodes...)
	out.Limits = make(map[wire.Function]Limits, len(s.Limits))
	for fn, l := range s.Limits {
		l.Values = append([]string(nil), l.Values...)
		out.Limits[fn] = l
	}
	return out
}

// ApplyOnOff applies an ONOFF notification. OFF forces the visible mode
// to ModeOff without losing LastMode; ON restores LastMode.
func (s *State) ApplyOnOff(value string) bool {
	on := strings.EqualFold(strings.TrimSpace(value), "ON")
	changed := s.Power != on
	s.Power = on
	if on {
		if s.Mode != s.LastMode {
			s.Mode = s.LastMode
			changed = true
		}
	} else if s.Mode != ModeOff {
		s.Mode = ModeOff
		changed = true
	}
	return changed
}

// ApplyMode applies a MODE notification. LastMode updates
// unconditionally; the visible mode only follows while the unit is on,
// because ONOFF/MODE ordering on the wire is not guaranteed.
func (s *State) ApplyMode(token string) bool {
	m := ParseMode(token)
	if m == ModeUnknown {
		return false
	}
	changed := s.LastMode != m
	s.LastMode = m
	if s.Power && s.Mode != m {
		s.Mode = m
		changed = true
	}
	return changed
}

// ApplySetpointTenths applies a SETPTEMP report. Sentinel and
// out-of-envelope values are ignored.
func (s *State) ApplySetpointTenths(v int) bool {
	if v == SentinelTenths || v < SetpointMinTenths || v > SetpointMaxTenths {
		return false
	}
	changed := !s.HasSetpoint || s.SetpointTenths != v
	s.SetpointTenths = v
	s.HasSetpoint = true
	return changed
}

// ApplyAmbientTenths applies an AMBTEMP report. Sentinel and
// out-of-envelope values are ignored.
func (s *State) ApplyAmbientTenths(v int) bool {
	if v == SentinelTenths || v < AmbientMinTenths || v > AmbientMaxTenths {
		return false
	}
	changed := !s.HasAmbient || s.AmbientTenths != v
	s.AmbientTenths = v
	s.HasAmbient = true
	return changed
}

// ApplyFanSpeed applies a FANSP report.
func (s *State) ApplyFanSpeed(v string) bool {
	v = strings.ToUpper(strings.TrimSpace(v))
	changed := s.FanSpeed != v
	s.FanSpeed = v
	return changed
}

// ApplyVane applies a VANEUD or VANELR report.
func (s *State) ApplyVane(fn wire.Function, v string) bool {
	v = strings.ToUpper(strings.TrimSpace(v))
	switch fn {
	case wire.FuncVaneUD:
		changed := s.VaneUD != v
		s.VaneUD = v
		return changed
	case wire.FuncVaneLR:
		changed := s.VaneLR != v
		s.VaneLR = v
		return changed
	default:
		return false
	}
}

// ApplyErrStatus stores an ERRSTATUS report verbatim.
func (s *State) ApplyErrStatus(v string) bool {
	changed := s.ErrStatus != v
	s.ErrStatus = v
	return changed
}

// ApplyErrCode appends an ERRCODE report to the bounded ring, dropping
// the oldest entry past the cap.
func (s *State) ApplyErrCode(v string) {
	s.ErrCodes = append(s.ErrCodes, v)
	if len(s.ErrCodes) > ErrCodeRingCap {
		s.ErrCodes = s.ErrCodes[len(s.ErrCodes)-ErrCodeRingCap:]
	}
}

// SetLimits records the advertised limits for a function.
func (s *State) SetLimits(fn wire.Function, l Limits) {
	s.Limits[fn] = l
}

// LimitsFor returns the advertised limits for a function, or an
// unconstrained Limits when none were reported.
func (s *State) LimitsFor(fn wire.Function) Limits {
	return s.Limits[fn]
}

// CheckValue validates an outgoing command value against the advertised
// limits. A missing advertisement allows anything.
func (s *State) CheckValue(fn wire.Function, value string) error {
	return s.Limits[fn].Check(fn.String(), value)
}

// SupportsMode reports whether the gateway advertised the mode as
// selectable. With no MODE limits every wire mode is allowed.
func (s *State) SupportsMode(m Mode) bool {
	if !m.IsWireMode() {
		return false
	}
	return s.Limits[wire.FuncMode].Allows(m.String())
}

// stepLimits returns the limits used for relative stepping: advertised
// when present, otherwise the fallback ordering.
func (s *State) stepLimits(fn wire.Function, fallback []string) Limits {
	if l, ok := s.Limits[fn]; ok && !l.Unconstrained() {
		return l
	}
	return NewLimits(fallback)
}

// NextFanSpeed computes the fan speed one step up or down from the last
// known value, in advertised order.
func (s *State) NextFanSpeed(up bool) (string, error) {
	return s.stepLimits(wire.FuncFanSpeed, DefaultFanSpeeds).next(s.FanSpeed, up)
}

// NextVane computes the vane position one step along an axis from the
// last known value. Stepping past the far end transitions to the sweep
// (or auto) position when the device supports one.
func (s *State) NextVane(fn wire.Function, forward bool) (string, error) {
	var current string
	switch fn {
	case wire.FuncVaneUD:
		current = s.VaneUD
	case wire.FuncVaneLR:
		current = s.VaneLR
	default:
		return "", ErrNotAllowed
	}
	return s.stepLimits(fn, DefaultVanePositions).next(current, forward, SweepToken, AutoToken)
}

// ToCelsius converts tenths of a degree to degrees Celsius.
func ToCelsius(tenths int) float64 {
	return float64(tenths) / 10
}

// ToFahrenheit converts tenths of a degree Celsius to degrees Fahrenheit.
func ToFahrenheit(tenths int) float64 {
	return ToCelsius(tenths)*9/5 + 32
}

// CelsiusToTenths converts degrees Celsius to wire tenths, rounding to
// the nearest tenth.
func CelsiusToTenths(c float64) int {
	return int(math.Round(c * 10))
}
