package gateway

import (
	"fmt"
	"strconv"

	"github.com/wmp-protocol/wmp-go/pkg/unit"
	"github.com/wmp-protocol/wmp-go/pkg/wire"
)

// SetPower switches a unit on or off.
func (g *Gateway) SetPower(unitNo int, on bool) error {
	value := "OFF"
	if on {
		value = "ON"
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.commandUnitLocked(unitNo); err != nil {
		return err
	}
	return g.submitLocked(wire.FormatSet(unitNo, wire.FuncOnOff, value))
}

// SetMode selects a unit's operating mode. The mode must be a wire mode
// the gateway advertised as selectable.
func (g *Gateway) SetMode(unitNo int, m unit.Mode) error {
	if !m.IsWireMode() {
		return fmt.Errorf("%w: mode %s not settable", unit.ErrNotAllowed, m)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.commandUnitLocked(unitNo)
	if err != nil {
		return err
	}
	if !s.SupportsMode(m) {
		return fmt.Errorf("%w: mode %s not advertised", unit.ErrNotAllowed, m)
	}
	return g.submitLocked(wire.FormatSet(unitNo, wire.FuncMode, m.String()))
}

// SetSetpoint sets the target temperature in tenths of a degree C. The
// gateway echoes setpoint changes unreliably, so a follow-up read rides
// behind the write.
func (g *Gateway) SetSetpoint(unitNo, tenths int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.commandUnitLocked(unitNo)
	if err != nil {
		return err
	}
	if tenths < unit.SetpointMinTenths || tenths > unit.SetpointMaxTenths {
		return fmt.Errorf("%w: setpoint %d out of range", unit.ErrNotAllowed, tenths)
	}
	value := strconv.Itoa(tenths)
	if err := s.CheckValue(wire.FuncSetpoint, value); err != nil {
		return err
	}
	return g.submitLocked(
		wire.FormatSet(unitNo, wire.FuncSetpoint, value),
		wire.FormatGet(unitNo, wire.FuncSetpoint),
	)
}

// SetFanSpeed sets the fan speed to an advertised value.
func (g *Gateway) SetFanSpeed(unitNo int, speed string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.commandUnitLocked(unitNo)
	if err != nil {
		return err
	}
	if err := s.CheckValue(wire.FuncFanSpeed, speed); err != nil {
		return err
	}
	return g.submitLocked(wire.FormatSet(unitNo, wire.FuncFanSpeed, speed))
}

// FanSpeedUp steps the fan one speed up in advertised order.
func (g *Gateway) FanSpeedUp(unitNo int) error {
	return g.stepFanSpeed(unitNo, true)
}

// FanSpeedDown steps the fan one speed down in advertised order.
func (g *Gateway) FanSpeedDown(unitNo int) error {
	return g.stepFanSpeed(unitNo, false)
}

func (g *Gateway) stepFanSpeed(unitNo int, up bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.commandUnitLocked(unitNo)
	if err != nil {
		return err
	}
	speed, err := s.NextFanSpeed(up)
	if err != nil {
		return err
	}
	return g.submitLocked(wire.FormatSet(unitNo, wire.FuncFanSpeed, speed))
}

// SetVane sets a vane axis to an advertised position.
func (g *Gateway) SetVane(unitNo int, axis wire.Function, position string) error {
	if axis != wire.FuncVaneUD && axis != wire.FuncVaneLR {
		return fmt.Errorf("%w: %s is not a vane axis", unit.ErrNotAllowed, axis)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.commandUnitLocked(unitNo)
	if err != nil {
		return err
	}
	if err := s.CheckValue(axis, position); err != nil {
		return err
	}
	return g.submitLocked(wire.FormatSet(unitNo, axis, position))
}

// VaneUp tilts the vertical vane one position up.
func (g *Gateway) VaneUp(unitNo int) error {
	return g.stepVane(unitNo, wire.FuncVaneUD, false)
}

// VaneDown tilts the vertical vane one position down, rolling to swing
// past the last position when the unit supports it.
func (g *Gateway) VaneDown(unitNo int) error {
	return g.stepVane(unitNo, wire.FuncVaneUD, true)
}

// VaneLeft swings the horizontal vane one position left.
func (g *Gateway) VaneLeft(unitNo int) error {
	return g.stepVane(unitNo, wire.FuncVaneLR, false)
}

// VaneRight swings the horizontal vane one position right, rolling to
// swing past the last position when the unit supports it.
func (g *Gateway) VaneRight(unitNo int) error {
	return g.stepVane(unitNo, wire.FuncVaneLR, true)
}

func (g *Gateway) stepVane(unitNo int, axis wire.Function, forward bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, err := g.commandUnitLocked(unitNo)
	if err != nil {
		return err
	}
	position, err := s.NextVane(axis, forward)
	if err != nil {
		return err
	}
	return g.submitLocked(wire.FormatSet(unitNo, axis, position))
}

// Refresh requests a full state read for one unit.
func (g *Gateway) Refresh(unitNo int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.commandUnitLocked(unitNo); err != nil {
		return err
	}
	return g.submitLocked(wire.FormatGetAll(unitNo))
}

// RefreshAll requests a full state read for every unit.
func (g *Gateway) RefreshAll() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	lines := make([]string, 0, len(g.units))
	for _, id := range g.unitIDsLocked() {
		lines = append(lines, wire.FormatGetAll(id))
	}
	return g.submitLocked(lines...)
}

// SetDeviceName renames the gateway.
func (g *Gateway) SetDeviceName(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submitLocked(wire.FormatDeviceName(name))
}

// SendRaw submits one raw protocol line through the paced queue. For
// diagnostics; the line is not validated.
func (g *Gateway) SendRaw(line string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submitLocked(line)
}

// Ping queues an immediate keepalive.
func (g *Gateway) Ping() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submitLocked(wire.FormatPing())
}

func (g *Gateway) commandUnitLocked(unitNo int) (*unit.State, error) {
	s, ok := g.units[unitNo]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownUnit, unitNo)
	}
	return s, nil
}

// submitLocked queues validated lines for the pacer. With no session up
// it makes exactly one reconnect attempt; when that fails the command
// fails synchronously and nothing stays queued.
func (g *Gateway) submitLocked(lines ...string) error {
	switch g.status {
	case StatusStopped:
		return ErrStopped
	case StatusIdle:
		return ErrNotConnected
	}

	if g.conn == nil || g.conn.Closed() {
		if err := g.connectLocked(); err != nil {
			return fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
	}

	g.enqueueLocked(lines...)
	if g.tickTask != nil {
		g.tickTask.Reschedule(g.now())
	}
	return nil
}
