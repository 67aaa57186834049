package gateway

import (
	"strconv"
	"strings"

	"github.com/wmp-protocol/wmp-go/pkg/log"
	"github.com/wmp-protocol/wmp-go/pkg/unit"
	"github.com/wmp-protocol/wmp-go/pkg/wire"
)

// handleLine dispatches one inbound protocol line. Handlers only mutate
// derived state; the pacer does all sending.
func (g *Gateway) handleLine(line string) {
	msg, err := wire.Parse(line)
	if err != nil {
		g.logger.Debug("dropping unparseable line", "line", line, "error", err)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	switch msg.Type {
	case wire.TypeID:
		g.handleID(msg)
	case wire.TypeInfo:
		g.handleInfo(msg)
	case wire.TypeCHN:
		g.handleChange(msg)
	case wire.TypeLimits:
		g.handleLimits(msg)
	case wire.TypeACK:
		g.lastSent = ""
	case wire.TypeERR:
		g.handleErr(msg)
	case wire.TypePong:
		if rssi, ok := msg.ParseRSSI(); ok {
			g.rssi = rssi
		}
	case wire.TypeClose:
		g.logger.Info("gateway closed the session")
		g.dropSessionLocked("peer close")
		if g.tickTask != nil {
			g.tickTask.Reschedule(g.now())
		}
	default:
		g.logger.Debug("dropping unknown message type", "type", msg.RawType, "line", line)
	}
}

func (g *Gateway) handleID(msg wire.Message) {
	id, err := wire.ParseIdentity(msg.Payload)
	if err != nil {
		g.logger.Debug("bad ID payload", "payload", msg.Payload, "error", err)
		return
	}
	g.identity = id
	g.hasIdentity = true
	if id.MAC != "" && id.MAC != g.mac {
		g.logger.Warn("gateway reports a different hardware identifier", "reported", id.MAC)
	}
}

// handleInfo folds an INFO report into the info map. Payloads are
// KEY,VALUE pairs, one per line.
func (g *Gateway) handleInfo(msg wire.Message) {
	fields := msg.Fields()
	if len(fields) < 2 {
		return
	}
	key := strings.TrimSpace(fields[0])
	if key == "" {
		return
	}
	g.info[key] = strings.TrimSpace(strings.Join(fields[1:], ","))
}

// handleChange applies one CHN notification to its unit. A CHN without
// a unit number targets unit 1: single-unit gateways omit it.
func (g *Gateway) handleChange(msg wire.Message) {
	targets, ok := g.targetUnitsLocked(msg.Unit)
	if !ok {
		g.logger.Debug("dropping change for unknown unit", "unit", msg.Unit)
		return
	}
	chn, err := msg.ParseChange()
	if err != nil {
		g.logger.Debug("bad CHN payload", "payload", msg.Payload, "error", err)
		return
	}

	for _, s := range targets {
		if g.applyChangeLocked(s, chn) {
			g.traceUnitChangeLocked(s, chn)
		}
	}
}

func (g *Gateway) applyChangeLocked(s *unit.State, chn wire.Change) bool {
	switch chn.Function {
	case wire.FuncOnOff:
		return s.ApplyOnOff(chn.Value)
	case wire.FuncMode:
		return s.ApplyMode(chn.Value)
	case wire.FuncSetpoint:
		v, err := strconv.Atoi(chn.Value)
		if err != nil {
			return false
		}
		return s.ApplySetpointTenths(v)
	case wire.FuncAmbient:
		v, err := strconv.Atoi(chn.Value)
		if err != nil {
			return false
		}
		return s.ApplyAmbientTenths(v)
	case wire.FuncFanSpeed:
		return s.ApplyFanSpeed(chn.Value)
	case wire.FuncVaneUD, wire.FuncVaneLR:
		return s.ApplyVane(chn.Function, chn.Value)
	case wire.FuncErrStatus:
		return s.ApplyErrStatus(chn.Value)
	case wire.FuncErrCode:
		s.ApplyErrCode(chn.Value)
		return true
	default:
		g.logger.Debug("dropping change for unknown function", "function", chn.RawName)
		return false
	}
}

// handleLimits records advertised limits. A report without a unit
// number applies to every unit; a unit-qualified one to that unit only.
func (g *Gateway) handleLimits(msg wire.Message) {
	targets, ok := g.limitsTargetsLocked(msg.Unit)
	if !ok {
		g.logger.Debug("dropping limits for unknown unit", "unit", msg.Unit)
		return
	}
	rep, err := msg.ParseLimitsReport()
	if err != nil {
		g.logger.Debug("bad LIMITS payload", "payload", msg.Payload, "error", err)
		return
	}
	if rep.Function == wire.FuncUnknown {
		g.logger.Debug("dropping limits for unknown function", "function", rep.RawName)
		return
	}
	l := unit.NewLimits(rep.Values)
	for _, s := range targets {
		s.SetLimits(rep.Function, l)
	}
}

func (g *Gateway) handleErr(msg wire.Message) {
	g.logger.Warn("gateway rejected command", "command", g.lastSent, "detail", msg.Payload)
	g.lastSent = ""
}

// targetUnitsLocked maps a CHN unit number to its state. GatewayTarget
// resolves to unit 1 only when it is the sole unit.
func (g *Gateway) targetUnitsLocked(unitNo int) ([]*unit.State, bool) {
	if unitNo == wire.GatewayTarget {
		if len(g.units) == 1 {
			for _, s := range g.units {
				return []*unit.State{s}, true
			}
		}
		return nil, false
	}
	s, ok := g.units[unitNo]
	if !ok {
		return nil, false
	}
	return []*unit.State{s}, true
}

// limitsTargetsLocked maps a LIMITS unit number to its targets: all
// units when the report carries no unit number.
func (g *Gateway) limitsTargetsLocked(unitNo int) ([]*unit.State, bool) {
	if unitNo == wire.GatewayTarget {
		out := make([]*unit.State, 0, len(g.units))
		for _, s := range g.units {
			out = append(out, s)
		}
		return out, true
	}
	s, ok := g.units[unitNo]
	if !ok {
		return nil, false
	}
	return []*unit.State{s}, true
}

func (g *Gateway) traceUnitChangeLocked(s *unit.State, chn wire.Change) {
	g.trace.Log(log.Event{
		Timestamp: g.now(),
		GatewayID: g.mac,
		Direction: log.DirectionIn,
		Layer:     log.LayerEngine,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.EntityUnit,
			NewState: chn.Function.String() + "=" + chn.Value,
			Reason:   "unit " + strconv.Itoa(s.ID),
		},
	})
}
