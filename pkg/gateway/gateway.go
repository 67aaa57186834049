package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/wmp-protocol/wmp-go/pkg/log"
	"github.com/wmp-protocol/wmp-go/pkg/scheduler"
	"github.com/wmp-protocol/wmp-go/pkg/transport"
	"github.com/wmp-protocol/wmp-go/pkg/unit"
	"github.com/wmp-protocol/wmp-go/pkg/wire"
)

// Gateway manages one persistent session to one physical gateway: it
// owns the connection, derives unit state from inbound traffic, paces
// outbound commands, and reconnects on its own.
//
// All periodic work runs on the shared scheduler; Gateway never starts
// goroutines of its own.
type Gateway struct {
	cfg    Config
	mac    string
	logger *slog.Logger
	trace  log.Logger

	mu     sync.RWMutex
	status Status
	failed bool

	conn  *transport.Conn
	units map[int]*unit.State

	identity    wire.Identity
	hasIdentity bool
	info        map[string]string
	rssi        int

	// sendq holds formatted lines awaiting their tick. One line leaves
	// per tick; commands are never queued across a failed session.
	sendq    []string
	lastSent string

	nextPing      time.Time
	nextRefresh   time.Time
	nextClockSync time.Time

	reconnect *transport.Backoff
	poll      *transport.Backoff

	// stamp marks the current run; callbacks from a previous run see a
	// newer stamp and return without touching state.
	stamp    uint64
	tickTask *scheduler.Task
	recvTask *scheduler.Task

	now func() time.Time
}

// New creates a Gateway. Call Start to bring the session up.
func New(cfg Config) (*Gateway, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	mac := wire.NormalizeMAC(cfg.MAC)
	g := &Gateway{
		cfg:       cfg,
		mac:       mac,
		logger:    cfg.Logger.With("gateway", mac),
		trace:     cfg.Trace,
		status:    StatusIdle,
		units:     make(map[int]*unit.State),
		info:      make(map[string]string),
		reconnect: transport.NewReconnectBackoff(),
		poll:      transport.NewPollBackoff(),
		now:       time.Now,
	}
	for _, id := range unitNumbers(cfg.Store, mac, cfg.Units) {
		g.units[id] = unit.NewState(id)
	}
	return g, nil
}

// unitNumbers resolves the exposed unit set: the forceUnits attribute
// overrides the configured count, keeping numbering from 1.
func unitNumbers(store AttributeStore, mac string, configured []int) []int {
	if store != nil {
		if n := intAttr(store, mac, AttrForceUnits, 0); n > 0 {
			ids := make([]int, n)
			for i := range ids {
				ids[i] = i + 1
			}
			return ids
		}
	}
	return configured
}

// MAC returns the normalized gateway hardware identifier.
func (g *Gateway) MAC() string { return g.mac }

// Start schedules the gateway's work and begins connecting. It returns
// immediately; watch Connected for the session coming up.
func (g *Gateway) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status == StatusStopped {
		return ErrStopped
	}
	if g.status != StatusIdle {
		return nil
	}
	g.status = StatusConnecting
	g.stamp = g.cfg.Scheduler.NextStamp()

	stamp := g.stamp
	owner := "gateway/" + g.mac
	g.tickTask = g.cfg.Scheduler.NewTask(owner+"/tick", owner, func() { g.tick(stamp) })
	g.recvTask = g.cfg.Scheduler.NewTask(owner+"/recv", owner, func() { g.receive(stamp) })
	g.tickTask.Delay(0)
	return nil
}

// Stop tears the session down and cancels all scheduled work. The
// gateway cannot be restarted.
func (g *Gateway) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status == StatusStopped {
		return
	}
	g.status = StatusStopped
	g.stamp = g.cfg.Scheduler.NextStamp()
	g.cfg.Scheduler.CloseOwner("gateway/" + g.mac)
	g.dropSessionLocked("stopped")
}

// Connected reports whether a session is up.
func (g *Gateway) Connected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status == StatusConnected
}

// Status returns the connection state.
func (g *Gateway) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// Failed reports whether repeated reconnects have not produced a
// session. The flag clears on the next successful connect.
func (g *Gateway) Failed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.failed
}

// Identity returns the gateway's ID response, once received.
func (g *Gateway) Identity() (wire.Identity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.identity, g.hasIdentity
}

// RSSI returns the last reported WiFi signal strength in dBm.
func (g *Gateway) RSSI() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rssi
}

// Info returns the gateway's INFO key/value pairs.
func (g *Gateway) Info() map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]string, len(g.info))
	for k, v := range g.info {
		out[k] = v
	}
	return out
}

// UnitIDs returns the exposed unit numbers in ascending order.
func (g *Gateway) UnitIDs() []int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.unitIDsLocked()
}

// Unit returns a copy of a unit's derived state.
func (g *Gateway) Unit(id int) (unit.State, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.units[id]
	if !ok {
		return unit.State{}, false
	}
	return s.Clone(), true
}

// UpdateAddress records a fresh address for the gateway, typically from
// a discovery reply. The new address is used on the next connect.
func (g *Gateway) UpdateAddress(ip string) {
	if ip == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.persistAddressLocked(ip)
}

func (g *Gateway) persistAddressLocked(ip string) {
	if err := g.cfg.Store.Set(g.mac, AttrIPAddress, ip); err != nil {
		g.logger.Warn("persisting gateway address failed", "ip", ip, "error", err)
	}
}

// stale reports whether a callback belongs to a previous run.
func (g *Gateway) stale(stamp uint64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stamp != stamp || g.status == StatusStopped
}

// dropSessionLocked closes the connection and clears per-session state.
func (g *Gateway) dropSessionLocked(reason string) {
	if g.conn != nil {
		g.conn.Close()
		g.conn = nil
		g.logger.Info("session closed", "reason", reason)
		g.trace.Log(log.Event{
			Timestamp: g.now(),
			GatewayID: g.mac,
			Layer:     log.LayerEngine,
			Category:  log.CategoryState,
			StateChange: &log.StateChangeEvent{
				Entity:   log.EntityGateway,
				OldState: StatusConnected.String(),
				NewState: StatusConnecting.String(),
				Reason:   reason,
			},
		})
	}
	// Queued commands do not survive the session.
	g.sendq = nil
	g.lastSent = ""
	if g.status == StatusConnected {
		g.status = StatusConnecting
	}
}

// receive drains inbound lines. Polling backs off while the line is
// idle and snaps back to the floor as soon as traffic arrives.
func (g *Gateway) receive(stamp uint64) {
	if g.stale(stamp) {
		return
	}

	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return
	}

	lines, received, err := conn.Poll()
	for _, line := range lines {
		g.handleLine(line)
	}

	if err != nil {
		g.mu.Lock()
		if g.conn == conn {
			g.logger.Warn("session lost", "error", err)
			g.dropSessionLocked("read error")
			g.tickTask.Reschedule(g.now())
		}
		g.mu.Unlock()
		return
	}

	if received > 0 {
		g.poll.Reset()
		g.recvTask.Delay(transport.MinPollInterval)
	} else {
		g.recvTask.Delay(g.poll.Next())
	}
}
