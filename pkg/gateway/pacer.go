package gateway

import (
	"errors"
	"time"

	"github.com/wmp-protocol/wmp-go/pkg/transport"
	"github.com/wmp-protocol/wmp-go/pkg/wire"
)

// tick is the master pacer. One tick does at most one send, so bursts
// of commands reach the gateway spaced out, which the firmware needs.
// It also runs the watchdog, the refresh and keepalive cadences, the
// clock sync, and reconnection. The task always re-arms.
func (g *Gateway) tick(stamp uint64) {
	if g.stale(stamp) {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status == StatusStopped {
		return
	}

	if g.conn == nil || g.conn.Closed() {
		g.reconnectTickLocked()
		return
	}

	now := g.now()
	ping := durationAttr(g.cfg.Store, g.mac, AttrPingInterval, DefaultPingInterval)
	refresh := durationAttr(g.cfg.Store, g.mac, AttrRefreshInterval, DefaultRefreshInterval)

	// Watchdog: a gateway that stays silent past the limit has a dead
	// TCP session even if the socket still looks open.
	if silence := now.Sub(g.conn.LastReceive()); silence > watchdogLimit(refresh, ping) {
		g.logger.Warn("watchdog expired", "silence", silence)
		g.dropSessionLocked("watchdog")
		g.tickTask.Reschedule(now)
		return
	}

	if !now.Before(g.nextRefresh) {
		for _, id := range g.unitIDsLocked() {
			g.enqueueLocked(wire.FormatGetAll(id))
		}
		g.nextRefresh = now.Add(refresh)
	}

	if !now.Before(g.nextPing) {
		g.enqueueFrontLocked(wire.FormatPing())
		g.nextPing = now.Add(ping)
	}

	if g.cfg.ClockSync && !now.Before(g.nextClockSync) {
		g.enqueueLocked(wire.FormatDateTime(now))
		g.nextClockSync = now.Add(ClockSyncInterval)
	}

	if len(g.sendq) > 0 {
		line := g.sendq[0]
		g.sendq = g.sendq[1:]
		switch err := g.conn.Send(line); {
		case err == nil:
			g.lastSent = line
		case errors.Is(err, transport.ErrSendTimeout):
			// Transient write stall. The session stays up and the
			// line goes back to the head of the queue; a peer that
			// stays wedged is caught by the watchdog.
			g.logger.Warn("send timed out", "line", line)
			g.enqueueFrontLocked(line)
			g.tickTask.Reschedule(now.Add(DefaultFastTick))
			return
		default:
			g.logger.Warn("send failed", "line", line, "error", err)
			g.dropSessionLocked("write error")
			g.tickTask.Reschedule(now)
			return
		}
	}

	g.tickTask.Reschedule(now.Add(g.nextWakeLocked(now)))
}

// reconnectTickLocked runs one reconnect attempt and re-arms the tick.
func (g *Gateway) reconnectTickLocked() {
	if g.status == StatusConnected {
		g.status = StatusConnecting
	}
	if err := g.connectLocked(); err != nil {
		delay := g.reconnect.Next()
		if g.reconnect.Attempts() >= failedAfterAttempts {
			g.failed = true
		}
		g.logger.Info("reconnect failed", "attempt", g.reconnect.Attempts(), "retry_in", delay, "error", err)
		g.tickTask.Reschedule(g.now().Add(delay))
		return
	}
	g.tickTask.Reschedule(g.now().Add(DefaultFastTick))
}

// nextWakeLocked picks the next tick delay: fast while the queue has
// work, otherwise the nearest cadence deadline.
func (g *Gateway) nextWakeLocked(now time.Time) time.Duration {
	if len(g.sendq) > 0 {
		return DefaultFastTick
	}
	next := g.nextPing
	if g.nextRefresh.Before(next) {
		next = g.nextRefresh
	}
	if g.cfg.ClockSync && g.nextClockSync.Before(next) {
		next = g.nextClockSync
	}
	d := next.Sub(now)
	if d < DefaultFastTick {
		d = DefaultFastTick
	}
	return d
}

// enqueueLocked appends a line to the paced send queue.
func (g *Gateway) enqueueLocked(lines ...string) {
	g.sendq = append(g.sendq, lines...)
}

// enqueueFrontLocked puts a line at the head of the queue. Keepalives
// jump the queue so a long command backlog cannot delay them.
func (g *Gateway) enqueueFrontLocked(line string) {
	g.sendq = append([]string{line}, g.sendq...)
}
