package gateway

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/wmp-protocol/wmp-go/pkg/log"
	"github.com/wmp-protocol/wmp-go/pkg/transport"
	"github.com/wmp-protocol/wmp-go/pkg/wire"
)

// resolveTimeout bounds one rediscovery pass during reconnect.
const resolveTimeout = 45 * time.Second

// hostPort appends the default WMP port when addr has none.
func hostPort(addr string, port int) string {
	if addr == "" {
		return ""
	}
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, strconv.Itoa(port))
}

// addressCandidates returns connect targets, best first: the persisted
// address, then the configured one.
func (g *Gateway) addressCandidates() []string {
	var out []string
	seen := make(map[string]bool)
	add := func(addr string) {
		addr = hostPort(addr, wire.DefaultPort)
		if addr != "" && !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	if ip, ok := g.cfg.Store.Get(g.mac, AttrIPAddress); ok {
		add(ip)
	}
	add(g.cfg.Address)
	return out
}

// connectLocked establishes a session: each candidate address is tried
// once, through the proxy first when enabled with a direct fallback.
// When every stored address fails the resolver is asked where the
// gateway went, and the winning address is persisted. Callers hold g.mu.
func (g *Gateway) connectLocked() error {
	candidates := g.addressCandidates()

	var lastErr error
	for _, addr := range candidates {
		conn, err := g.dialLocked(addr)
		if err == nil {
			g.sessionUpLocked(conn, addr)
			return nil
		}
		lastErr = err
		g.logger.Debug("connect attempt failed", "addr", addr, "error", err)
	}

	// The gateway may have moved (DHCP). Ask the resolver, try each
	// fresh candidate once.
	if g.cfg.Resolver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
		ips, err := g.cfg.Resolver.Resolve(ctx, g.mac)
		cancel()
		if err != nil {
			g.logger.Debug("rediscovery failed", "error", err)
		}
		for _, ip := range ips {
			addr := hostPort(ip, wire.DefaultPort)
			conn, err := g.dialLocked(addr)
			if err == nil {
				g.sessionUpLocked(conn, addr)
				return nil
			}
			lastErr = err
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no address for gateway %s", g.mac)
	}
	return lastErr
}

// dialLocked opens one session to addr, honoring the useProxy attribute
// with a direct fallback when the proxy is unreachable.
func (g *Gateway) dialLocked(addr string) (*transport.Conn, error) {
	cfg := transport.DefaultConfig()
	if g.cfg.DialTimeout > 0 {
		cfg.DialTimeout = g.cfg.DialTimeout
	}
	cfg.GatewayID = g.mac
	cfg.Trace = g.trace

	if boolAttr(g.cfg.Store, g.mac, AttrUseProxy, false) && g.cfg.ProxyAddr != "" {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			host, portStr = addr, strconv.Itoa(wire.DefaultPort)
		}
		port, _ := strconv.Atoi(portStr)
		notifyID, _ := g.cfg.Store.Get(g.mac, AttrGatewayID)
		if notifyID == "" {
			notifyID = g.mac
		}
		proxyAddr := hostPort(g.cfg.ProxyAddr, wire.ProxyPort)
		conn, err := transport.DialProxy(proxyAddr, host, port, notifyID, cfg)
		if err == nil {
			return conn, nil
		}
		g.logger.Debug("proxy session failed, falling back to direct", "proxy", proxyAddr, "error", err)
	}

	return transport.Dial(addr, cfg)
}

// sessionUpLocked installs a fresh connection and queues the initial
// sync: identity, configuration, limits, then a full state read.
func (g *Gateway) sessionUpLocked(conn *transport.Conn, addr string) {
	g.conn = conn
	g.status = StatusConnected
	g.failed = false
	g.reconnect.Reset()
	g.poll.Reset()

	g.persistAddressLocked(addr)

	now := g.now()
	ping := durationAttr(g.cfg.Store, g.mac, AttrPingInterval, DefaultPingInterval)
	refresh := durationAttr(g.cfg.Store, g.mac, AttrRefreshInterval, DefaultRefreshInterval)
	g.nextPing = now.Add(ping)
	// The initial sync below reads everything; the first periodic
	// refresh waits a full interval.
	g.nextRefresh = now.Add(refresh)
	if g.cfg.ClockSync {
		g.nextClockSync = now
	}

	g.sendq = g.sendq[:0]
	g.sendq = append(g.sendq, wire.FormatID(), wire.FormatInfo(), wire.FormatLimitsQueryAll())
	for _, id := range g.unitIDsLocked() {
		g.sendq = append(g.sendq, wire.FormatGetAll(id))
	}

	g.recvTask.Reschedule(now.Add(transport.MinPollInterval))

	g.logger.Info("session established", "addr", addr, "proxy", conn.ViaProxy())
	g.trace.Log(log.Event{
		Timestamp:    now,
		ConnectionID: conn.ID(),
		GatewayID:    g.mac,
		Layer:        log.LayerEngine,
		Category:     log.CategoryState,
		RemoteAddr:   conn.RemoteAddr(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.EntityGateway,
			OldState: StatusConnecting.String(),
			NewState: StatusConnected.String(),
		},
	})
}

func (g *Gateway) unitIDsLocked() []int {
	ids := make([]int, 0, len(g.units))
	for id := range g.units {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
