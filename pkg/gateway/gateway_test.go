package gateway

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wmp-protocol/wmp-go/pkg/scheduler"
	"github.com/wmp-protocol/wmp-go/pkg/transport"
	"github.com/wmp-protocol/wmp-go/pkg/unit"
	"github.com/wmp-protocol/wmp-go/pkg/wire"
)

const testMAC = "CC3F1D0163D5"

// fakeServer speaks just enough WMP to bring a session up: it records
// every received line and answers the sync queries with canned state.
type fakeServer struct {
	t  *testing.T
	ln net.Listener

	mu    sync.Mutex
	lines []string
	conns int
	conn  net.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeServer{t: t, ln: ln}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeServer) addr() string { return s.ln.Addr().String() }

func (s *fakeServer) serve() {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.conn = c
		s.mu.Unlock()
		go s.handle(c)
	}
}

func (s *fakeServer) handle(c net.Conn) {
	buf := make([]byte, 4096)
	var pending []byte
	for {
		n, err := c.Read(buf)
		if err != nil {
			return
		}
		pending = append(pending, buf[:n]...)
		for {
			i := bytes.IndexAny(pending, "\r\n")
			if i < 0 {
				break
			}
			line := string(pending[:i])
			pending = pending[i+1:]
			if line == "" {
				continue
			}
			s.mu.Lock()
			s.lines = append(s.lines, line)
			s.mu.Unlock()
			s.reply(c, line)
		}
	}
}

func (s *fakeServer) reply(c net.Conn, line string) {
	switch {
	case line == "ID":
		io.WriteString(c, "ID:MH-AC-WMP-1,CC3F1D0163D5,192.168.1.10,ASCII,v1.2.3,-45,Office,N\r")
	case line == "INFO":
		io.WriteString(c, "INFO:RUNVERSION,1.0.1\r")
	case line == "LIMITS:*":
		io.WriteString(c, "LIMITS:SETPTEMP,[160,320]\rLIMITS:MODE,[AUTO,HEAT,DRY,FAN,COOL]\r")
	case strings.HasPrefix(line, "GET,"):
		io.WriteString(c, "CHN,1:ONOFF,ON\rCHN,1:MODE,COOL\rCHN,1:SETPTEMP,240\rCHN,1:AMBTEMP,235\r")
	case line == "PING":
		io.WriteString(c, "PONG:-47\r")
	case strings.HasPrefix(line, "SET,"):
		io.WriteString(c, "ACK\r")
	}
}

func (s *fakeServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *fakeServer) connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

func (s *fakeServer) push(line string) {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c != nil {
		io.WriteString(c, line+"\r")
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within", timeout)
}

func newTestGateway(t *testing.T, addr string, units ...int) (*Gateway, *MemoryStore) {
	t.Helper()
	sched := scheduler.New(nil)
	t.Cleanup(sched.Stop)
	store := NewMemoryStore()
	g, err := New(Config{
		MAC:       testMAC,
		Address:   addr,
		Units:     units,
		Scheduler: sched,
		Store:     store,
	})
	require.NoError(t, err)
	t.Cleanup(g.Stop)
	return g, store
}

func TestConnectRunsInitialSync(t *testing.T) {
	srv := newFakeServer(t)
	g, _ := newTestGateway(t, srv.addr())

	require.NoError(t, g.Start())
	waitFor(t, 3*time.Second, g.Connected)

	// The sync drains one line per tick: identity, configuration,
	// limits, then a full read.
	waitFor(t, 5*time.Second, func() bool { return len(srv.received()) >= 4 })
	got := srv.received()[:4]
	assert.Equal(t, []string{"ID", "INFO", "LIMITS:*", "GET,1:*"}, got)

	waitFor(t, 3*time.Second, func() bool {
		_, ok := g.Identity()
		return ok
	})
	id, _ := g.Identity()
	assert.Equal(t, "MH-AC-WMP-1", id.Model)
	assert.Equal(t, testMAC, id.MAC)

	waitFor(t, 3*time.Second, func() bool {
		s, ok := g.Unit(1)
		return ok && s.HasAmbient
	})
	s, _ := g.Unit(1)
	assert.True(t, s.Power)
	assert.Equal(t, unit.ModeCool, s.Mode)
	assert.Equal(t, 240, s.SetpointTenths)
	assert.Equal(t, 235, s.AmbientTenths)
	assert.True(t, s.LimitsFor(wire.FuncSetpoint).Numeric)
}

func TestConnectPersistsAddress(t *testing.T) {
	srv := newFakeServer(t)
	g, store := newTestGateway(t, srv.addr())

	require.NoError(t, g.Start())
	waitFor(t, 3*time.Second, g.Connected)

	addr, ok := store.Get(testMAC, AttrIPAddress)
	require.True(t, ok)
	assert.Equal(t, srv.addr(), addr)
}

func TestCommandWhileDisconnected(t *testing.T) {
	// A dead listener gives an immediate connection refusal.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := ln.Addr().String()
	ln.Close()

	g, store := newTestGateway(t, deadAddr)
	require.NoError(t, g.Start())

	// One implicit reconnect attempt, then a synchronous failure with
	// nothing left queued.
	err = g.SetPower(1, true)
	require.ErrorIs(t, err, ErrNotConnected)
	g.mu.Lock()
	assert.Empty(t, g.sendq)
	g.mu.Unlock()

	// Once the gateway is reachable again the next command connects by
	// itself and goes out.
	srv := newFakeServer(t)
	require.NoError(t, store.Set(testMAC, AttrIPAddress, srv.addr()))

	require.NoError(t, g.SetPower(1, true))
	waitFor(t, 5*time.Second, func() bool {
		for _, line := range srv.received() {
			if line == "SET,1:ONOFF,ON" {
				return true
			}
		}
		return false
	})
}

func TestCommandBeforeStart(t *testing.T) {
	srv := newFakeServer(t)
	g, _ := newTestGateway(t, srv.addr())

	err := g.SetPower(1, true)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Zero(t, srv.connections())
}

func TestValidationPreventsTraffic(t *testing.T) {
	srv := newFakeServer(t)
	g, _ := newTestGateway(t, srv.addr())

	require.NoError(t, g.Start())
	waitFor(t, 3*time.Second, func() bool {
		s, ok := g.Unit(1)
		return ok && !s.LimitsFor(wire.FuncSetpoint).Unconstrained()
	})

	err := g.SetSetpoint(1, 350)
	require.ErrorIs(t, err, unit.ErrNotAllowed)

	err = g.SetMode(1, unit.ModeOff)
	require.ErrorIs(t, err, unit.ErrNotAllowed)

	err = g.SetPower(99, true)
	require.ErrorIs(t, err, ErrUnknownUnit)

	g.mu.Lock()
	queued := len(g.sendq)
	g.mu.Unlock()
	assert.Zero(t, queued)
}

func TestSetpointFollowUpRead(t *testing.T) {
	srv := newFakeServer(t)
	g, _ := newTestGateway(t, srv.addr())

	require.NoError(t, g.Start())
	waitFor(t, 3*time.Second, g.Connected)

	require.NoError(t, g.SetSetpoint(1, 240))
	waitFor(t, 5*time.Second, func() bool {
		var set, get bool
		for _, line := range srv.received() {
			if line == "SET,1:SETPTEMP,240" {
				set = true
			}
			if set && line == "GET,1:SETPTEMP" {
				get = true
			}
		}
		return set && get
	})
}

func TestWatchdogDropsSilentSession(t *testing.T) {
	srv := newFakeServer(t)
	g, _ := newTestGateway(t, srv.addr())

	require.NoError(t, g.Start())
	waitFor(t, 3*time.Second, g.Connected)

	// Jump the clock past the silence limit and force a tick.
	g.mu.Lock()
	g.now = func() time.Time { return time.Now().Add(10 * time.Minute) }
	task := g.tickTask
	g.mu.Unlock()
	task.Reschedule(time.Now())

	waitFor(t, 3*time.Second, func() bool { return !g.Connected() })
}

func TestWatchdogLimit(t *testing.T) {
	// Refresh-dominated and ping-dominated cadences.
	assert.Equal(t, 128*time.Second, watchdogLimit(64*time.Second, 32*time.Second))
	assert.Equal(t, 3*time.Minute, watchdogLimit(10*time.Second, time.Minute))
}

func TestCloseMessageDropsSession(t *testing.T) {
	srv := newFakeServer(t)
	g, _ := newTestGateway(t, srv.addr())

	require.NoError(t, g.Start())
	waitFor(t, 3*time.Second, g.Connected)

	// The drop is observable through the reconnect that follows.
	srv.push("CLOSE")
	waitFor(t, 3*time.Second, func() bool { return srv.connections() >= 2 })
}

func TestPongUpdatesRSSI(t *testing.T) {
	srv := newFakeServer(t)
	g, _ := newTestGateway(t, srv.addr())

	require.NoError(t, g.Start())
	waitFor(t, 3*time.Second, g.Connected)

	srv.push("PONG:-51")
	waitFor(t, 3*time.Second, func() bool { return g.RSSI() == -51 })
}

func TestDispatchUnknownUnitDropped(t *testing.T) {
	g, _ := newTestGateway(t, "127.0.0.1:1")

	g.handleLine("CHN,7:ONOFF,ON")
	_, ok := g.Unit(7)
	assert.False(t, ok)

	s, ok := g.Unit(1)
	require.True(t, ok)
	assert.False(t, s.Power)
}

func TestDispatchBareUnitNumber(t *testing.T) {
	// Single-unit gateways omit the unit number.
	g, _ := newTestGateway(t, "127.0.0.1:1")
	g.handleLine("CHN:ONOFF,ON")
	s, ok := g.Unit(1)
	require.True(t, ok)
	assert.True(t, s.Power)

	// With several units a bare CHN is ambiguous and dropped.
	multi, _ := newTestGateway(t, "127.0.0.1:1", 1, 2)
	multi.handleLine("CHN:ONOFF,ON")
	s1, _ := multi.Unit(1)
	s2, _ := multi.Unit(2)
	assert.False(t, s1.Power)
	assert.False(t, s2.Power)
}

func TestLimitsScope(t *testing.T) {
	g, _ := newTestGateway(t, "127.0.0.1:1", 1, 2)

	// Without a unit number the advertisement covers every unit.
	g.handleLine("LIMITS:SETPTEMP,[160,320]")
	s1, _ := g.Unit(1)
	s2, _ := g.Unit(2)
	assert.True(t, s1.LimitsFor(wire.FuncSetpoint).Numeric)
	assert.True(t, s2.LimitsFor(wire.FuncSetpoint).Numeric)

	// Unit-qualified advertisements stay with their unit.
	g.handleLine("LIMITS,2:FANSP,[AUTO,1,2]")
	s1, _ = g.Unit(1)
	s2, _ = g.Unit(2)
	assert.True(t, s1.LimitsFor(wire.FuncFanSpeed).Unconstrained())
	assert.False(t, s2.LimitsFor(wire.FuncFanSpeed).Unconstrained())
}

func TestInfoAccumulates(t *testing.T) {
	g, _ := newTestGateway(t, "127.0.0.1:1")
	g.handleLine("INFO:RUNVERSION,6.01")
	g.handleLine("INFO:CFGVERSION,1.0.1")
	info := g.Info()
	assert.Equal(t, "6.01", info["RUNVERSION"])
	assert.Equal(t, "1.0.1", info["CFGVERSION"])
}

func TestStoppedGatewayRejectsCommands(t *testing.T) {
	srv := newFakeServer(t)
	g, _ := newTestGateway(t, srv.addr())

	require.NoError(t, g.Start())
	waitFor(t, 3*time.Second, g.Connected)
	g.Stop()

	assert.ErrorIs(t, g.SetPower(1, true), ErrStopped)
	assert.Equal(t, StatusStopped, g.Status())
}

func TestForceUnitsAttribute(t *testing.T) {
	sched := scheduler.New(nil)
	t.Cleanup(sched.Stop)
	store := NewMemoryStore()
	require.NoError(t, store.Set(testMAC, AttrForceUnits, "3"))

	g, err := New(Config{MAC: testMAC, Address: "127.0.0.1:1", Scheduler: sched, Store: store})
	require.NoError(t, err)
	t.Cleanup(g.Stop)

	assert.Equal(t, []int{1, 2, 3}, g.UnitIDs())
}

type recordingProvisioner struct {
	mu   sync.Mutex
	recs []wire.DiscoveryRecord
}

func (p *recordingProvisioner) AnnounceGateway(rec wire.DiscoveryRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
}

func (p *recordingProvisioner) announced() []wire.DiscoveryRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]wire.DiscoveryRecord(nil), p.recs...)
}

func TestRegistryDiscoveryRouting(t *testing.T) {
	prov := &recordingProvisioner{}
	reg := NewRegistry(prov)

	g, store := newTestGateway(t, "127.0.0.1:1")
	reg.Add(g)

	// A known gateway gets its address refreshed, nothing announced.
	known, err := wire.ParseDiscoveryReply(
		"DISCOVER:MH-AC-WMP-1,CC:3F:1D:01:63:D5,192.168.1.77,ASCII,v1.2.3,-45,Office,N,1")
	require.NoError(t, err)
	reg.HandleDiscovery(known)

	addr, ok := store.Get(testMAC, AttrIPAddress)
	require.True(t, ok)
	assert.Equal(t, "192.168.1.77", addr)
	assert.Empty(t, prov.announced())

	// An unknown compatible gateway goes to the provisioner.
	unknown, err := wire.ParseDiscoveryReply(
		"DISCOVER:MH-AC-WMP-1,AABBCCDDEEFF,192.168.1.80,ASCII,v1.2.3,-60,Lobby,N,1")
	require.NoError(t, err)
	reg.HandleDiscovery(unknown)
	require.Len(t, prov.announced(), 1)
	assert.Equal(t, "AABBCCDDEEFF", prov.announced()[0].MAC)

	// Foreign protocol families are dropped.
	foreign, err := wire.ParseDiscoveryReply(
		"DISCOVER:OTHER-THING,112233445566,192.168.1.90,MODBUS,v1,0,X,N,1")
	require.NoError(t, err)
	reg.HandleDiscovery(foreign)
	assert.Len(t, prov.announced(), 1)
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(nil)
	g, _ := newTestGateway(t, "127.0.0.1:1")
	reg.Add(g)

	got, ok := reg.Gateway("cc:3f:1d:01:63:d5")
	require.True(t, ok)
	assert.Same(t, g, got)
	assert.Equal(t, 1, reg.Len())

	reg.Remove("cc-3f-1d-01-63-d5")
	assert.Zero(t, reg.Len())
	assert.Equal(t, StatusStopped, g.Status())
}

// staticResolver hands out a fixed candidate list for any MAC.
type staticResolver struct {
	mu    sync.Mutex
	addrs []string
	calls int
}

func (r *staticResolver) Resolve(_ context.Context, _ string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return append([]string(nil), r.addrs...), nil
}

func (r *staticResolver) resolves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestReconnectViaResolver(t *testing.T) {
	srv := newFakeServer(t)

	// Both the configured and the stored address point at a dead
	// listener; only rediscovery knows where the gateway moved.
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := dead.Addr().String()
	dead.Close()

	sched := scheduler.New(nil)
	t.Cleanup(sched.Stop)
	store := NewMemoryStore()
	require.NoError(t, store.Set(testMAC, AttrIPAddress, deadAddr))
	resolver := &staticResolver{addrs: []string{srv.addr()}}

	g, err := New(Config{
		MAC:       testMAC,
		Address:   deadAddr,
		Scheduler: sched,
		Store:     store,
		Resolver:  resolver,
	})
	require.NoError(t, err)
	t.Cleanup(g.Stop)

	require.NoError(t, g.Start())
	waitFor(t, 5*time.Second, g.Connected)
	assert.GreaterOrEqual(t, resolver.resolves(), 1)

	// The resolved address is persisted for the next reconnect.
	addr, ok := store.Get(testMAC, AttrIPAddress)
	require.True(t, ok)
	assert.Equal(t, srv.addr(), addr)
}

func TestSendTimeoutRetriesWithoutDrop(t *testing.T) {
	srv := newFakeServer(t)
	g, _ := newTestGateway(t, srv.addr())

	require.NoError(t, g.Start())
	waitFor(t, 3*time.Second, g.Connected)
	waitFor(t, 5*time.Second, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return len(g.sendq) == 0
	})

	// Swap in a session whose writes always hit the deadline. The
	// queued line must survive and the session must stay up.
	stalled, err := transport.Dial(srv.addr(), transport.Config{WriteTimeout: time.Nanosecond})
	require.NoError(t, err)

	g.mu.Lock()
	old := g.conn
	g.conn = stalled
	g.enqueueLocked("PING")
	g.tickTask.Reschedule(time.Now())
	g.mu.Unlock()
	old.Close()

	time.Sleep(600 * time.Millisecond)

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Equal(t, StatusConnected, g.status)
	require.NotEmpty(t, g.sendq)
	assert.Equal(t, "PING", g.sendq[0])
}
