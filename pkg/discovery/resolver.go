package discovery

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wmp-protocol/wmp-go/pkg/wire"
)

// ErrNotFound indicates no resolver produced an address for the MAC.
var ErrNotFound = errors.New("gateway address not found")

// AddressResolver finds candidate addresses for a gateway by hardware
// identifier. Used during reconnect when the stored address is dead.
type AddressResolver interface {
	Resolve(ctx context.Context, mac string) ([]string, error)
}

// BroadcastResolver rediscovers a gateway with a UDP broadcast probe.
// This is the preferred resolver: the gateway itself states where it
// lives now.
type BroadcastResolver struct {
	// Config for the probe. A shorter window than the default is
	// sensible here; replies arrive within a few seconds.
	Config Config
}

// Resolve probes the network and returns the address the gateway
// answered with, as soon as it answers.
func (r *BroadcastResolver) Resolve(ctx context.Context, mac string) ([]string, error) {
	mac = wire.NormalizeMAC(mac)

	cfg := r.Config
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var found []string
	cfg.OnRecord = func(rec wire.DiscoveryRecord) {
		if rec.MAC == mac && rec.IP != "" {
			found = append(found, rec.IP)
			cancel() // no reason to sit out the rest of the window
		}
	}

	_, err := Broadcast(ctx, cfg)
	if len(found) > 0 {
		return found, nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, mac)
}

// neighborSettle is how long a warm-up probe gets to refresh the
// neighbor table before it is read.
const neighborSettle = 200 * time.Millisecond

// NeighborResolver reads the OS neighbor table, where a gateway that
// recently spoke on the LAN still has an entry. Linux only; elsewhere
// it resolves nothing.
type NeighborResolver struct {
	// Path of the neighbor table. Defaults to /proc/net/arp.
	Path string

	// Probe is poked with one discovery datagram before the table is
	// read, so a gateway whose entry went stale reappears. Defaults
	// to the limited broadcast address on the discovery port.
	Probe string
}

// Resolve pokes the LAN, then scans the neighbor table for the MAC.
func (r *NeighborResolver) Resolve(ctx context.Context, mac string) ([]string, error) {
	r.warm(ctx)

	path := r.Path
	if path == "" {
		path = "/proc/net/arp"
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, mac)
	}
	defer f.Close()

	mac = wire.NormalizeMAC(mac)
	var out []string

	scanner := bufio.NewScanner(f)
	scanner.Scan() // header
	for scanner.Scan() {
		// IP address, HW type, Flags, HW address, Mask, Device
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		if wire.NormalizeMAC(fields[3]) == mac {
			out = append(out, fields[0])
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, mac)
	}
	return out, nil
}

// warm fires one best-effort discovery datagram and waits briefly for
// the replies to land in the neighbor table.
func (r *NeighborResolver) warm(ctx context.Context) {
	addr := r.Probe
	if addr == "" {
		addr = fmt.Sprintf("255.255.255.255:%d", wire.DiscoveryPort)
	}
	c, err := net.Dial("udp4", addr)
	if err != nil {
		return
	}
	_, err = c.Write([]byte(wire.DiscoverProbe))
	c.Close()
	if err != nil {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(neighborSettle):
	}
}

// ProbeResolver confirms candidate addresses the hard way: dial each
// one, ask for its identity, keep the ones whose reported hardware
// identifier matches. Last resort, for networks that filter broadcast.
type ProbeResolver struct {
	// Candidates are addresses to try, host or host:port.
	Candidates []string

	// Timeout bounds each probe (default: 3s).
	Timeout time.Duration
}

// Resolve probes each candidate and returns those that identify as the
// wanted gateway.
func (r *ProbeResolver) Resolve(ctx context.Context, mac string) ([]string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	mac = wire.NormalizeMAC(mac)

	var out []string
	for _, cand := range r.Candidates {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		addr := cand
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(addr, strconv.Itoa(wire.DefaultPort))
		}
		if probeIdentity(addr, timeout) == mac {
			out = append(out, cand)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, mac)
	}
	return out, nil
}

// probeIdentity dials addr, sends an ID query and returns the reported
// hardware identifier, or "" when the peer is not a WMP gateway.
func probeIdentity(addr string, timeout time.Duration) string {
	nc, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return ""
	}
	defer nc.Close()
	nc.SetDeadline(time.Now().Add(timeout))

	if _, err := nc.Write([]byte(wire.FormatID() + "\r")); err != nil {
		return ""
	}

	scanner := wire.NewLineScanner()
	buf := make([]byte, 1024)
	for {
		n, err := nc.Read(buf)
		if err != nil {
			return ""
		}
		for _, line := range scanner.Push(buf[:n]) {
			msg, err := wire.Parse(line)
			if err != nil || msg.Type != wire.TypeID {
				continue
			}
			id, err := wire.ParseIdentity(msg.Payload)
			if err != nil {
				return ""
			}
			return id.MAC
		}
	}
}

// ResolverChain tries resolvers in order and returns the first hit.
type ResolverChain []AddressResolver

// Resolve walks the chain.
func (c ResolverChain) Resolve(ctx context.Context, mac string) ([]string, error) {
	for _, r := range c {
		out, err := r.Resolve(ctx, mac)
		if err == nil && len(out) > 0 {
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, mac)
}
