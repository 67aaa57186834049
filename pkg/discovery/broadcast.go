package discovery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/wmp-protocol/wmp-go/pkg/log"
	"github.com/wmp-protocol/wmp-go/pkg/wire"
)

// DefaultWindow is how long Broadcast collects replies.
const DefaultWindow = 30 * time.Second

// readSlice bounds one blocking read so context cancellation is
// noticed promptly.
const readSlice = 250 * time.Millisecond

// Config configures one broadcast discovery run.
type Config struct {
	// Addr is the probe destination. Defaults to the limited broadcast
	// address on the WMP discovery port.
	Addr string

	// Window is how long to collect replies (default: DefaultWindow).
	Window time.Duration

	// OnRecord is called for each accepted reply as it arrives, before
	// Broadcast returns. Optional.
	OnRecord func(wire.DiscoveryRecord)

	// Logger receives operational logging. Defaults to a discard logger.
	Logger *slog.Logger

	// Trace receives protocol events. Nil disables tracing.
	Trace log.Logger
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = fmt.Sprintf("255.255.255.255:%d", wire.DiscoveryPort)
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.Trace == nil {
		c.Trace = log.NoopLogger{}
	}
}

// Broadcast sends one UDP discovery probe and collects replies until
// the window closes or ctx is cancelled. Replies that do not parse as
// compatible gateways are dropped; duplicates (a gateway answers once
// per interface) are folded by hardware identifier, first reply wins.
func Broadcast(ctx context.Context, cfg Config) ([]wire.DiscoveryRecord, error) {
	cfg.applyDefaults()

	dest, err := net.ResolveUDPAddr("udp4", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("discovery address %s: %w", cfg.Addr, err)
	}

	sock, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("discovery socket: %w", err)
	}
	defer sock.Close()

	if _, err := sock.WriteToUDP([]byte(wire.DiscoverProbe), dest); err != nil {
		return nil, fmt.Errorf("discovery probe: %w", err)
	}
	cfg.Trace.Log(log.Event{
		Timestamp: time.Now(),
		Direction: log.DirectionOut,
		Layer:     log.LayerDiscovery,
		Category:  log.CategoryLine,
		Line:      log.NewLineEvent(wire.DiscoverProbe),
	})
	cfg.Logger.Debug("discovery probe sent", "dest", cfg.Addr, "window", cfg.Window)

	var records []wire.DiscoveryRecord
	seen := make(map[string]bool)
	buf := make([]byte, 2048)
	deadline := time.Now().Add(cfg.Window)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		slice := time.Now().Add(readSlice)
		if slice.After(deadline) {
			slice = deadline
		}
		sock.SetReadDeadline(slice)

		n, from, err := sock.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return records, fmt.Errorf("discovery read: %w", err)
		}

		datagram := string(buf[:n])
		rec, err := wire.ParseDiscoveryReply(datagram)
		if err != nil {
			// The probe itself echoes back on some networks; anything
			// that is not a reply is noise.
			cfg.Logger.Debug("ignoring foreign datagram", "from", from, "data", datagram)
			continue
		}

		cfg.Trace.Log(log.Event{
			Timestamp:  time.Now(),
			GatewayID:  rec.MAC,
			Direction:  log.DirectionIn,
			Layer:      log.LayerDiscovery,
			Category:   log.CategoryDiscovery,
			RemoteAddr: from.String(),
			Discovery: &log.DiscoveryEvent{
				Model:    rec.Model,
				MAC:      rec.MAC,
				IP:       rec.IP,
				Name:     rec.Name,
				Accepted: rec.Compatible(),
			},
		})

		if !rec.Compatible() {
			cfg.Logger.Debug("ignoring incompatible device", "model", rec.Model, "proto", rec.Protocol)
			continue
		}
		if seen[rec.MAC] {
			continue
		}
		seen[rec.MAC] = true
		records = append(records, rec)
		if cfg.OnRecord != nil {
			cfg.OnRecord(rec)
		}
	}
	return records, nil
}
