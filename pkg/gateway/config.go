package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/wmp-protocol/wmp-go/pkg/log"
	"github.com/wmp-protocol/wmp-go/pkg/scheduler"
	"github.com/wmp-protocol/wmp-go/pkg/wire"
)

// Cadence defaults and bounds.
const (
	// DefaultPingInterval is the keepalive cadence.
	DefaultPingInterval = 32 * time.Second

	// DefaultRefreshInterval is the full state refresh cadence.
	DefaultRefreshInterval = 64 * time.Second

	// DefaultFastTick is the re-tick delay while commands remain queued,
	// so pacing delays consecutive sends without stalling the queue.
	DefaultFastTick = 250 * time.Millisecond

	// ClockSyncInterval is the CFG:DATETIME cadence.
	ClockSyncInterval = time.Hour

	// failedAfterAttempts sets the sticky failure flag once this many
	// consecutive reconnects have not produced a session.
	failedAfterAttempts = 5
)

var (
	// ErrNotConnected indicates a command was issued with no session and
	// the single implicit reconnect attempt did not produce one.
	ErrNotConnected = errors.New("gateway not connected")

	// ErrStopped indicates an operation on a stopped gateway.
	ErrStopped = errors.New("gateway stopped")

	// ErrUnknownUnit indicates a command addressed to a unit the gateway
	// does not expose.
	ErrUnknownUnit = errors.New("unknown unit")
)

// AddressResolver finds candidate addresses for a gateway whose stored
// address stopped answering. pkg/discovery provides implementations.
type AddressResolver interface {
	// Resolve returns candidate IP addresses for the gateway with the
	// given hardware identifier, best first.
	Resolve(ctx context.Context, mac string) ([]string, error)
}

// Provisioner is told about equipment this client has no record of.
// The host decides whether to adopt it; nothing is stored until it does.
type Provisioner interface {
	// AnnounceGateway reports a discovered gateway with no registry entry.
	AnnounceGateway(rec wire.DiscoveryRecord)
}

// Config configures one Gateway.
type Config struct {
	// MAC is the gateway hardware identifier (any common MAC notation).
	MAC string

	// Address is the initial gateway address, host or host:port.
	// The persisted ipAddress attribute takes precedence when set.
	Address string

	// ProxyAddr is the relay proxy, host or host:port. Used only when
	// the useProxy attribute is true.
	ProxyAddr string

	// Units lists the unit numbers the gateway exposes. Empty means
	// unit 1 only; the forceUnits attribute overrides the count.
	Units []int

	// ClockSync enables the hourly CFG:DATETIME push.
	ClockSync bool

	// Scheduler runs the gateway's periodic work. Required.
	Scheduler *scheduler.Scheduler

	// Store persists gateway attributes. Defaults to a MemoryStore.
	Store AttributeStore

	// Resolver locates moved gateways during reconnect. Optional.
	Resolver AddressResolver

	// Logger receives operational logging. Defaults to a discard logger.
	Logger *slog.Logger

	// Trace receives protocol events. Nil disables tracing.
	Trace log.Logger

	// DialTimeout bounds each connect attempt.
	DialTimeout time.Duration
}

func (c *Config) validate() error {
	if c.MAC == "" {
		return errors.New("gateway: MAC is required")
	}
	if c.Scheduler == nil {
		return errors.New("gateway: Scheduler is required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Store == nil {
		c.Store = NewMemoryStore()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.Trace == nil {
		c.Trace = log.NoopLogger{}
	}
	if len(c.Units) == 0 {
		c.Units = []int{1}
	}
}

// Status is the connection state of a Gateway.
type Status uint8

const (
	// StatusIdle means Start has not been called.
	StatusIdle Status = iota

	// StatusConnecting means no session is up and reconnects are running.
	StatusConnecting

	// StatusConnected means a session is up.
	StatusConnected

	// StatusStopped means the gateway was stopped.
	StatusStopped
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// watchdogLimit is the silence threshold after which a session is
// presumed dead: generous enough that a healthy gateway always answers
// a refresh or ping first.
func watchdogLimit(refresh, ping time.Duration) time.Duration {
	limit := 2 * refresh
	if p := 3 * ping; p > limit {
		limit = p
	}
	return limit
}
